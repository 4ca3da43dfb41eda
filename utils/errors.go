package utils

import "errors"

// ErrFIDNotFound is returned when a handler runs without an authenticated
// Farcaster user in the request context.
var ErrFIDNotFound = errors.New("authentication required: fid not found")
