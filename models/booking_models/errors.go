package booking_models

import "errors"

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrClaimConflict   = errors.New("booking already claimed by another user")
	ErrInvalidStatus   = errors.New("invalid booking status")
)
