package notification_controller

import "errors"

var (
	ErrNoTokens       = errors.New("no notification tokens found")
	ErrDeliveryFailed = errors.New("all notification attempts failed")
)
