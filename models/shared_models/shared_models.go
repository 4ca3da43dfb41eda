package shared_models

// Booking status values. Bookings are never hard-deleted, only moved
// between these states.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCanceled  = "canceled"
	BookingStatusRejected  = "rejected"
)

// Payment attempt terminal states.
const (
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ValidBookingStatus reports whether s is one of the known booking states.
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCanceled, BookingStatusRejected:
		return true
	}
	return false
}
