package booking_controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/booking_models"
	"github.com/joy095/frame-booking/models/shared_models"
	"github.com/joy095/frame-booking/utils"
)

// BookingStore is the slice of the booking store the controller consumes.
type BookingStore interface {
	GetByID(ctx context.Context, bookingID string) (*booking_models.Booking, error)
	Claim(ctx context.Context, bookingID string, fid int64) (*booking_models.Booking, error)
	UpdateStatus(ctx context.Context, bookingID, status string) error
	MarkConfirmed(ctx context.Context, bookingID, txHash string) error
	ListByFID(ctx context.Context, fid int64) ([]*booking_models.Booking, error)
}

// BookingController exposes booking reads, claims and status transitions.
type BookingController struct {
	Bookings BookingStore
}

func NewBookingController(bookings BookingStore) *BookingController {
	return &BookingController{Bookings: bookings}
}

// GetBooking handles GET /api/bookings/:booking_id.
func (bc *BookingController) GetBooking(c *gin.Context) {
	bookingID := c.Param("booking_id")

	booking, err := bc.Bookings.GetByID(c.Request.Context(), bookingID)
	if errors.Is(err, booking_models.ErrBookingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch booking"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

type claimBookingRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
}

// ClaimBooking handles POST /api/bookings. The authenticated user takes
// ownership of a provider-created booking row.
func (bc *BookingController) ClaimBooking(c *gin.Context) {
	fid, err := utils.GetFIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req claimBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id is required"})
		return
	}

	booking, err := bc.Bookings.Claim(c.Request.Context(), req.BookingID, fid)
	if errors.Is(err, booking_models.ErrClaimConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Booking already belongs to another user"})
		return
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to claim booking %s for fid %d: %v", req.BookingID, fid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim booking"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": booking})
}

type updateBookingRequest struct {
	Status string `json:"status" binding:"required"`
	TxHash string `json:"tx_hash"`
}

// UpdateBooking handles PATCH /api/bookings/:booking_id. It only ever
// transitions existing rows; an unknown id is a 404, never an insert.
func (bc *BookingController) UpdateBooking(c *gin.Context) {
	bookingID := c.Param("booking_id")

	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	ctx := c.Request.Context()
	var err error
	if req.Status == shared_models.BookingStatusConfirmed && req.TxHash != "" {
		err = bc.Bookings.MarkConfirmed(ctx, bookingID, req.TxHash)
	} else {
		err = bc.Bookings.UpdateStatus(ctx, bookingID, req.Status)
	}

	switch {
	case errors.Is(err, booking_models.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking status"})
	case errors.Is(err, booking_models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update booking"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// MyBookings handles GET /api/bookings/my, returning the authenticated
// user's bookings partitioned into upcoming payable work and history.
func (bc *BookingController) MyBookings(c *gin.Context) {
	fid, err := utils.GetFIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bookings, err := bc.Bookings.ListByFID(c.Request.Context(), fid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bookings"})
		return
	}

	pending, history := partitionBookings(bookings)
	c.JSON(http.StatusOK, gin.H{"pending": pending, "history": history})
}

// partitionBookings splits bookings at read time: pending rows still need
// payment, everything else (confirmed, canceled, rejected) is history.
func partitionBookings(bookings []*booking_models.Booking) (pending, history []*booking_models.Booking) {
	pending = make([]*booking_models.Booking, 0, len(bookings))
	history = make([]*booking_models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == shared_models.BookingStatusPending {
			pending = append(pending, b)
		} else {
			history = append(history, b)
		}
	}
	return pending, history
}
