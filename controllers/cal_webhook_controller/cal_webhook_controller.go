package cal_webhook_controller

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/booking_models"
	"github.com/joy095/frame-booking/models/shared_models"
)

// Cal.com webhook trigger events.
const (
	TriggerBookingCreated   = "BOOKING_CREATED"
	TriggerBookingCancelled = "BOOKING_CANCELLED"
	TriggerBookingRejected  = "BOOKING_REJECTED"
	TriggerMeetingEnded     = "MEETING_ENDED"
)

const signatureHeader = "X-Cal-Signature-256"

// BookingWriter is the slice of the booking store the webhook consumes.
type BookingWriter interface {
	UpsertPending(ctx context.Context, b *booking_models.Booking) (*booking_models.Booking, error)
	ApplyProviderStatus(ctx context.Context, bookingID, status string) error
}

// CalWebhookService ingests scheduling-provider webhooks and projects them
// onto the local booking store.
type CalWebhookService struct {
	Bookings      BookingWriter
	WebhookSecret string
}

func NewCalWebhookService(bookings BookingWriter, webhookSecret string) *CalWebhookService {
	return &CalWebhookService{Bookings: bookings, WebhookSecret: webhookSecret}
}

// response field values arrive wrapped as {label, value}.
type responseField struct {
	Value string `json:"value"`
}

type responseListField struct {
	Value []string `json:"value"`
}

type calWebhookPayload struct {
	TriggerEvent string `json:"triggerEvent"`
	Payload      struct {
		UID       string     `json:"uid"`
		StartTime *time.Time `json:"startTime"`
		Responses struct {
			Name   responseField     `json:"name"`
			Email  responseField     `json:"email"`
			Notes  responseField     `json:"notes"`
			Guests responseListField `json:"guests"`
		} `json:"responses"`
	} `json:"payload"`
}

// verifySignature compares the HMAC-SHA256 of the raw body against the
// value of X-Cal-Signature-256 in constant time. The header may carry a
// "sha256=" prefix.
func (s *CalWebhookService) verifySignature(body []byte, signature string) bool {
	if s.WebhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if hmac.Equal([]byte(expected), []byte(signature)) {
		return true
	}
	// Some Cal.com versions send the bare hex digest.
	return hmac.Equal([]byte(expected[len("sha256="):]), []byte(signature))
}

// HandleWebhook handles POST /api/webhook/cal.
func (s *CalWebhookService) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !s.verifySignature(body, c.GetHeader(signatureHeader)) {
		logger.WarnLogger.Warn("Cal.com webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload calWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}
	if payload.Payload.UID == "" && payload.TriggerEvent != TriggerMeetingEnded {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing booking uid"})
		return
	}

	ctx := c.Request.Context()
	logger.InfoLogger.Infof("Cal.com webhook %q for booking %s", payload.TriggerEvent, payload.Payload.UID)

	switch payload.TriggerEvent {
	case TriggerBookingCreated:
		booking := &booking_models.Booking{
			BookingID:     payload.Payload.UID,
			StartTime:     payload.Payload.StartTime,
			Status:        shared_models.BookingStatusPending,
			AttendeeName:  payload.Payload.Responses.Name.Value,
			AttendeeEmail: payload.Payload.Responses.Email.Value,
			Notes:         payload.Payload.Responses.Notes.Value,
			Guests:        payload.Payload.Responses.Guests.Value,
		}
		if _, err := s.Bookings.UpsertPending(ctx, booking); err != nil {
			logger.ErrorLogger.Errorf("Failed to upsert booking %s: %v", payload.Payload.UID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save booking"})
			return
		}

	case TriggerBookingCancelled:
		if err := s.Bookings.ApplyProviderStatus(ctx, payload.Payload.UID, shared_models.BookingStatusCanceled); err != nil {
			logger.ErrorLogger.Errorf("Failed to cancel booking %s: %v", payload.Payload.UID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update booking"})
			return
		}

	case TriggerBookingRejected:
		if err := s.Bookings.ApplyProviderStatus(ctx, payload.Payload.UID, shared_models.BookingStatusRejected); err != nil {
			logger.ErrorLogger.Errorf("Failed to reject booking %s: %v", payload.Payload.UID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update booking"})
			return
		}

	case TriggerMeetingEnded:
		// Verified but unsupported: accept so the provider stops retrying.

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
