package notification_controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/cache"
	"github.com/joy095/frame-booking/logger"
)

// NotificationController exposes the dispatcher over HTTP.
type NotificationController struct {
	Dispatcher *Dispatcher
}

func NewNotificationController(dispatcher *Dispatcher) *NotificationController {
	return &NotificationController{Dispatcher: dispatcher}
}

// SendNotificationRequest enforces the Frames v2 size limits: title <= 32,
// body <= 128, notificationId <= 128 (the idempotency key).
type SendNotificationRequest struct {
	FID            int64  `json:"fid" binding:"required"`
	NotificationID string `json:"notificationId" binding:"required,max=128"`
	Title          string `json:"title" binding:"required,max=32"`
	Body           string `json:"body" binding:"required,max=128"`
	TargetURL      string `json:"targetUrl" binding:"omitempty,url"`
	Priority       string `json:"priority" binding:"omitempty,oneof=normal high"`
}

// Send handles POST /api/notifications.
func (nc *NotificationController) Send(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification request", "details": err.Error()})
		return
	}

	skipRateLimit := req.Priority == "high" || c.GetHeader("X-Skip-Rate-Limit") == "true"

	err := nc.Dispatcher.Send(c.Request.Context(), req.FID, Notification{
		ID:        req.NotificationID,
		Title:     req.Title,
		Body:      req.Body,
		TargetURL: req.TargetURL,
	}, skipRateLimit)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, ErrNoTokens):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "No notification tokens found"})
	case errors.Is(err, cache.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Rate limited. Please try again later."})
	default:
		logger.ErrorLogger.Errorf("Failed to send notification to fid %d: %v", req.FID, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "Failed to send notification"})
	}
}
