package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/controllers/cal_webhook_controller"
	"github.com/joy095/frame-booking/controllers/webhook_controller"
	middleware "github.com/joy095/frame-booking/middlewares"
)

// RegisterWebhookRoutes mounts the Farcaster frame and Cal.com webhook
// receivers. Both authenticate by signature, not by bearer token, so they
// sit outside the auth middleware; the rate limit is keyed by client IP.
func RegisterWebhookRoutes(router *gin.Engine, frameWebhook *webhook_controller.WebhookService, calWebhook *cal_webhook_controller.CalWebhookService) {
	api := router.Group("/api")
	{
		api.POST("/webhook", middleware.NewRateLimiter("60-1m", "frameWebhook"), frameWebhook.HandleWebhook)
		api.POST("/webhook/cal", middleware.NewRateLimiter("60-1m", "calWebhook"), calWebhook.HandleWebhook)
	}
}
