package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/controllers/notification_controller"
	middleware "github.com/joy095/frame-booking/middlewares"
	"github.com/joy095/frame-booking/middlewares/auth"
)

// RegisterNotificationRoutes registers the notification send endpoint.
// The dispatcher applies the per-recipient quota itself; the route-level
// limit only protects against a runaway caller.
func RegisterNotificationRoutes(router *gin.Engine, notificationController *notification_controller.NotificationController) {
	protected := router.Group("/api/notifications")
	protected.Use(auth.AuthMiddleware())
	{
		protected.POST("/", middleware.CombinedRateLimiter("sendNotification", "30-1m", "500-24h"), notificationController.Send)
	}
}
