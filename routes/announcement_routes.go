package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/controllers/announcement_controller"
	middleware "github.com/joy095/frame-booking/middlewares"
	"github.com/joy095/frame-booking/middlewares/auth"
)

// RegisterAnnouncementRoutes registers announcement reads for users and
// the admin-key-guarded create endpoint.
func RegisterAnnouncementRoutes(router *gin.Engine, announcementController *announcement_controller.AnnouncementController) {
	api := router.Group("/api/announcements")
	{
		// Create authenticates with the admin key header, not a user token.
		api.POST("/", middleware.NewRateLimiter("5-1m", "createAnnouncement"), announcementController.Create)

		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware())
		{
			protected.GET("/", announcementController.List)
			protected.GET("/last-seen", announcementController.LastSeen)
			protected.PUT("/last-seen", announcementController.MarkSeen)
		}
	}
}
