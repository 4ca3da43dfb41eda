package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/controllers/booking_controller"
	middleware "github.com/joy095/frame-booking/middlewares"
	"github.com/joy095/frame-booking/middlewares/auth"
)

// RegisterBookingRoutes registers all booking-related routes.
func RegisterBookingRoutes(router *gin.Engine, bookingController *booking_controller.BookingController) {
	protected := router.Group("/api/bookings")
	protected.Use(auth.AuthMiddleware())
	{
		protected.GET("/my", bookingController.MyBookings)
		protected.GET("/:booking_id", bookingController.GetBooking)
		protected.POST("/", middleware.NewRateLimiter("10-1m", "claimBooking"), bookingController.ClaimBooking)
		protected.PATCH("/:booking_id", middleware.NewRateLimiter("20-1m", "updateBooking"), bookingController.UpdateBooking)
	}
}
