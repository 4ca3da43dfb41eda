package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/controllers/payment_controller"
	middleware "github.com/joy095/frame-booking/middlewares"
	"github.com/joy095/frame-booking/middlewares/auth"
)

// RegisterPaymentRoutes registers the client-driven payment flow routes.
func RegisterPaymentRoutes(router *gin.Engine, paymentController *payment_controller.PaymentController) {
	protected := router.Group("/api/payments")
	protected.Use(auth.AuthMiddleware())
	{
		protected.POST("/:booking_id/begin", middleware.NewRateLimiter("10-1m", "beginPayment"), paymentController.Begin)
		protected.POST("/:booking_id/approve", middleware.NewRateLimiter("10-1m", "approvePayment"), paymentController.Approve)
		protected.POST("/:booking_id/pay", middleware.NewRateLimiter("10-1m", "submitPayment"), paymentController.Pay)
		protected.GET("/:booking_id/status", paymentController.Status)
		protected.GET("/onchain/:payment_id", paymentController.OnChainRecord)
	}
}
