package main

import (
	"context"
	"embed"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/cache"
	"github.com/joy095/frame-booking/clients"
	"github.com/joy095/frame-booking/config"
	"github.com/joy095/frame-booking/config/db"
	redisclient "github.com/joy095/frame-booking/config/redis"
	"github.com/joy095/frame-booking/controllers/announcement_controller"
	"github.com/joy095/frame-booking/controllers/booking_controller"
	"github.com/joy095/frame-booking/controllers/cal_webhook_controller"
	"github.com/joy095/frame-booking/controllers/notification_controller"
	"github.com/joy095/frame-booking/controllers/payment_controller"
	"github.com/joy095/frame-booking/controllers/webhook_controller"
	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/announcement_models"
	"github.com/joy095/frame-booking/models/booking_models"
	"github.com/joy095/frame-booking/models/payment_models"
	"github.com/joy095/frame-booking/models/token_models"
	"github.com/joy095/frame-booking/routes"
	"github.com/joy095/frame-booking/utils/mail"
)

//go:embed templates/email/*
var embeddedEmailTemplates embed.FS

func init() {
	logger.InitLoggers()
	config.LoadEnv()
}

func main() {
	db.Connect()
	defer db.Close()

	ctx := context.Background()
	rdb, err := redisclient.GetRedisClient(ctx)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisclient.CloseRedis()

	mail.InitTemplates(embeddedEmailTemplates)
	logger.InfoLogger.Info("Email templates initialized.")

	appURL := config.GetEnv("APP_URL", "http://localhost:3000")

	// Stores and cache.
	bookingStore := booking_models.NewStore(db.DB)
	tokenStore := token_models.NewStore(db.DB)
	paymentStore := payment_models.NewStore(db.DB)
	announcementStore := announcement_models.NewStore(db.DB)
	tokenCache := cache.NewTokenCache(rdb)

	// External clients.
	neynarClient := clients.NewNeynarClient(os.Getenv("NEYNAR_API_KEY"), "")
	calClient := clients.NewCalClient(os.Getenv("CAL_API_KEY"), "")
	chainClient := clients.NewChainClient(
		config.GetEnv("CHAIN_RPC_URL", "https://mainnet.base.org"),
		os.Getenv("PAYMENT_CONTRACT_ADDRESS"),
		os.Getenv("USDC_CONTRACT_ADDRESS"),
	)

	// Services.
	dispatcher := notification_controller.NewDispatcher(tokenStore, tokenCache, appURL)
	mailer := mail.NewSender()

	frameWebhook := webhook_controller.NewWebhookService(tokenStore, tokenCache, neynarClient, dispatcher, appURL)
	calWebhook := cal_webhook_controller.NewCalWebhookService(bookingStore, os.Getenv("CAL_WEBHOOK_SECRET"))
	bookingController := booking_controller.NewBookingController(bookingStore)
	notificationController := notification_controller.NewNotificationController(dispatcher)
	paymentController := payment_controller.NewPaymentController(
		bookingStore, paymentStore, chainClient, calClient, dispatcher, mailer, appURL,
	)
	paymentController.ContractAddress = chainClient.ContractAddress
	paymentController.USDCAddress = chainClient.USDCAddress
	announcementController := announcement_controller.NewAnnouncementController(
		announcementStore, tokenCache, tokenStore, dispatcher, os.Getenv("ADMIN_API_KEY"), appURL,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{appURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Admin-Key", "X-Skip-Rate-Limit"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterWebhookRoutes(r, frameWebhook, calWebhook)
	routes.RegisterBookingRoutes(r, bookingController)
	routes.RegisterNotificationRoutes(r, notificationController)
	routes.RegisterPaymentRoutes(r, paymentController)
	routes.RegisterAnnouncementRoutes(r, announcementController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok from frame booking service"})
	})

	port := config.GetEnv("PORT", "8081")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		logger.InfoLogger.Infof("Server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorLogger.Fatalf("Server failed to listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}
	logger.InfoLogger.Info("Server exited gracefully.")
}
