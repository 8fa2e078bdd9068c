package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"citypulse/config"
	"citypulse/database"
	"citypulse/gemini"
	"citypulse/handlers"
	"citypulse/metrics"
	"citypulse/middleware"
	"citypulse/models"
	"citypulse/rabbitmq"
	"citypulse/service"
	"citypulse/version"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Register Prometheus metrics
	metrics.Register()

	// Create database connection
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to create database connection:", err)
	}
	defer db.Close()

	// Ensure tables exist
	ctx := context.Background()
	if err := db.EnsureIssuesTable(ctx); err != nil {
		log.Fatal("Failed to ensure issues table:", err)
	}
	if err := db.EnsureCommentsTable(ctx); err != nil {
		log.Fatal("Failed to ensure issue_comments table:", err)
	}
	if err := db.EnsureDashboardsTable(ctx); err != nil {
		log.Fatal("Failed to ensure authority_dashboards table:", err)
	}

	// Create the AI classifier gateway
	classifier := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)

	// Initialize RabbitMQ for deferred classification when configured
	var publisher *rabbitmq.Publisher
	var taskPublisher service.TaskPublisher
	if cfg.RabbitMQEnabled() {
		publisher, err = rabbitmq.NewPublisher(cfg.GetAMQPURL(), cfg.RabbitMQExchange, cfg.RabbitMQClassifyKey)
		if err != nil {
			log.Printf("Warning: Failed to initialize RabbitMQ publisher: %v", err)
			log.Printf("Deferred classification will be unavailable. Classifying inline...")
		} else {
			taskPublisher = publisher
			log.Printf("RabbitMQ publisher initialized: exchange=%s, routing_key=%s", cfg.RabbitMQExchange, cfg.RabbitMQClassifyKey)
		}
	}

	// Create the lifecycle service
	svc := service.NewIssueService(db, classifier, taskPublisher, cfg.AnalyticsWindowDays, cfg.DefaultNearbyRadiusKm)

	// Start the classification consumer when the queue is in use
	var subscriber *rabbitmq.Subscriber
	if taskPublisher != nil {
		subscriber, err = rabbitmq.NewSubscriber(
			cfg.GetAMQPURL(), cfg.RabbitMQExchange, cfg.RabbitMQClassifyQueue, cfg.RabbitMQClassifyKey,
			func(ctx context.Context, task models.ClassifyTask) error {
				return svc.ClassifyAndReconcile(ctx, task.IssueID)
			},
		)
		if err != nil {
			log.Fatal("Failed to create RabbitMQ subscriber:", err)
		}
		if err := subscriber.Start(context.Background()); err != nil {
			log.Fatal("Failed to start RabbitMQ subscriber:", err)
		}
	}

	// Create handlers
	h := handlers.NewHandlers(svc)

	// Setup HTTP server
	router := setupRouter(h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			log.Printf("Failed to stop RabbitMQ subscriber: %v", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("Failed to close RabbitMQ publisher: %v", err)
		}
	}

	log.Println("Server exited")
}

func setupRouter(h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())

	// API routes
	api := router.Group("/api/v1")
	{
		issues := api.Group("/issues")
		{
			issues.POST("", h.SubmitIssue)
			issues.GET("", h.ListIssues)
			issues.GET("/nearby", h.GetIssuesNearby)
			issues.GET("/map", h.GetMapPoints)
			issues.GET("/:id", h.GetIssue)
			issues.PATCH("/:id", h.UpdateIssue)
			issues.POST("/:id/comments", h.AddComment)
			issues.GET("/:id/comments", h.ListComments)
		}

		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/overview", h.GetOverview)
			dashboard.GET("/area/:area", h.GetAreaDashboard)
			dashboard.POST("/refresh", h.RefreshSnapshots)
			dashboard.GET("/report", h.GenerateReport)
		}

		api.GET("/analytics", h.GetAnalytics)

		api.GET("/version", func(c *gin.Context) {
			c.JSON(200, version.Get("citypulse"))
		})
	}

	// Root health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "citypulse",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, version.Get("citypulse"))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
