package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"carwash-ops-server/config"
	"carwash-ops-server/database"
	"carwash-ops-server/jobs"
	"carwash-ops-server/messaging"
	"carwash-ops-server/middleware"
	"carwash-ops-server/models"
	"carwash-ops-server/routes"
	"carwash-ops-server/services"
	ws "carwash-ops-server/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	if cfg.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]func() error{}

	// Store and position feed
	var (
		repo database.Repository
		feed database.PositionFeed
	)
	switch cfg.Database.Driver {
	case "memory":
		log.Println("⚠️ Using in-memory store, data is lost on restart")
		mem := database.NewMemoryStore()
		repo, feed = mem, mem
	default:
		db, err := database.Open(cfg.Database)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		store := database.NewStore(db)
		repo = store
		healthChecks["database"] = func() error {
			sqlDB, err := store.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		}

		listener, err := database.NewPositionListener(cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to start position listener:", err)
		}
		defer listener.Close()
		feed = listener
	}

	// Admin WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Live location tracking
	tracker := services.NewLocationTracker(repo, feed)
	go tracker.Run(ctx)

	// Order status fan-out: admin sockets always, RabbitMQ when configured
	notifier := services.FanoutNotifier{hub}
	if cfg.AMQP.URL != "" {
		publisher, err := messaging.NewStatusPublisher(cfg.AMQP.URL, cfg.AMQP.StatusExchange)
		if err != nil {
			log.Printf("⚠️ RabbitMQ unavailable, order events stay local: %v", err)
		} else {
			defer publisher.Close()
			notifier = append(notifier, publisher)
			healthChecks["rabbitmq"] = publisher.Ping
		}
	}

	// Identity document uploads
	var uploader services.DocumentUploader
	if cld, err := services.NewCloudinaryUploader(cfg.Cloudinary); err != nil {
		log.Printf("⚠️ Document uploads disabled: %v", err)
	} else {
		uploader = cld
	}

	identity := services.NewIdentityService(repo, cfg.JWT)
	alerts := services.NewAlertService(repo, hub)
	coordinator := services.NewAssignmentCoordinator(repo, repo, notifier)
	provisioning := services.NewWorkerProvisioningService(identity, repo, alerts, uploader, cfg.Identity.DefaultWorkerPassword)
	dashboard := services.NewDashboardService(repo, cfg.Dashboard.Location())

	if cfg.Identity.AdminEmail != "" && cfg.Identity.AdminPassword != "" {
		_, err := identity.EnsurePrincipal(ctx, cfg.Identity.AdminEmail, cfg.Identity.AdminPassword,
			models.RoleMetadata{Role: models.RoleAdmin, Name: "Administrator"})
		if err != nil {
			log.Fatal("Failed to ensure admin principal:", err)
		}
		log.Printf("👤 Admin principal ready for %s", cfg.Identity.AdminEmail)
	}

	rateLimiter := middleware.NewRateLimiter()

	// Start background jobs
	reconciliation := jobs.NewReconciliationJob(repo, alerts, identity, rateLimiter,
		time.Duration(cfg.Jobs.ReconcileIntervalSeconds)*time.Second)
	reconciliation.Start()
	defer reconciliation.Stop()

	router := routes.NewRouter(routes.Dependencies{
		Config:       cfg,
		Identity:     identity,
		Coordinator:  coordinator,
		Provisioning: provisioning,
		Dashboard:    dashboard,
		Tracker:      tracker,
		Alerts:       alerts,
		Hub:          hub,
		RateLimiter:  rateLimiter,
		HealthChecks: healthChecks,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server shutdown failed: %v", err)
	}
}
