// Package main runs the ticketing platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/venueworks/ticketing-backend/config"
	"github.com/venueworks/ticketing-backend/internal/auth"
	"github.com/venueworks/ticketing-backend/internal/checkin"
	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/events"
	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/middleware"
	"github.com/venueworks/ticketing-backend/internal/organizations"
	"github.com/venueworks/ticketing-backend/internal/promo"
	"github.com/venueworks/ticketing-backend/internal/registrations"
	"github.com/venueworks/ticketing-backend/internal/worker"
	"github.com/venueworks/ticketing-backend/pkg/database"
	"github.com/venueworks/ticketing-backend/pkg/queue"
	"github.com/venueworks/ticketing-backend/pkg/redis"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	ticketCodec := credential.NewJWTCodec(cfg.Ticketing.CredentialSecret)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Organizations
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo)

	// Events and ticket types
	eventRepo := events.NewRepository(pool)
	ledger := inventory.NewLedger(pool)
	eventHandler := events.NewHandler(eventRepo, ledger, logger)
	organizerOnly := events.RequireOrganizerAccess(eventRepo, orgRepo)

	// Promo codes
	promoRepo := promo.NewRepository(pool)
	promoHandler := promo.NewHandler(promoRepo, logger)

	// Registrations
	regRepo := registrations.NewRepository(pool, cfg.Ticketing.CommitRetryAttempts)
	regService := registrations.NewService(regRepo, eventRepo, ledger, ticketCodec, jobQueue,
		logger, time.Duration(cfg.Ticketing.CancelLockoutHours)*time.Hour)
	regHandler := registrations.NewHandler(regService, logger)

	// Check-in
	checkinRepo := checkin.NewRepository(pool)
	checkinService := checkin.NewService(checkinRepo, ticketCodec, logger)
	checkinHandler := checkin.NewHandler(checkinService, logger)

	// Deferred credential issuance
	issuer := worker.NewCredentialIssuer(regRepo, regService, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public event browsing
	router.GET("/events", eventHandler.List)
	router.GET("/events/:id", eventHandler.GetByID)
	router.GET("/events/:id/ticket-types", eventHandler.ListTicketTypes)

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Organizations
		api.GET("/organizations", orgHandler.ListMyOrganizations)
		api.POST("/organizations", orgHandler.CreateOrganization)
		api.POST("/organizations/join", orgHandler.JoinOrganization)

		// Event management
		api.POST("/events", middleware.RequireRole("admin", "organizer"), eventHandler.Create)
		api.POST("/events/:id/publish", organizerOnly, eventHandler.Publish)
		api.POST("/events/:id/ticket-types", organizerOnly, eventHandler.CreateTicketType)
		api.GET("/events/:id/stats", organizerOnly, eventHandler.Stats)

		// Promo codes
		api.POST("/events/:id/promo-codes", organizerOnly, promoHandler.Create)
		api.GET("/events/:id/promo-codes", organizerOnly, promoHandler.ListByEvent)

		// Registration
		api.POST("/events/:id/register", regHandler.Register)
		api.DELETE("/events/:id/register", regHandler.Cancel)
		api.GET("/registrations", regHandler.ListMine)
		api.GET("/registrations/:id/ticket", regHandler.Ticket)

		// Check-in (event staff)
		api.POST("/events/:id/checkin/scan", organizerOnly, checkinHandler.Scan)
		api.POST("/events/:id/checkin/bulk", organizerOnly, checkinHandler.Bulk)
		api.POST("/events/:id/checkin/:rid", organizerOnly, checkinHandler.CheckIn)
		api.DELETE("/events/:id/checkin/:rid", organizerOnly, checkinHandler.Undo)
		api.GET("/events/:id/checkin/:rid/audit", organizerOnly, checkinHandler.Audit)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process worker for deferred credential issuance. The standalone
	// cmd/worker binary runs the same loop for deployments that split it out.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go issuer.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
