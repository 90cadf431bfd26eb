// Package main runs the background job worker (deferred ticket credential issuance).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/venueworks/ticketing-backend/config"
	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/events"
	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/registrations"
	"github.com/venueworks/ticketing-backend/internal/worker"
	"github.com/venueworks/ticketing-backend/pkg/database"
	"github.com/venueworks/ticketing-backend/pkg/queue"
	"github.com/venueworks/ticketing-backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	ticketCodec := credential.NewJWTCodec(cfg.Ticketing.CredentialSecret)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	eventRepo := events.NewRepository(pool)
	ledger := inventory.NewLedger(pool)
	regRepo := registrations.NewRepository(pool, cfg.Ticketing.CommitRetryAttempts)
	regService := registrations.NewService(regRepo, eventRepo, ledger, ticketCodec, jobQueue,
		logger, time.Duration(cfg.Ticketing.CancelLockoutHours)*time.Hour)

	processor := worker.NewCredentialIssuer(regRepo, regService, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
