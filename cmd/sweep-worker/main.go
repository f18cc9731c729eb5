package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/overplus/booking-service/internal/config"
	"github.com/overplus/booking-service/internal/db"
	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/paymentlink"
	redisclient "github.com/overplus/booking-service/internal/redis"
	"github.com/overplus/booking-service/internal/slot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("sweep-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"))
	logger.Info("sweep-worker config loaded", "env", cfg.Env, "interval", cfg.SweepInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	repo := slot.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	svc := slot.NewService(repo, locker, cfg, logger)
	sweeper := slot.NewSweeper(repo, svc, paymentlink.NewPgRepository(pgPool), logger)

	// Run once at startup
	runOnce(rootCtx, sweeper, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, sweeper, logger)
		}
	}
}

func runOnce(ctx context.Context, sweeper *slot.Sweeper, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	report := sweeper.Sweep(runCtx, time.Now())
	logger.Info("sweep run complete",
		"released", report.Released,
		"links_expired", report.LinksExpired,
		"errors", len(report.Errors),
		"duration", time.Since(start).String(),
	)
	for _, msg := range report.Errors {
		logger.Warn("sweep item error", "error", msg)
	}
}
