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

	"github.com/overplus/booking-service/internal/api"
	"github.com/overplus/booking-service/internal/config"
	"github.com/overplus/booking-service/internal/db"
	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/notify"
	"github.com/overplus/booking-service/internal/paymentlink"
	redisclient "github.com/overplus/booking-service/internal/redis"
	"github.com/overplus/booking-service/internal/slot"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"))
	logger.Info("api-server config loaded",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"hold_ttl", cfg.HoldTTL.String(),
		"payment_link_ttl", cfg.PaymentLinkTTL.String(),
	)

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

	// Connect Redis
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
	slots := slot.NewService(repo, locker, cfg, logger)

	linkRepo := paymentlink.NewPgRepository(pgPool)
	links := paymentlink.NewRegistry(linkRepo, cfg, logger)
	sweeper := slot.NewSweeper(repo, slots, linkRepo, logger)

	var channels []notify.Channel
	if ch := notify.NewEmailChannel(notify.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFrom,
	}, logger); ch != nil {
		channels = append(channels, ch)
	}
	if ch := notify.NewMessagingChannel(notify.MessagingConfig{
		AccountSID: cfg.TwilioSID,
		AuthToken:  cfg.TwilioToken,
		From:       cfg.TwilioFrom,
	}, logger); ch != nil {
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels configured, provider notifications disabled")
	}
	dispatcher := notify.NewDispatcher(channels, notify.NewPgAttemptStore(pgPool), cfg.NotifyMaxRetries, cfg.NotifyRetryDelay, logger)

	router := api.NewRouter(api.RouterConfig{
		Slots:      slots,
		Sweeper:    sweeper,
		Links:      links,
		Dispatcher: dispatcher,
		Logger:     logger,
		PgPool:     pgPool,
		Redis:      rdb,
		Env:        cfg.Env,
		Version:    version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("api-server stopped")
}
