package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/notify"
	"github.com/overplus/booking-service/internal/paymentlink"
	"github.com/overplus/booking-service/internal/slot"
)

type RouterConfig struct {
	Slots      *slot.Service
	Sweeper    *slot.Sweeper
	Links      *paymentlink.Registry
	Dispatcher *notify.Dispatcher
	Logger     *logging.Logger
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Slot reservation lifecycle
	r.Get("/slots/{id}", getSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/hold", holdSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/confirm", confirmSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/release", releaseSlotHandler(cfg.Slots))

	// Sweeper
	r.Get("/sweep-status", sweepStatusHandler(cfg.Sweeper))
	r.Post("/sweep", sweepHandler(cfg.Sweeper))

	// Payment links
	r.Post("/payment-links", issuePaymentLinkHandler(cfg.Links, cfg.Slots))
	r.Get("/payment-links/resolve", resolvePaymentLinkHandler(cfg.Links))
	r.Post("/payment-links/redeem", redeemPaymentLinkHandler(cfg.Links))
	r.Post("/payments/callback", paymentCallbackHandler(cfg.Links, cfg.Slots, cfg.Dispatcher, cfg.Logger))

	// Provider notification
	r.Post("/notify", notifyHandler(cfg.Dispatcher))

	return r
}
