package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_hold_requests_total",
		Help: "Hold attempts by outcome (granted, conflict, busy).",
	}, []string{"outcome"})

	Confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_confirmations_total",
		Help: "Confirm attempts by outcome (confirmed, expired, mismatch, not_held).",
	}, []string{"outcome"})

	SweepReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sweep_releases_total",
		Help: "Expired holds released by the sweeper.",
	})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sweep_errors_total",
		Help: "Per-slot release failures during sweeps.",
	})

	LinkRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_payment_link_redemptions_total",
		Help: "Payment link redemptions by outcome (redeemed, already_used, expired, not_found).",
	}, []string{"outcome"})

	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_notify_attempts_total",
		Help: "Notification channel attempts by channel and outcome (sent, failed).",
	}, []string{"channel", "outcome"})

	DispatchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_notify_jobs_total",
		Help: "Notification jobs by final state (delivered, exhausted).",
	}, []string{"state"})
)
