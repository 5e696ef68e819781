package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	PayoutsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_payouts_total",
		Help: "The total number of executed payouts",
	}, []string{"program_id", "kind"})

	PayoutsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_payouts_rejected_total",
		Help: "The total number of rejected payout attempts by reason",
	}, []string{"program_id", "reason"})

	OutflowVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_outflow_volume_total",
		Help: "Total value paid out",
	}, []string{"program_id"})

	FundsLocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_funds_locked_total",
		Help: "Total value locked into escrow programs",
	}, []string{"program_id"})

	ThresholdBreaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_threshold_breaches_total",
		Help: "Total number of threshold breaches by metric type",
	}, []string{"metric"})

	CooldownActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_cooldown_active",
		Help: "Whether the circuit breaker cooldown is currently active (1) or not (0)",
	})

	CooldownSecondsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_cooldown_seconds_remaining",
		Help: "Seconds until the circuit breaker cooldown expires",
	})

	NonceRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_nonce_rejections_total",
		Help: "Total number of rejected nonce validations (replay or gap)",
	}, []string{"signer"})

	WindowFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_window_failures",
		Help: "Failure count in the current monitoring window",
	})

	WindowOutflow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_window_outflow",
		Help: "Total outflow in the current monitoring window",
	})
)
