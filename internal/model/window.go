package model

import "time"

// WindowMetrics holds activity counters for one monitoring window.
// Exactly one current and one previous window exist at any time; the
// previous window is retained read-only for audit.
type WindowMetrics struct {
	WindowStart      time.Time
	FailureCount     uint32
	SuccessCount     uint32
	TotalOutflow     int64
	MaxSingleOutflow int64
	BreachCount      uint32
}

// ThresholdBreach describes a single circuit breaker trip. It is emitted
// to the audit trail and event bus, never stored as mutable state.
type ThresholdBreach struct {
	Metric      string
	Threshold   int64
	Actual      int64
	BreachCount uint32
	Timestamp   time.Time
}

// Breach metric identifiers
const (
	BreachMetricFailureRate   = "failure_rate"
	BreachMetricOutflowVolume = "outflow_volume"
	BreachMetricSinglePayout  = "single_payout"
)

// CircuitState is a read-only snapshot of the breaker for monitoring
// surfaces. CooldownRemaining is zero when the breaker is closed.
type CircuitState struct {
	CooldownActive    bool
	CooldownEnd       time.Time
	CooldownRemaining time.Duration
	CooldownExponent  uint32
	CurrentWindow     WindowMetrics
	PreviousWindow    WindowMetrics
}
