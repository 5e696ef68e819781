package model

import "time"

// ThresholdConfig is the circuit breaker configuration. Updates replace the
// whole config atomically; an invalid field rejects the update without
// storing anything.
type ThresholdConfig struct {
	FailureRateThreshold   uint32
	OutflowVolumeThreshold int64
	MaxSinglePayout        int64
	TimeWindowSecs         uint64
	CooldownPeriodSecs     uint64
	CooldownMultiplier     uint32
}

// ThresholdState is the full persisted breaker state: config, the current
// and previous monitoring windows, and the cooldown backoff position.
type ThresholdState struct {
	Config           ThresholdConfig
	Current          WindowMetrics
	Previous         WindowMetrics
	CooldownEnd      time.Time
	CooldownExponent uint32
}
