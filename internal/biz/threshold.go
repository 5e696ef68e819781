package biz

import (
	"context"
	"fmt"
	"time"

	"EscrowLane/internal/conf"
	"EscrowLane/internal/model"
	"EscrowLane/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// maxCooldownSecs bounds the exponential backoff so repeated breaches cannot
// overflow the cooldown arithmetic or lock the service out for weeks.
const maxCooldownSecs = 7 * 24 * 3600

// ValidateThresholdConfig checks every config field against its allowed
// range. The whole config is rejected on the first violation.
func ValidateThresholdConfig(c *model.ThresholdConfig) error {
	if c.FailureRateThreshold < 1 || c.FailureRateThreshold > 1000 {
		return ErrInvalidThresholdConfig("failure_rate_threshold",
			fmt.Sprintf("must be in [1, 1000], got %d", c.FailureRateThreshold))
	}
	if c.OutflowVolumeThreshold <= 0 {
		return ErrInvalidThresholdConfig("outflow_volume_threshold",
			fmt.Sprintf("must be positive, got %d", c.OutflowVolumeThreshold))
	}
	if c.MaxSinglePayout <= 0 {
		return ErrInvalidThresholdConfig("max_single_payout",
			fmt.Sprintf("must be positive, got %d", c.MaxSinglePayout))
	}
	if c.TimeWindowSecs < 10 || c.TimeWindowSecs > 86400 {
		return ErrInvalidThresholdConfig("time_window_secs",
			fmt.Sprintf("must be in [10, 86400], got %d", c.TimeWindowSecs))
	}
	if c.CooldownPeriodSecs < 60 || c.CooldownPeriodSecs > 3600 {
		return ErrInvalidThresholdConfig("cooldown_period_secs",
			fmt.Sprintf("must be in [60, 3600], got %d", c.CooldownPeriodSecs))
	}
	if c.CooldownMultiplier < 1 {
		return ErrInvalidThresholdConfig("cooldown_multiplier",
			fmt.Sprintf("must be at least 1, got %d", c.CooldownMultiplier))
	}
	return nil
}

// ThresholdRepo persists the singleton breaker state and maintains the
// Redis cooldown fast path.
type ThresholdRepo interface {
	// LoadState returns the stored state, or nil when none exists yet.
	LoadState(ctx context.Context) (*model.ThresholdState, error)

	// SaveState upserts the singleton state row.
	SaveState(ctx context.Context, s *model.ThresholdState) error

	// MarkCooldown records the cooldown deadline in Redis with a TTL.
	// Best effort: errors are reported but never block a breach.
	MarkCooldown(ctx context.Context, until time.Time) error

	// CooldownUntil reads the Redis cooldown deadline. found is false when
	// no cooldown flag is set.
	CooldownUntil(ctx context.Context) (until time.Time, found bool, err error)
}

// ThresholdMonitor tracks payout activity over sliding time windows and
// trips a circuit breaker when failure counts, outflow volume, or a single
// oversized payout cross the configured thresholds. Each breach extends the
// cooldown exponentially; a window that closes without breaches resets the
// backoff ladder.
//
// Window rollover and cooldown expiry are pure functions of the clock,
// evaluated lazily on each call. No timers run.
type ThresholdMonitor struct {
	repo     ThresholdRepo
	clock    Clock
	events   EventBus
	audit    AuditLogger
	defaults model.ThresholdConfig
	logger   *log.Helper
}

// NewThresholdMonitor creates the threshold monitor use case. The bootstrap
// thresholds seed the persisted state on first use.
func NewThresholdMonitor(repo ThresholdRepo, clock Clock, events EventBus, audit AuditLogger, tc *conf.Thresholds, logger log.Logger) *ThresholdMonitor {
	return &ThresholdMonitor{
		repo:   repo,
		clock:  clock,
		events: events,
		audit:  audit,
		defaults: model.ThresholdConfig{
			FailureRateThreshold:   tc.FailureRateThreshold,
			OutflowVolumeThreshold: tc.OutflowVolumeThreshold,
			MaxSinglePayout:        tc.MaxSinglePayout,
			TimeWindowSecs:         tc.TimeWindowSecs,
			CooldownPeriodSecs:     tc.CooldownPeriodSecs,
			CooldownMultiplier:     tc.CooldownMultiplier,
		},
		logger: log.NewHelper(logger),
	}
}

// Admit decides whether a payout of the given amount may proceed. It is
// called after nonce validation and before any business check. The order of
// gates is load bearing: an active cooldown rejects before the single-payout
// cap is even considered, and a cap violation is itself a breach that opens
// the breaker.
func (m *ThresholdMonitor) Admit(ctx context.Context, amount int64) error {
	now := m.clock.Now()

	// Redis fast path: skip the DB round trip while a cooldown is known
	// to be open. Degrades silently to the persisted state on error.
	if until, found, err := m.repo.CooldownUntil(ctx); err == nil && found && now.Before(until) {
		m.observeCooldown(now, until)
		return ErrCooldownActive(until)
	}

	s, err := m.loadState(ctx, now)
	if err != nil {
		return err
	}
	rolled := m.rollover(s, now)

	if now.Before(s.CooldownEnd) {
		if rolled {
			if err := m.repo.SaveState(ctx, s); err != nil {
				return err
			}
		}
		m.observeCooldown(now, s.CooldownEnd)
		return ErrCooldownActive(s.CooldownEnd)
	}
	metrics.CooldownActive.Set(0)
	metrics.CooldownSecondsRemaining.Set(0)

	if amount > s.Config.MaxSinglePayout {
		breach := m.trip(ctx, s, now, model.BreachMetricSinglePayout, s.Config.MaxSinglePayout, amount)
		if err := m.repo.SaveState(ctx, s); err != nil {
			return err
		}
		m.emitBreach(ctx, breach, s.CooldownEnd)
		return ErrThresholdBreached(model.BreachMetricSinglePayout, s.Config.MaxSinglePayout, amount)
	}

	if rolled {
		if err := m.repo.SaveState(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// CheckCooldown is the amount-independent half of Admit: it rejects while a
// cooldown is open and nothing else. Call sites that must consult the breaker
// before the payout amount is known run this right after the nonce gate; the
// cap check stays in Admit once the amount has been resolved.
func (m *ThresholdMonitor) CheckCooldown(ctx context.Context) error {
	now := m.clock.Now()

	if until, found, err := m.repo.CooldownUntil(ctx); err == nil && found && now.Before(until) {
		m.observeCooldown(now, until)
		return ErrCooldownActive(until)
	}

	s, err := m.loadState(ctx, now)
	if err != nil {
		return err
	}
	rolled := m.rollover(s, now)
	if rolled {
		if err := m.repo.SaveState(ctx, s); err != nil {
			return err
		}
	}

	if now.Before(s.CooldownEnd) {
		m.observeCooldown(now, s.CooldownEnd)
		return ErrCooldownActive(s.CooldownEnd)
	}
	return nil
}

// RecordSuccess records one successful payout of the given amount. A breach
// discovered here opens the breaker for subsequent calls but does not fail
// the payout that already committed.
func (m *ThresholdMonitor) RecordSuccess(ctx context.Context, amount int64) error {
	return m.record(ctx, []int64{amount}, true)
}

// RecordBatchSuccess records every line item of a committed batch. The
// aggregate outflow of a single batch can trip the volume breach.
func (m *ThresholdMonitor) RecordBatchSuccess(ctx context.Context, amounts []int64) error {
	return m.record(ctx, amounts, true)
}

// RecordFailure records one failed payout attempt. Failures rejected by the
// nonce registry or by the breaker itself are not recorded.
func (m *ThresholdMonitor) RecordFailure(ctx context.Context) error {
	return m.record(ctx, nil, false)
}

func (m *ThresholdMonitor) record(ctx context.Context, amounts []int64, success bool) error {
	now := m.clock.Now()
	s, err := m.loadState(ctx, now)
	if err != nil {
		return err
	}
	m.rollover(s, now)

	if success {
		for _, a := range amounts {
			s.Current.SuccessCount++
			s.Current.TotalOutflow += a
			if a > s.Current.MaxSingleOutflow {
				s.Current.MaxSingleOutflow = a
			}
		}
	} else {
		s.Current.FailureCount++
	}

	var breach *model.ThresholdBreach
	if s.Current.FailureCount > s.Config.FailureRateThreshold {
		breach = m.trip(ctx, s, now, model.BreachMetricFailureRate,
			int64(s.Config.FailureRateThreshold), int64(s.Current.FailureCount))
	} else if s.Current.TotalOutflow > s.Config.OutflowVolumeThreshold {
		breach = m.trip(ctx, s, now, model.BreachMetricOutflowVolume,
			s.Config.OutflowVolumeThreshold, s.Current.TotalOutflow)
	}

	if err := m.repo.SaveState(ctx, s); err != nil {
		return err
	}

	metrics.WindowFailures.Set(float64(s.Current.FailureCount))
	metrics.WindowOutflow.Set(float64(s.Current.TotalOutflow))

	if breach != nil {
		m.emitBreach(ctx, breach, s.CooldownEnd)
	}
	return nil
}

// Configure validates and stores a new threshold configuration. Window
// metrics and cooldown state carry over unchanged.
func (m *ThresholdMonitor) Configure(ctx context.Context, cfg *model.ThresholdConfig) error {
	if err := ValidateThresholdConfig(cfg); err != nil {
		return err
	}
	now := m.clock.Now()
	s, err := m.loadState(ctx, now)
	if err != nil {
		return err
	}
	m.rollover(s, now)
	s.Config = *cfg
	if err := m.repo.SaveState(ctx, s); err != nil {
		return err
	}
	m.audit.LogThresholdConfigured(ctx, cfg)
	m.logger.Infow("threshold config updated",
		"failure_rate_threshold", cfg.FailureRateThreshold,
		"outflow_volume_threshold", cfg.OutflowVolumeThreshold,
		"max_single_payout", cfg.MaxSinglePayout,
		"time_window_secs", cfg.TimeWindowSecs,
		"cooldown_period_secs", cfg.CooldownPeriodSecs,
		"cooldown_multiplier", cfg.CooldownMultiplier)
	return nil
}

// Config returns the active threshold configuration.
func (m *ThresholdMonitor) Config(ctx context.Context) (*model.ThresholdConfig, error) {
	s, err := m.loadState(ctx, m.clock.Now())
	if err != nil {
		return nil, err
	}
	cfg := s.Config
	return &cfg, nil
}

// State returns a read-only snapshot of the breaker: both windows and the
// cooldown position. The rollover view is computed for the caller without
// persisting, so reads stay side-effect free.
func (m *ThresholdMonitor) State(ctx context.Context) (*model.CircuitState, error) {
	now := m.clock.Now()
	s, err := m.loadState(ctx, now)
	if err != nil {
		return nil, err
	}
	m.rollover(s, now)

	cs := &model.CircuitState{
		CooldownEnd:      s.CooldownEnd,
		CooldownExponent: s.CooldownExponent,
		CurrentWindow:    s.Current,
		PreviousWindow:   s.Previous,
	}
	if now.Before(s.CooldownEnd) {
		cs.CooldownActive = true
		cs.CooldownRemaining = s.CooldownEnd.Sub(now)
	}
	return cs, nil
}

// loadState fetches the persisted state, seeding it from the bootstrap
// defaults on first use.
func (m *ThresholdMonitor) loadState(ctx context.Context, now time.Time) (*model.ThresholdState, error) {
	s, err := m.repo.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &model.ThresholdState{
			Config:  m.defaults,
			Current: model.WindowMetrics{WindowStart: now},
		}
		if err := m.repo.SaveState(ctx, s); err != nil {
			return nil, err
		}
		m.logger.Infow("threshold state seeded from defaults",
			"window_start", now.Unix())
	}
	return s, nil
}

// rollover closes the current window when its span has elapsed. The closed
// window becomes the read-only previous window; a closed window with zero
// breaches resets the cooldown backoff exponent.
func (m *ThresholdMonitor) rollover(s *model.ThresholdState, now time.Time) bool {
	windowSpan := time.Duration(s.Config.TimeWindowSecs) * time.Second
	if now.Sub(s.Current.WindowStart) < windowSpan {
		return false
	}
	if s.Current.BreachCount == 0 {
		s.CooldownExponent = 0
	}
	s.Previous = s.Current
	s.Current = model.WindowMetrics{WindowStart: now}
	return true
}

// trip opens the breaker: the k-th breach of a backoff run cools down for
// cooldown_period × multiplier^(k−1), strictly longer each time for
// multiplier > 1.
func (m *ThresholdMonitor) trip(ctx context.Context, s *model.ThresholdState, now time.Time, metric string, threshold, actual int64) *model.ThresholdBreach {
	s.Current.BreachCount++

	durSecs := s.Config.CooldownPeriodSecs
	for i := uint32(0); i < s.CooldownExponent; i++ {
		durSecs *= uint64(s.Config.CooldownMultiplier)
		if durSecs >= maxCooldownSecs {
			durSecs = maxCooldownSecs
			break
		}
	}
	s.CooldownEnd = now.Add(time.Duration(durSecs) * time.Second)
	s.CooldownExponent++

	metrics.ThresholdBreaches.WithLabelValues(metric).Inc()
	m.observeCooldown(now, s.CooldownEnd)

	if err := m.repo.MarkCooldown(ctx, s.CooldownEnd); err != nil {
		m.logger.Warnw("cooldown fast path update failed", "error", err)
	}

	m.logger.Errorw("threshold breached, circuit breaker open",
		"metric", metric,
		"threshold", threshold,
		"actual", actual,
		"breach_count", s.Current.BreachCount,
		"cooldown_end", s.CooldownEnd.Unix(),
		"cooldown_secs", durSecs)

	return &model.ThresholdBreach{
		Metric:      metric,
		Threshold:   threshold,
		Actual:      actual,
		BreachCount: s.Current.BreachCount,
		Timestamp:   now,
	}
}

func (m *ThresholdMonitor) observeCooldown(now, until time.Time) {
	metrics.CooldownActive.Set(1)
	metrics.CooldownSecondsRemaining.Set(until.Sub(now).Seconds())
}

func (m *ThresholdMonitor) emitBreach(ctx context.Context, breach *model.ThresholdBreach, cooldownEnd time.Time) {
	m.audit.LogThresholdBreached(ctx, breach, cooldownEnd)
	ev := model.ThresholdBreachedEvent{
		Metric:      breach.Metric,
		Threshold:   breach.Threshold,
		Actual:      breach.Actual,
		BreachCount: breach.BreachCount,
		CooldownEnd: cooldownEnd,
		BreachedAt:  breach.Timestamp,
	}
	if err := m.events.Publish(ctx, model.AuditEventThresholdBreached, ev); err != nil {
		m.logger.Warnw("breach event publish failed", "error", err)
	}
}
