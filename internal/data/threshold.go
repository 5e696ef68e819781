package data

import (
	"context"
	"errors"
	"strconv"
	"time"

	"EscrowLane/internal/model"
	pkgerrors "EscrowLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// thresholdStateID is the key of the singleton threshold_state row.
const thresholdStateID = 1

// ThresholdRow is the GORM model for threshold_state. Exactly one row
// exists; timestamps are stored as unix seconds so a zeroed cooldown is
// representable without nullable columns.
type ThresholdRow struct {
	ID                     uint32 `gorm:"primaryKey;column:id"`
	FailureRateThreshold   uint32 `gorm:"column:failure_rate_threshold;not null"`
	OutflowVolumeThreshold int64  `gorm:"column:outflow_volume_threshold;not null"`
	MaxSinglePayout        int64  `gorm:"column:max_single_payout;not null"`
	TimeWindowSecs         uint64 `gorm:"column:time_window_secs;not null"`
	CooldownPeriodSecs     uint64 `gorm:"column:cooldown_period_secs;not null"`
	CooldownMultiplier     uint32 `gorm:"column:cooldown_multiplier;not null"`

	CurrWindowStart      int64  `gorm:"column:curr_window_start;not null;default:0"`
	CurrFailureCount     uint32 `gorm:"column:curr_failure_count;not null;default:0"`
	CurrSuccessCount     uint32 `gorm:"column:curr_success_count;not null;default:0"`
	CurrTotalOutflow     int64  `gorm:"column:curr_total_outflow;not null;default:0"`
	CurrMaxSingleOutflow int64  `gorm:"column:curr_max_single_outflow;not null;default:0"`
	CurrBreachCount      uint32 `gorm:"column:curr_breach_count;not null;default:0"`

	PrevWindowStart      int64  `gorm:"column:prev_window_start;not null;default:0"`
	PrevFailureCount     uint32 `gorm:"column:prev_failure_count;not null;default:0"`
	PrevSuccessCount     uint32 `gorm:"column:prev_success_count;not null;default:0"`
	PrevTotalOutflow     int64  `gorm:"column:prev_total_outflow;not null;default:0"`
	PrevMaxSingleOutflow int64  `gorm:"column:prev_max_single_outflow;not null;default:0"`
	PrevBreachCount      uint32 `gorm:"column:prev_breach_count;not null;default:0"`

	CooldownEnd      int64     `gorm:"column:cooldown_end;not null;default:0"`
	CooldownExponent uint32    `gorm:"column:cooldown_exponent;not null;default:0"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (ThresholdRow) TableName() string {
	return "threshold_state"
}

func (r *ThresholdRow) toModel() *model.ThresholdState {
	s := &model.ThresholdState{
		Config: model.ThresholdConfig{
			FailureRateThreshold:   r.FailureRateThreshold,
			OutflowVolumeThreshold: r.OutflowVolumeThreshold,
			MaxSinglePayout:        r.MaxSinglePayout,
			TimeWindowSecs:         r.TimeWindowSecs,
			CooldownPeriodSecs:     r.CooldownPeriodSecs,
			CooldownMultiplier:     r.CooldownMultiplier,
		},
		Current: model.WindowMetrics{
			WindowStart:      time.Unix(r.CurrWindowStart, 0),
			FailureCount:     r.CurrFailureCount,
			SuccessCount:     r.CurrSuccessCount,
			TotalOutflow:     r.CurrTotalOutflow,
			MaxSingleOutflow: r.CurrMaxSingleOutflow,
			BreachCount:      r.CurrBreachCount,
		},
		Previous: model.WindowMetrics{
			WindowStart:      time.Unix(r.PrevWindowStart, 0),
			FailureCount:     r.PrevFailureCount,
			SuccessCount:     r.PrevSuccessCount,
			TotalOutflow:     r.PrevTotalOutflow,
			MaxSingleOutflow: r.PrevMaxSingleOutflow,
			BreachCount:      r.PrevBreachCount,
		},
		CooldownExponent: r.CooldownExponent,
	}
	if r.CooldownEnd > 0 {
		s.CooldownEnd = time.Unix(r.CooldownEnd, 0)
	}
	return s
}

func rowFromModel(s *model.ThresholdState) *ThresholdRow {
	r := &ThresholdRow{
		ID:                     thresholdStateID,
		FailureRateThreshold:   s.Config.FailureRateThreshold,
		OutflowVolumeThreshold: s.Config.OutflowVolumeThreshold,
		MaxSinglePayout:        s.Config.MaxSinglePayout,
		TimeWindowSecs:         s.Config.TimeWindowSecs,
		CooldownPeriodSecs:     s.Config.CooldownPeriodSecs,
		CooldownMultiplier:     s.Config.CooldownMultiplier,

		CurrWindowStart:      s.Current.WindowStart.Unix(),
		CurrFailureCount:     s.Current.FailureCount,
		CurrSuccessCount:     s.Current.SuccessCount,
		CurrTotalOutflow:     s.Current.TotalOutflow,
		CurrMaxSingleOutflow: s.Current.MaxSingleOutflow,
		CurrBreachCount:      s.Current.BreachCount,

		PrevFailureCount:     s.Previous.FailureCount,
		PrevSuccessCount:     s.Previous.SuccessCount,
		PrevTotalOutflow:     s.Previous.TotalOutflow,
		PrevMaxSingleOutflow: s.Previous.MaxSingleOutflow,
		PrevBreachCount:      s.Previous.BreachCount,

		CooldownExponent: s.CooldownExponent,
	}
	if !s.Previous.WindowStart.IsZero() {
		r.PrevWindowStart = s.Previous.WindowStart.Unix()
	}
	if !s.CooldownEnd.IsZero() {
		r.CooldownEnd = s.CooldownEnd.Unix()
	}
	return r
}

// ThresholdRepo implements biz.ThresholdRepo: the singleton MySQL state row
// plus a Redis TTL key as the cooldown fast path.
type ThresholdRepo struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *log.Helper
}

// NewThresholdRepo creates a new threshold state repository.
func NewThresholdRepo(db *gorm.DB, rdb *redis.Client, logger log.Logger) *ThresholdRepo {
	return &ThresholdRepo{
		db:     db,
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// LoadState returns the singleton state, or nil before first use.
func (r *ThresholdRepo) LoadState(ctx context.Context) (*model.ThresholdState, error) {
	var row ThresholdRow
	err := r.db.WithContext(ctx).Where("id = ?", thresholdStateID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}
	return row.toModel(), nil
}

// SaveState upserts the singleton row.
func (r *ThresholdRepo) SaveState(ctx context.Context, s *model.ThresholdState) error {
	row := rowFromModel(s)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return pkgerrors.ClassifyDBError(err)
	}
	return nil
}

// MarkCooldown records the cooldown deadline in Redis, expiring with the
// cooldown itself. Best effort; a nil client is a silent no-op.
func (r *ThresholdRepo) MarkCooldown(ctx context.Context, until time.Time) error {
	if r.rdb == nil {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, CacheKeyCooldown, strconv.FormatInt(until.Unix(), 10), ttl).Err()
}

// CooldownUntil reads the Redis cooldown deadline. found is false when the
// key is absent or Redis is unavailable.
func (r *ThresholdRepo) CooldownUntil(ctx context.Context) (time.Time, bool, error) {
	if r.rdb == nil {
		return time.Time{}, false, nil
	}
	val, err := r.rdb.Get(ctx, CacheKeyCooldown).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		r.logger.Warnw("malformed cooldown flag", "value", val)
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0), true, nil
}
