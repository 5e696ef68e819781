package data

import (
	"context"
	"encoding/json"
	"time"

	"EscrowLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for escrow_audit_logs table
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	ProgramID string    `gorm:"column:program_id;size:128;not null;index"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	Details   string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "escrow_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger interface
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger with async channel
func NewAuditLogger(db *gorm.DB, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async logging
	go al.start()

	return al
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write audit log",
				"program_id", event.ProgramID,
				"event_type", event.EventType,
				"error", err)
		} else {
			a.logger.Debugw("audit log written",
				"program_id", event.ProgramID,
				"event_type", event.EventType)
		}
	}
}

// enqueue marshals the details and queues the event without blocking.
func (a *AuditLoggerImpl) enqueue(programID, eventType string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	event := &AuditLog{
		ProgramID: programID,
		EventType: eventType,
		Details:   string(detailsJSON),
	}

	select {
	case a.logChan <- event:
		// Successfully queued
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"program_id", programID,
			"event_type", eventType)
	}
}

// LogProgramInitialized logs escrow program creation
func (a *AuditLoggerImpl) LogProgramInitialized(ctx context.Context, programID, authorizedSigner string) {
	a.enqueue(programID, model.AuditEventProgramInitialized, map[string]interface{}{
		"authorized_signer": authorizedSigner,
	})
}

// LogFundsLocked logs funds entering custody, program-level or bounty-level
func (a *AuditLoggerImpl) LogFundsLocked(ctx context.Context, programID, bountyID string, amount, total, remaining int64) {
	eventType := model.AuditEventFundsLocked
	if bountyID != "" {
		eventType = model.AuditEventBountyLocked
	}
	a.enqueue(programID, eventType, map[string]interface{}{
		"bounty_id":         bountyID,
		"amount":            amount,
		"total_funds":       total,
		"remaining_balance": remaining,
	})
}

// LogPayoutExecuted logs a completed payout line item
func (a *AuditLoggerImpl) LogPayoutExecuted(ctx context.Context, programID, recipient string, amount int64, bountyID string, nonce uint64) {
	eventType := model.AuditEventPayoutExecuted
	if bountyID != "" {
		eventType = model.AuditEventBountyReleased
	}
	a.enqueue(programID, eventType, map[string]interface{}{
		"recipient": recipient,
		"amount":    amount,
		"bounty_id": bountyID,
		"nonce":     nonce,
	})
}

// LogThresholdBreached logs a circuit breaker trip with its cooldown deadline
func (a *AuditLoggerImpl) LogThresholdBreached(ctx context.Context, breach *model.ThresholdBreach, cooldownEnd time.Time) {
	a.enqueue("", model.AuditEventThresholdBreached, map[string]interface{}{
		"metric":       breach.Metric,
		"threshold":    breach.Threshold,
		"actual":       breach.Actual,
		"breach_count": breach.BreachCount,
		"cooldown_end": cooldownEnd.Format(time.RFC3339),
	})
}

// LogThresholdConfigured logs a threshold configuration change
func (a *AuditLoggerImpl) LogThresholdConfigured(ctx context.Context, cfg *model.ThresholdConfig) {
	a.enqueue("", model.AuditEventThresholdConfigSet, map[string]interface{}{
		"failure_rate_threshold":   cfg.FailureRateThreshold,
		"outflow_volume_threshold": cfg.OutflowVolumeThreshold,
		"max_single_payout":        cfg.MaxSinglePayout,
		"time_window_secs":         cfg.TimeWindowSecs,
		"cooldown_period_secs":     cfg.CooldownPeriodSecs,
		"cooldown_multiplier":      cfg.CooldownMultiplier,
	})
}
