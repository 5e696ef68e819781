package main

import (
	"context"
	"time"

	"EscrowLane/internal/biz"
	"EscrowLane/internal/model"
	"EscrowLane/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartWindowSnapshotCron starts the periodic circuit breaker snapshot job.
// Every minute it reads the monitor state read-only, refreshes the exported
// gauges, and publishes a snapshot event for external dashboards. The job is
// purely observational; it never mutates breaker state.
func StartWindowSnapshotCron(monitor *biz.ThresholdMonitor, events biz.EventBus, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	// On the minute, every minute.
	_, err := c.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cs, err := monitor.State(ctx)
		if err != nil {
			helper.Errorw("msg", "window snapshot failed", "error", err)
			return
		}

		metrics.WindowFailures.Set(float64(cs.CurrentWindow.FailureCount))
		metrics.WindowOutflow.Set(float64(cs.CurrentWindow.TotalOutflow))
		if cs.CooldownActive {
			metrics.CooldownActive.Set(1)
			metrics.CooldownSecondsRemaining.Set(cs.CooldownRemaining.Seconds())
		} else {
			metrics.CooldownActive.Set(0)
			metrics.CooldownSecondsRemaining.Set(0)
		}

		if err := events.Publish(ctx, model.AuditEventWindowSnapshot, cs); err != nil {
			helper.Warnw("msg", "window snapshot publish failed", "error", err)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register window snapshot cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Info("window snapshot cron job started: runs every minute")

	return c
}
