package data

import (
	"context"
	"encoding/json"

	"EscrowLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/nats-io/nats.go"
)

// EventBusImpl implements biz.EventBus over NATS. Publication is best
// effort: with no configured URL, or when the broker is unreachable, events
// are logged and dropped so custody operations never block on the bus.
type EventBusImpl struct {
	conn    *nats.Conn
	subject string
	logger  *log.Helper
}

// NewEventBus creates the NATS event publisher. An empty URL selects the
// logging no-op implementation; a failed connection degrades the same way.
func NewEventBus(c *conf.Data, logger log.Logger) (*EventBusImpl, func(), error) {
	helper := log.NewHelper(logger)

	bus := &EventBusImpl{
		logger: helper,
	}
	cleanup := func() {
		if bus.conn != nil {
			bus.conn.Drain()
		}
	}

	if c.Nats == nil || c.Nats.Url == "" {
		helper.Info("event bus disabled, domain events will only be logged")
		return bus, cleanup, nil
	}
	bus.subject = c.Nats.Subject

	conn, err := nats.Connect(c.Nats.Url,
		nats.Name("escrowlane"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		helper.Warnw("NATS connection failed, events will only be logged",
			"url", c.Nats.Url,
			"error", err)
		return bus, cleanup, nil
	}

	helper.Infow("NATS connected", "url", c.Nats.Url, "subject", bus.subject)
	bus.conn = conn
	return bus, cleanup, nil
}

// envelope is the wire shape of a published domain event.
type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Publish sends the event to the configured subject. Errors are returned for
// the caller to log; they never fail the originating operation.
func (b *EventBusImpl) Publish(ctx context.Context, eventType string, payload interface{}) error {
	if b.conn == nil {
		b.logger.Debugw("domain event", "type", eventType)
		return nil
	}

	data, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subject, data)
}
