package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// Handler processes a single event. A returned error redelivers the message.
type Handler func(ctx context.Context, event *Event) error

// Config configures the NATS connection and the JetStream stream.
type Config struct {
	URL        string
	Name       string
	StreamName string
	Subjects   []string
	AckWait    time.Duration
	MaxDeliver int
}

// Bus publishes and consumes events over NATS JetStream.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  Config
}

// Connect opens the connection and makes sure the stream exists.
func Connect(cfg Config) (*Bus, error) {
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 10
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	bus := &Bus{conn: conn, js: js, cfg: cfg}
	if err := bus.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return bus, nil
}

func (b *Bus) ensureStream() error {
	if b.cfg.StreamName == "" {
		return nil
	}
	_, err := b.js.StreamInfo(b.cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", b.cfg.StreamName, err)
	}

	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:      b.cfg.StreamName,
		Subjects:  b.cfg.Subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", b.cfg.StreamName, err)
	}
	logger.Info("created jetstream stream", zap.String("stream", b.cfg.StreamName), zap.Strings("subjects", b.cfg.Subjects))
	return nil
}

// Conn exposes the underlying connection for health checks.
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}

// Publish sends event on subject, deduplicated by its MsgID.
func (b *Bus) Publish(ctx context.Context, subject string, event *Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := b.js.Publish(subject, raw, nats.Context(ctx), nats.MsgId(event.MsgID())); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a durable push consumer on subject.
func (b *Bus) Subscribe(ctx context.Context, subject, durable string, handler Handler) error {
	_, err := b.js.Subscribe(subject, func(msg *nats.Msg) {
		action, delay := dispatch(ctx, msg.Data, handler)
		var ackErr error
		switch action {
		case ackDone:
			ackErr = msg.Ack()
		case ackLater:
			ackErr = msg.NakWithDelay(delay)
		case ackRetry:
			ackErr = msg.Nak()
		case ackDrop:
			ackErr = msg.Term()
		}
		if ackErr != nil {
			logger.Warn("failed to acknowledge message", zap.String("subject", msg.Subject), zap.Error(ackErr))
		}
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(b.cfg.AckWait),
		nats.MaxDeliver(b.cfg.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (b *Bus) Close() {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
	}
}

type ackAction int

const (
	ackDone ackAction = iota
	ackRetry
	ackLater
	ackDrop
)

// dispatch decodes a message and runs handler, returning how the message should be acknowledged.
func dispatch(ctx context.Context, data []byte, handler Handler) (ackAction, time.Duration) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Error("dropping undecodable event", zap.Error(err))
		return ackDrop, 0
	}

	if event.NotBefore != nil {
		if wait := time.Until(*event.NotBefore); wait > 0 {
			return ackLater, wait
		}
	}

	eventCtx := logger.ContextWithCorrelationID(ctx, event.ID)
	if err := handler(eventCtx, &event); err != nil {
		logger.WithContext(eventCtx).Warn("event handler failed, redelivering",
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return ackRetry, 0
	}
	return ackDone, 0
}
