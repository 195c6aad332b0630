package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/segmentio/kafka-go"
)

// Handler reacts to a persisted order. It must be idempotent: events are
// delivered at least once. Returning an error wrapping ErrUnprocessable
// commits the event without retrying; any other error is retried.
type Handler func(ctx context.Context, ev domain.OrderCreatedEvent) error

// ErrUnprocessable marks an event that no amount of retrying will fix.
var ErrUnprocessable = errors.New("unprocessable order event")

const (
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds order.created events from Kafka to a Handler. Each
// downstream concern runs its own consumer group.
type Consumer struct {
	reader messageReader
	handle Handler
	log    *slog.Logger

	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

func NewConsumer(topic, groupID string, handle Handler, log *slog.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{
		reader:        reader,
		handle:        handle,
		log:           log.With("group", groupID),
		retryDelay:    defaultRetryDelay,
		maxRetryDelay: defaultMaxRetryDelay,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.log.ErrorContext(ctx, "error reading message", "error", err)
		return
	}

	if t := header(m, "event_type"); t != "" && t != domain.EventTypeOrderCreated {
		c.commit(ctx, m)
		return
	}

	var ev domain.OrderCreatedEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.ErrorContext(ctx, "error parsing message", "offset", m.Offset, "error", err)
		c.commit(ctx, m)
		return
	}

	if err := c.handleWithRetry(ctx, ev); err != nil {
		if !errors.Is(err, ErrUnprocessable) {
			// shutting down; the uncommitted offset is redelivered to the group
			return
		}
		c.log.ErrorContext(ctx, "dropping unprocessable order event", "order_id", ev.OrderID, "offset", m.Offset, "error", err)
	}
	c.commit(ctx, m)
}

// handleWithRetry keeps calling the handler until it succeeds, reports an
// unprocessable event, or ctx ends. It never skips a retryable failure.
func (c *Consumer) handleWithRetry(ctx context.Context, ev domain.OrderCreatedEvent) error {
	for attempt := 0; ; attempt++ {
		err := c.handle(ctx, ev)
		if err == nil || errors.Is(err, ErrUnprocessable) {
			return err
		}

		delay := computeBackoff(c.retryDelay, c.maxRetryDelay, attempt)
		c.log.WarnContext(ctx, "order event handler failed, retrying",
			"order_id", ev.OrderID, "attempt", attempt+1, "delay", delay.String(), "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func computeBackoff(initial, limit time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = defaultRetryDelay
	}
	d := initial
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.ErrorContext(ctx, "commit failed", "offset", m.Offset, "error", err)
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
