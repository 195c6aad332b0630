package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	msgs      []kafka.Message
	committed []int64
	fetchErr  error
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		return kafka.Message{}, r.fetchErr
	}
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *mockReader) Close() error { return nil }

func orderMessage(t *testing.T, offset int64, eventType string, ev domain.OrderCreatedEvent) kafka.Message {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{
		Offset:  offset,
		Key:     []byte(ev.OrderID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
}

func TestConsumer_HandlesOrderCreated(t *testing.T) {
	ev := domain.OrderCreatedEvent{OrderID: "o1", UserID: "u1", Total: 30000, Currency: "usd"}
	reader := &mockReader{msgs: []kafka.Message{orderMessage(t, 7, domain.EventTypeOrderCreated, ev)}}

	var got []domain.OrderCreatedEvent
	c := &Consumer{reader: reader, log: logger.Discard(), handle: func(_ context.Context, e domain.OrderCreatedEvent) error {
		got = append(got, e)
		return nil
	}}

	c.processMessage(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, int64(30000), got[0].Total)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestConsumer_SkipsOtherEventTypes(t *testing.T) {
	reader := &mockReader{msgs: []kafka.Message{orderMessage(t, 1, "order.cancelled", domain.OrderCreatedEvent{OrderID: "o1"})}}
	called := false
	c := &Consumer{reader: reader, log: logger.Discard(), handle: func(context.Context, domain.OrderCreatedEvent) error {
		called = true
		return nil
	}}

	c.processMessage(context.Background())
	assert.False(t, called)
	assert.Equal(t, []int64{1}, reader.committed)
}

func TestConsumer_CommitsUndecodableMessages(t *testing.T) {
	reader := &mockReader{msgs: []kafka.Message{{Offset: 3, Value: []byte("not json")}}}
	calls := 0
	c := &Consumer{reader: reader, log: logger.Discard(), handle: func(context.Context, domain.OrderCreatedEvent) error {
		calls++
		return nil
	}}

	c.processMessage(context.Background())

	assert.Zero(t, calls)
	assert.Equal(t, []int64{3}, reader.committed)
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	reader := &mockReader{msgs: []kafka.Message{
		orderMessage(t, 9, domain.EventTypeOrderCreated, domain.OrderCreatedEvent{OrderID: "o2", UserID: "u1"}),
	}}
	calls := 0
	c := &Consumer{reader: reader, log: logger.Discard(), retryDelay: time.Millisecond, maxRetryDelay: 4 * time.Millisecond,
		handle: func(context.Context, domain.OrderCreatedEvent) error {
			calls++
			if calls < 3 {
				return errors.New("postgres: connection refused")
			}
			return nil
		}}

	c.processMessage(context.Background())

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{9}, reader.committed)
}

func TestConsumer_CommitsUnprocessableEvents(t *testing.T) {
	reader := &mockReader{msgs: []kafka.Message{
		orderMessage(t, 4, domain.EventTypeOrderCreated, domain.OrderCreatedEvent{OrderID: "not-a-uuid"}),
	}}
	calls := 0
	c := &Consumer{reader: reader, log: logger.Discard(), retryDelay: time.Millisecond,
		handle: func(context.Context, domain.OrderCreatedEvent) error {
			calls++
			return fmt.Errorf("%w: bad order id", ErrUnprocessable)
		}}

	c.processMessage(context.Background())

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{4}, reader.committed)
}

func TestConsumer_FailingHandlerNeverCommitsOnShutdown(t *testing.T) {
	reader := &mockReader{msgs: []kafka.Message{
		orderMessage(t, 9, domain.EventTypeOrderCreated, domain.OrderCreatedEvent{OrderID: "o2", UserID: "u1"}),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	c := &Consumer{reader: reader, log: logger.Discard(), retryDelay: time.Millisecond, maxRetryDelay: 2 * time.Millisecond,
		handle: func(context.Context, domain.OrderCreatedEvent) error {
			if calls.Add(1) == 5 {
				cancel()
			}
			return errors.New("redis: connection refused")
		}}

	c.processMessage(ctx)

	assert.GreaterOrEqual(t, calls.Load(), int32(5))
	assert.Empty(t, reader.committed)
}

func TestComputeBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, computeBackoff(100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, computeBackoff(100*time.Millisecond, time.Second, 10))
	assert.Equal(t, defaultRetryDelay, computeBackoff(0, time.Minute, 0))
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	c := &Consumer{reader: &mockReader{}, log: logger.Discard(), handle: func(context.Context, domain.OrderCreatedEvent) error { return nil }}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
