package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerProvider fails session creation fast while the provider keeps failing.
// It never retries; a failed checkout is resubmitted by the customer.
type BreakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker[string]
}

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func WithBreaker(p Provider, s BreakerSettings) *BreakerProvider {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
	})
	return &BreakerProvider{Provider: p, cb: cb}
}

func (b *BreakerProvider) CreateSession(ctx context.Context, params SessionParams) (string, error) {
	id, err := b.cb.Execute(func() (string, error) {
		return b.Provider.CreateSession(ctx, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return id, err
}

func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}
