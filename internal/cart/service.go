package cart

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
	now   func() time.Time
	sfg   singleflight.Group
}

func NewService(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the mirrored cart, or an empty one if the user has none.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		c, err := s.cache.Get(ctx, userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.WarnContext(ctx, "cart cache get failed", "user_id", userID, "error", err)
		}

		c, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			return &domain.Cart{UserID: userID}, nil
		}
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, userID, c); err != nil {
			s.log.WarnContext(ctx, "cart cache set failed", "user_id", userID, "error", err)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// Dispatch applies an action to the stored cart and persists the result.
func (s *Service) Dispatch(ctx context.Context, userID string, a Action) (*domain.Cart, error) {
	if a.Type == ActionClear {
		if err := s.Clear(ctx, userID); err != nil {
			return nil, err
		}
		return &domain.Cart{UserID: userID}, nil
	}

	current, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		current = &domain.Cart{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	next, err := Reduce(*current, a, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertCart(ctx, &next); err != nil {
		return nil, err
	}

	s.invalidate(userID)
	return &next, nil
}

// Clear drops the mirrored cart. Clearing a cart that does not exist is not an error.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.DeleteCart(ctx, userID); err != nil && !errors.Is(err, ErrCartNotFound) {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *Service) invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", "user_id", userID, "error", err)
	}
}

// HandleOrderCreated clears the buyer's mirror once their order is persisted.
func (s *Service) HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error {
	if ev.UserID == "" {
		return nil
	}
	return s.Clear(ctx, ev.UserID)
}
