package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/payment"
)

// SessionIDPlaceholder is substituted by the provider when it redirects back.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type Initiator struct {
	provider   payment.Provider
	successURL string
	cancelURL  string
	log        *slog.Logger
}

func NewInitiator(provider payment.Provider, successURL, cancelURL string, log *slog.Logger) *Initiator {
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return &Initiator{
		provider:   provider,
		successURL: successURL + sep + "session_id=" + SessionIDPlaceholder,
		cancelURL:  cancelURL,
		log:        log,
	}
}

// CreateSession opens a hosted checkout for a validated order. It makes a
// single provider call; a failure is reported as ErrSessionFailed.
func (i *Initiator) CreateSession(ctx context.Context, o *domain.CheckoutOrder) (string, error) {
	md, err := EncodeMetadata(o)
	if err != nil {
		return "", err
	}

	lines := make([]payment.SessionLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, payment.SessionLine{
			ProductID:  item.ProductID,
			VariantID:  item.VariantID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitAmount: item.UnitAmount,
		})
	}

	sessionID, err := i.provider.CreateSession(ctx, payment.SessionParams{
		Currency:      o.Currency,
		Locale:        o.Locale,
		CustomerEmail: o.Customer.Email,
		SuccessURL:    i.successURL,
		CancelURL:     i.cancelURL,
		Lines:         lines,
		Metadata:      md,
	})
	if err != nil {
		i.log.ErrorContext(ctx, "checkout session creation failed",
			"user_id", o.UserID, "items", len(o.Items), "error", err)
		return "", fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}

	i.log.InfoContext(ctx, "checkout session created",
		"user_id", o.UserID, "session_id", sessionID, "total", o.Total(), "currency", o.Currency)
	return sessionID, nil
}
