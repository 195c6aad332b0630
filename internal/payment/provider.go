package payment

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature    = errors.New("webhook signature verification failed")
	ErrMalformedEvent      = errors.New("webhook event could not be parsed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

type SessionLine struct {
	ProductID  string
	VariantID  string
	Name       string
	Quantity   int
	UnitAmount int64 // cents
}

type SessionParams struct {
	Currency      string
	Locale        string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Lines         []SessionLine
	Metadata      map[string]string
}

// CompletedSession is the part of a completed hosted checkout we act on.
type CompletedSession struct {
	ID              string
	AmountTotal     int64
	Currency        string
	PaymentIntentID string
	PaymentStatus   string
	CustomerEmail   string
	Metadata        map[string]string
}

type Event struct {
	ID      string
	Type    string
	Session *CompletedSession // set only for checkout.session.completed
}

// Provider is the narrow boundary to the hosted payment provider.
type Provider interface {
	CreateSession(ctx context.Context, params SessionParams) (string, error)
	VerifyAndParseEvent(payload []byte, signature string) (*Event, error)
}
