package payment

import (
	"context"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeProvider struct {
	sessions      sessionCreator
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{
		sessions:      api.CheckoutSessions,
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, sp SessionParams) (string, error) {
	params := buildSessionParams(sp)
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.ID, nil
}

func buildSessionParams(sp SessionParams) *stripe.CheckoutSessionParams {
	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(sp.Lines))
	for _, l := range sp.Lines {
		lines = append(lines, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(sp.Currency),
				UnitAmount: stripe.Int64(l.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
					Metadata: map[string]string{
						"productId": l.ProductID,
						"variantId": l.VariantID,
					},
				},
			},
			Quantity: stripe.Int64(int64(l.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(sp.SuccessURL),
		CancelURL:  stripe.String(sp.CancelURL),
		LineItems:  lines,
	}
	if sp.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(sp.CustomerEmail)
	}
	if sp.Locale != "" {
		params.Locale = stripe.String(sp.Locale)
	}
	for k, v := range sp.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

// VerifyAndParseEvent checks the Stripe-Signature header against the exact raw
// payload before anything is decoded.
func (p *StripeProvider) VerifyAndParseEvent(payload []byte, signature string) (*Event, error) {
	if err := webhook.ValidatePayload(payload, signature, p.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutSessionCompleted {
		return out, nil
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	cs := &CompletedSession{
		ID:            s.ID,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		PaymentStatus: string(s.PaymentStatus),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		cs.PaymentIntentID = s.PaymentIntent.ID
	}
	out.Session = cs
	return out, nil
}
