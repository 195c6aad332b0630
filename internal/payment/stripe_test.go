package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
)

const testSecret = "whsec_test_secret"

func signHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_abc"}, nil
}

func TestCreateSession_BuildsLineItemsAndMetadata(t *testing.T) {
	fake := &fakeSessions{}
	p := &StripeProvider{sessions: fake, webhookSecret: testSecret}

	id, err := p.CreateSession(context.Background(), SessionParams{
		Currency:      "usd",
		Locale:        "es",
		CustomerEmail: "ana@example.com",
		SuccessURL:    "https://shop.test/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://shop.test/cart",
		Lines: []SessionLine{
			{ProductID: "p1", VariantID: "v1", Name: "Arca IPA (6-pack)", Quantity: 2, UnitAmount: 15000},
		},
		Metadata: map[string]string{"order_total": "30000", "user_id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_abc", id)

	params := fake.params
	require.NotNil(t, params)
	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, "es", *params.Locale)
	assert.Equal(t, "ana@example.com", *params.CustomerEmail)
	require.Len(t, params.LineItems, 1)
	li := params.LineItems[0]
	assert.Equal(t, int64(15000), *li.PriceData.UnitAmount)
	assert.Equal(t, int64(2), *li.Quantity)
	assert.Equal(t, "usd", *li.PriceData.Currency)
	assert.Equal(t, "v1", li.PriceData.ProductData.Metadata["variantId"])
	assert.Equal(t, "30000", params.Metadata["order_total"])
	assert.Equal(t, "u1", params.Metadata["user_id"])
}

func TestCreateSession_ProviderError(t *testing.T) {
	p := &StripeProvider{sessions: &fakeSessions{err: errors.New("invalid_request_error")}}

	_, err := p.CreateSession(context.Background(), SessionParams{Currency: "usd"})
	assert.ErrorContains(t, err, "create checkout session")
}

func TestVerifyAndParseEvent_CheckoutCompleted(t *testing.T) {
	p := &StripeProvider{webhookSecret: testSecret}
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"amount_total": 30000,
			"currency": "usd",
			"payment_status": "paid",
			"payment_intent": "pi_123",
			"customer_email": "ana@example.com",
			"metadata": {"user_id": "u1", "order_total": "30000"}
		}}
	}`)

	ev, err := p.VerifyAndParseEvent(payload, signHeader(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutSessionCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "cs_test_1", ev.Session.ID)
	assert.Equal(t, int64(30000), ev.Session.AmountTotal)
	assert.Equal(t, "pi_123", ev.Session.PaymentIntentID)
	assert.Equal(t, "paid", ev.Session.PaymentStatus)
	assert.Equal(t, "u1", ev.Session.Metadata["user_id"])
}

func TestVerifyAndParseEvent_OtherType(t *testing.T) {
	p := &StripeProvider{webhookSecret: testSecret}
	payload := []byte(`{"id":"evt_2","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`)

	ev, err := p.VerifyAndParseEvent(payload, signHeader(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.created", ev.Type)
	assert.Nil(t, ev.Session)
}

func TestVerifyAndParseEvent_BadSignature(t *testing.T) {
	p := &StripeProvider{webhookSecret: testSecret}
	payload := []byte(`{"id":"evt_3","type":"checkout.session.completed"}`)

	_, err := p.VerifyAndParseEvent(payload, signHeader(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.VerifyAndParseEvent(payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAndParseEvent_TamperedBody(t *testing.T) {
	p := &StripeProvider{webhookSecret: testSecret}
	payload := []byte(`{"id":"evt_4","type":"checkout.session.completed"}`)
	header := signHeader(payload, testSecret, time.Now())

	tampered := []byte(`{"id":"evt_4","type":"checkout.session.completed" }`)
	_, err := p.VerifyAndParseEvent(tampered, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAndParseEvent_MalformedJSON(t *testing.T) {
	p := &StripeProvider{webhookSecret: testSecret}
	payload := []byte(`{"id": "evt_5", "type":`)

	_, err := p.VerifyAndParseEvent(payload, signHeader(payload, testSecret, time.Now()))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
