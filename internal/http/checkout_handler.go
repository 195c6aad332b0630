package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/asgared/elarcabeer/internal/checkout"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/payment"
)

type CheckoutValidator interface {
	Validate(ctx context.Context, body []byte) (*domain.CheckoutOrder, error)
}

type SessionInitiator interface {
	CreateSession(ctx context.Context, o *domain.CheckoutOrder) (string, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (checkout.Outcome, error)
}

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

type CheckoutHandler struct {
	validator CheckoutValidator
	initiator SessionInitiator
	webhooks  WebhookProcessor
	carts     CartClearer
	timeout   time.Duration
	log       *slog.Logger
}

func NewCheckoutHandler(v CheckoutValidator, i SessionInitiator, wp WebhookProcessor, carts CartClearer, timeout time.Duration, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		validator: v,
		initiator: i,
		webhooks:  wp,
		carts:     carts,
		timeout:   timeout,
		log:       log,
	}
}

type CheckoutResponseDTO struct {
	SessionID string `json:"sessionId"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "request body could not be read",
			Code:  "validation_error",
			Field: "body",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.validator.Validate(ctx, body)
	if err != nil {
		if respondValidation(w, err) {
			return
		}
		h.log.ErrorContext(ctx, "checkout validation failed", "error", err, "request_id", getRequestID(r.Context()))
		respondInternal(w)
		return
	}

	sessionID, err := h.initiator.CreateSession(ctx, order)
	if err != nil {
		// the initiator already logged the provider error
		respondError(w, http.StatusInternalServerError, "checkout_failed", checkout.ErrSessionFailed.Error())
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponseDTO{SessionID: sessionID})
}

// POST /api/v1/webhooks/stripe
//
// The body is read raw and untouched: the signature covers the exact bytes.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body could not be read")
		return
	}

	// Processing runs to completion even if the provider hangs up.
	ctx := context.WithoutCancel(r.Context())

	outcome, err := h.webhooks.Process(ctx, payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	case errors.Is(err, payment.ErrMalformedEvent):
		respondError(w, http.StatusBadRequest, "invalid_event", "invalid event payload")
		return
	case err != nil:
		respondInternal(w)
		return
	}

	h.log.DebugContext(ctx, "webhook acknowledged", "outcome", outcome.String())
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// POST /api/v1/checkout/success
func (h *CheckoutHandler) Success(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.carts.Clear(ctx, id.UserID); err != nil {
		h.log.ErrorContext(ctx, "failed to clear cart after checkout", "user_id", id.UserID, "error", err)
		respondInternal(w)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
