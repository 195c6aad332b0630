package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/orders"
	"github.com/asgared/elarcabeer/internal/payment"
	"github.com/google/uuid"
)

// Outcome is how an acknowledged webhook delivery was handled.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeIgnored
	OutcomeMissingUser
	OutcomeDuplicate
	OutcomeEmptyCart
	OutcomeOrderCreated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeMissingUser:
		return "missing_user"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeEmptyCart:
		return "empty_cart"
	case OutcomeOrderCreated:
		return "order_created"
	default:
		return "rejected"
	}
}

// OrderStore is the persistence the webhook needs.
type OrderStore interface {
	GetPaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error)
	CreateOrder(ctx context.Context, o *domain.Order) error
}

type WebhookProcessor struct {
	provider payment.Provider
	orders   OrderStore
	log      *slog.Logger
}

func NewWebhookProcessor(provider payment.Provider, store OrderStore, log *slog.Logger) *WebhookProcessor {
	return &WebhookProcessor{provider: provider, orders: store, log: log}
}

// Process handles one delivery. payment.ErrInvalidSignature and
// payment.ErrMalformedEvent mean the delivery must not be retried;
// ErrPersistence means it should be.
func (w *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := w.provider.VerifyAndParseEvent(payload, signature)
	if err != nil {
		w.log.WarnContext(ctx, "webhook rejected", "error", err)
		return OutcomeRejected, err
	}

	if ev.Type != payment.EventCheckoutSessionCompleted || ev.Session == nil {
		w.log.DebugContext(ctx, "webhook event ignored", "event_id", ev.ID, "type", ev.Type)
		return OutcomeIgnored, nil
	}
	s := ev.Session
	log := w.log.With("event_id", ev.ID, "session_id", s.ID)

	userID := strings.TrimSpace(s.Metadata[MetaUserID])
	if userID == "" {
		log.WarnContext(ctx, "completed session without user_id, acknowledging")
		return OutcomeMissingUser, nil
	}

	if _, err := w.orders.GetPaymentBySessionID(ctx, s.ID); err == nil {
		log.InfoContext(ctx, "duplicate delivery, order already exists")
		return OutcomeDuplicate, nil
	} else if !errors.Is(err, orders.ErrPaymentNotFound) {
		log.ErrorContext(ctx, "idempotency lookup failed", "error", err)
		return OutcomeRejected, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	items := DecodeCartItems(s.Metadata)
	if len(items) == 0 {
		log.WarnContext(ctx, "completed session has no usable cart items, acknowledging")
		return OutcomeEmptyCart, nil
	}

	order := buildOrder(s, userID, items)
	if err := w.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicatePayment) {
			log.InfoContext(ctx, "concurrent duplicate delivery, order already exists")
			return OutcomeDuplicate, nil
		}
		log.ErrorContext(ctx, "order persistence failed", "error", err)
		return OutcomeRejected, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	log.InfoContext(ctx, "order created", "order_id", order.ID, "user_id", userID, "total", order.Total)
	return OutcomeOrderCreated, nil
}

func buildOrder(s *payment.CompletedSession, userID string, items []domain.LineItem) *domain.Order {
	md := s.Metadata

	orderItems := make([]domain.OrderItem, 0, len(items))
	for _, li := range items {
		orderItems = append(orderItems, domain.OrderItem{
			ProductID:  li.ProductID,
			VariantID:  li.VariantID,
			Name:       li.Name,
			Quantity:   li.Quantity,
			UnitAmount: li.UnitAmount,
		})
	}

	currency := strings.ToLower(s.Currency)
	if currency == "" {
		currency = md[MetaCurrency]
	}
	email := md[MetaCustomerEmail]
	if email == "" {
		email = s.CustomerEmail
	}

	o := &domain.Order{
		ID:            uuid.New(),
		UserID:        userID,
		CustomerEmail: email,
		CustomerName:  md[MetaCustomerName],
		Currency:      currency,
		Status:        domain.OrderStatusPending,
		Shipping: domain.ShippingInfo{
			Label:   md[MetaShippingLabel],
			Street:  md[MetaShippingStreet],
			City:    md[MetaShippingCity],
			Country: md[MetaShippingCountry],
			Postal:  md[MetaShippingPostal],
		},
		Items: orderItems,
	}
	o.Total = resolveTotal(s.AmountTotal, OrderTotal(md), o.ItemsTotal())

	status := domain.PaymentStatusUnpaid
	if s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required" {
		status = domain.PaymentStatusPaid
	}
	o.Payment = &domain.Payment{
		ID:              uuid.New(),
		OrderID:         o.ID,
		StripeSessionID: s.ID,
		PaymentIntentID: s.PaymentIntentID,
		Amount:          o.Total,
		Currency:        currency,
		Status:          status,
	}
	return o
}

// resolveTotal prefers the charged amount, then the declared order_total,
// then the item sum. The declared total ranks above the recomputed sum even
// though it was produced before payment.
func resolveTotal(charged, declared, itemsSum int64) int64 {
	switch {
	case charged > 0:
		return charged
	case declared > 0:
		return declared
	default:
		return itemsSum
	}
}
