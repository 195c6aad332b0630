package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/asgared/elarcabeer/internal/catalog"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products map[string]*domain.Product
	err      error
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]*domain.Product{
		"p1": {ID: "p1", Name: "Arca IPA", Variants: []domain.Variant{
			{ID: "v1", ProductID: "p1", Name: "6-pack", Price: 15000},
			{ID: "v0", ProductID: "p1", Name: "sample", Price: 0},
		}},
		"p2": {ID: "p2", Name: "Arca Stout", Variants: []domain.Variant{
			{ID: "v2", ProductID: "p2", Name: "4-pack", Price: 1800},
		}},
	}}
}

func newTestValidator(t *testing.T, products ProductLookup) *Validator {
	v, err := NewValidator(products, "usd", "es", []string{"es", "en"})
	require.NoError(t, err)
	return v
}

func validBody() map[string]any {
	return map[string]any{
		"userId":   "u1",
		"customer": map[string]any{"email": "ana@example.com", "name": "Ana"},
		"shippingAddress": map[string]any{
			"label": "Home", "street": "Calle 1", "city": "Madrid", "country": "ES", "postal": "28001",
		},
		"currency": "EUR",
		"locale":   "en",
		"items": []any{
			map[string]any{"productId": "p1", "variantId": "v1", "quantity": 2},
		},
	}
}

func encode(t *testing.T, body any) []byte {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return b
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected *ValidationError, got %v", err)
	assert.Equal(t, field, ve.Field, ve.Message)
}

func TestValidate_Valid(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	o, err := v.Validate(context.Background(), encode(t, validBody()))
	require.NoError(t, err)

	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "ana@example.com", o.Customer.Email)
	assert.Equal(t, "Ana", o.Customer.Name)
	assert.Equal(t, "Madrid", o.Shipping.City)
	assert.Equal(t, "eur", o.Currency)
	assert.Equal(t, "en", o.Locale)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Arca IPA (6-pack)", o.Items[0].Name)
	assert.Equal(t, int64(15000), o.Items[0].UnitAmount)
	assert.Equal(t, int64(30000), o.Total())
}

func TestValidate_MissingShippingFieldNamesThatField(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	for _, field := range []string{"label", "street", "city", "country", "postal"} {
		t.Run(field, func(t *testing.T) {
			missing := validBody()
			delete(missing["shippingAddress"].(map[string]any), field)
			_, err := v.Validate(context.Background(), encode(t, missing))
			requireField(t, err, "shippingAddress."+field)

			blank := validBody()
			blank["shippingAddress"].(map[string]any)[field] = "   "
			_, err = v.Validate(context.Background(), encode(t, blank))
			requireField(t, err, "shippingAddress."+field)
		})
	}
}

func TestValidate_FirstFailureWins(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	tests := []struct {
		name   string
		mutate func(b map[string]any)
		field  string
	}{
		{"missing user", func(b map[string]any) { delete(b, "userId") }, "userId"},
		{"empty user", func(b map[string]any) { b["userId"] = "" }, "userId"},
		{"user before items", func(b map[string]any) {
			delete(b, "userId")
			b["items"] = []any{}
		}, "userId"},
		{"empty items", func(b map[string]any) { b["items"] = []any{} }, "items"},
		{"items not array", func(b map[string]any) { b["items"] = "p1" }, "items"},
		{"missing email", func(b map[string]any) { delete(b, "customer") }, "customer.email"},
		{"email before shipping", func(b map[string]any) {
			delete(b, "customer")
			delete(b, "shippingAddress")
		}, "customer.email"},
		{"missing shipping", func(b map[string]any) { delete(b, "shippingAddress") }, "shippingAddress"},
		{"label before postal", func(b map[string]any) {
			s := b["shippingAddress"].(map[string]any)
			delete(s, "postal")
			delete(s, "label")
		}, "shippingAddress.label"},
		{"shipping before items", func(b map[string]any) {
			delete(b["shippingAddress"].(map[string]any), "city")
			b["items"] = []any{map[string]any{"productId": 7, "variantId": "v1", "quantity": 1}}
		}, "shippingAddress.city"},
		{"product id type", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": 7, "variantId": "v1", "quantity": 1}}
		}, "items[0].productId"},
		{"variant id missing", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "p1", "quantity": 1}}
		}, "items[0].variantId"},
		{"zero quantity", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "p1", "variantId": "v1", "quantity": 0}}
		}, "items[0].quantity"},
		{"fractional quantity", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "p1", "variantId": "v1", "quantity": 1.5}}
		}, "items[0].quantity"},
		{"earlier item first", func(b map[string]any) {
			b["items"] = []any{
				map[string]any{"productId": "p1", "variantId": "v1", "quantity": 1},
				map[string]any{"productId": "p1", "variantId": "v1", "quantity": -1},
				map[string]any{"productId": "p1"},
			}
		}, "items[1].quantity"},
		{"quantity above cap", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "p1", "variantId": "v1", "quantity": 100}}
		}, "items[0].quantity"},
		{"item order beats check order", func(b map[string]any) {
			b["items"] = []any{
				map[string]any{"productId": "nope", "variantId": "v1", "quantity": 1},
				map[string]any{"productId": "p1", "variantId": "v1", "quantity": 0},
			}
		}, "items[0].productId"},
		{"unknown product", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "nope", "variantId": "v1", "quantity": 1}}
		}, "items[0].productId"},
		{"variant of other product", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "p1", "variantId": "v2", "quantity": 1}}
		}, "items[0].variantId"},
		{"variant without price", func(b map[string]any) {
			b["items"] = []any{map[string]any{"productId": "p1", "variantId": "v0", "quantity": 1}}
		}, "items[0].price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validBody()
			tt.mutate(body)
			_, err := v.Validate(context.Background(), encode(t, body))
			requireField(t, err, tt.field)
		})
	}
}

func TestValidate_QuantityNumberForms(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	tests := []struct {
		name     string
		quantity string
		want     int
		field    string
	}{
		{"exponent within range", `5e1`, 50, ""},
		{"exponent above cap", `1e2`, 0, "items[0].quantity"},
		{"beyond int64", `100000000000000000000`, 0, "items[0].quantity"},
		{"max int64", `9223372036854775807`, 0, "items[0].quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"userId":"u1","customer":{"email":"ana@example.com"},` +
				`"shippingAddress":{"label":"Home","street":"Calle 1","city":"Madrid","country":"ES","postal":"28001"},` +
				`"items":[{"productId":"p1","variantId":"v1","quantity":` + tt.quantity + `}]}`

			o, err := v.Validate(context.Background(), []byte(body))
			if tt.field != "" {
				requireField(t, err, tt.field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.Items[0].Quantity)
			assert.Equal(t, int64(tt.want)*15000, o.Total())
		})
	}
}

func TestValidate_RejectsTotalsThatOverflow(t *testing.T) {
	products := &fakeCatalog{products: map[string]*domain.Product{
		"big": {ID: "big", Name: "Barrel", Variants: []domain.Variant{
			{ID: "b1", ProductID: "big", Name: "whole", Price: math.MaxInt64 / 50},
		}},
	}}
	v := newTestValidator(t, products)

	body := validBody()
	body["items"] = []any{
		map[string]any{"productId": "big", "variantId": "b1", "quantity": 49},
		map[string]any{"productId": "big", "variantId": "b1", "quantity": 2},
	}
	_, err := v.Validate(context.Background(), encode(t, body))
	requireField(t, err, "items[1].quantity")

	body["items"] = []any{map[string]any{"productId": "big", "variantId": "b1", "quantity": 51}}
	_, err = v.Validate(context.Background(), encode(t, body))
	requireField(t, err, "items[0].quantity")
}

func TestValidate_BodyMustBeObject(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	for _, body := range []string{`[]`, `"x"`, `null`, `{"userId":`, ``} {
		_, err := v.Validate(context.Background(), []byte(body))
		requireField(t, err, "body")
	}
}

func TestValidate_IgnoresClientPrices(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	body := validBody()
	body["items"] = []any{
		map[string]any{"productId": "p1", "variantId": "v1", "quantity": 3, "price": 1, "unitAmount": 1, "name": "free beer"},
		map[string]any{"productId": "p2", "variantId": "v2", "quantity": 1, "price": 0},
	}

	o, err := v.Validate(context.Background(), encode(t, body))
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(15000), o.Items[0].UnitAmount)
	assert.Equal(t, "Arca IPA (6-pack)", o.Items[0].Name)
	assert.Equal(t, int64(1800), o.Items[1].UnitAmount)
	assert.Equal(t, int64(3*15000+1800), o.Total())
}

func TestValidate_Defaults(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	tests := []struct {
		currency, locale   any
		wantCur, wantLocal string
	}{
		{"USD", "es", "usd", "es"},
		{"euro", "fr", "usd", "es"},
		{"e1r", nil, "usd", "es"},
		{nil, 42, "usd", "es"},
		{"gbp", "en", "gbp", "en"},
	}
	for _, tt := range tests {
		body := validBody()
		body["currency"], body["locale"] = tt.currency, tt.locale
		o, err := v.Validate(context.Background(), encode(t, body))
		require.NoError(t, err)
		assert.Equal(t, tt.wantCur, o.Currency)
		assert.Equal(t, tt.wantLocal, o.Locale)
	}
}

func TestValidate_LegacyCustomerEmail(t *testing.T) {
	v := newTestValidator(t, testCatalog())

	body := validBody()
	delete(body, "customer")
	body["customerEmail"] = "legacy@example.com"
	body["customerName"] = "Leg"

	o, err := v.Validate(context.Background(), encode(t, body))
	require.NoError(t, err)
	assert.Equal(t, "legacy@example.com", o.Customer.Email)
	assert.Equal(t, "Leg", o.Customer.Name)
}

func TestValidate_CatalogFailureIsNotValidationError(t *testing.T) {
	v := newTestValidator(t, &fakeCatalog{err: errors.New("sqlite: database is locked")})

	_, err := v.Validate(context.Background(), encode(t, validBody()))
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}
