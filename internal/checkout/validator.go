package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/asgared/elarcabeer/internal/catalog"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

// ProductLookup is the read side of the catalog. It is the only source of prices.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

var checkoutSchema = fmt.Sprintf(`{
	"type": "object",
	"required": ["userId", "items", "shippingAddress"],
	"properties": {
		"userId": {"type": "string", "pattern": "\\S"},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["productId", "variantId", "quantity"],
				"properties": {
					"productId": {"type": "string", "pattern": "\\S"},
					"variantId": {"type": "string", "pattern": "\\S"},
					"quantity": {"type": "integer", "minimum": 1, "maximum": %d}
				}
			}
		},
		"customer": {
			"type": "object",
			"properties": {
				"email": {"type": "string"},
				"name": {"type": "string"}
			}
		},
		"customerEmail": {"type": "string"},
		"customerName": {"type": "string"},
		"shippingAddress": {
			"type": "object",
			"required": ["label", "street", "city", "country", "postal"],
			"properties": {
				"label": {"type": "string", "pattern": "\\S"},
				"street": {"type": "string", "pattern": "\\S"},
				"city": {"type": "string", "pattern": "\\S"},
				"country": {"type": "string", "pattern": "\\S"},
				"postal": {"type": "string", "pattern": "\\S"}
			}
		}
	}
}`, domain.MaxLineQuantity)

var shippingFields = []string{"label", "street", "city", "country", "postal"}

type request struct {
	UserID   string `json:"userId"`
	Customer *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer"`
	CustomerEmail   string              `json:"customerEmail"`
	CustomerName    string              `json:"customerName"`
	ShippingAddress domain.ShippingInfo `json:"shippingAddress"`
	Currency        any                 `json:"currency"`
	Locale          any                 `json:"locale"`
	Items           []json.RawMessage   `json:"items"`
}

// requestItem is decoded only after the schema accepted it. Quantity is a
// float so integral exponent forms like 5e1 decode.
type requestItem struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId"`
	Quantity  float64 `json:"quantity"`
}

type Validator struct {
	schema          *gojsonschema.Schema
	products        ProductLookup
	defaultCurrency string
	defaultLocale   string
	locales         []string
}

func NewValidator(products ProductLookup, defaultCurrency, defaultLocale string, supportedLocales []string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(checkoutSchema))
	if err != nil {
		return nil, fmt.Errorf("compile checkout schema: %w", err)
	}
	return &Validator{
		schema:          schema,
		products:        products,
		defaultCurrency: strings.ToLower(defaultCurrency),
		defaultLocale:   defaultLocale,
		locales:         supportedLocales,
	}, nil
}

// Validate turns a raw checkout body into a priced order. Input problems come
// back as *ValidationError; any other error is a catalog failure.
func (v *Validator) Validate(ctx context.Context, body []byte) (*domain.CheckoutOrder, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, invalid("body", "must be a JSON object")
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, invalid("body", "must be a JSON object")
	}

	var failures []*ValidationError
	for _, re := range result.Errors() {
		failures = append(failures, fromSchemaError(re))
	}
	if !hasEmail(raw) {
		failures = append(failures, invalid("customer.email", "is required"))
	}
	sort.SliceStable(failures, func(i, j int) bool {
		return fieldRank(failures[i].Field) < fieldRank(failures[j].Field)
	})

	// Request-level failures win outright. Item failures wait for their turn
	// so that item i is fully checked, catalog included, before item i+1.
	itemFailures := make(map[int]*ValidationError)
	for _, f := range failures {
		idx, ok := itemIndex(f.Field)
		if !ok {
			return nil, f
		}
		if _, seen := itemFailures[idx]; !seen {
			itemFailures[idx] = f
		}
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalid("body", "must be a JSON object")
	}

	order := &domain.CheckoutOrder{
		UserID:   strings.TrimSpace(req.UserID),
		Shipping: trimShipping(req.ShippingAddress),
		Currency: v.currency(req.Currency),
		Locale:   v.locale(req.Locale),
		Items:    make([]domain.LineItem, 0, len(req.Items)),
	}
	order.Customer.Email = strings.TrimSpace(req.CustomerEmail)
	order.Customer.Name = strings.TrimSpace(req.CustomerName)
	if req.Customer != nil {
		if e := strings.TrimSpace(req.Customer.Email); e != "" {
			order.Customer.Email = e
		}
		if n := strings.TrimSpace(req.Customer.Name); n != "" {
			order.Customer.Name = n
		}
	}

	var total int64
	for i, rawItem := range req.Items {
		if f := itemFailures[i]; f != nil {
			return nil, f
		}
		var item requestItem
		if err := json.Unmarshal(rawItem, &item); err != nil {
			return nil, invalid(itemField(i, "quantity"), "must be a positive integer")
		}

		line, err := v.priceItem(ctx, i, item.ProductID, item.VariantID, int(item.Quantity))
		if err != nil {
			return nil, err
		}
		if line.UnitAmount > math.MaxInt64/int64(line.Quantity) || total > math.MaxInt64-line.Subtotal() {
			return nil, invalid(itemField(i, "quantity"), "order total is out of range")
		}
		total += line.Subtotal()
		order.Items = append(order.Items, line)
	}
	return order, nil
}

func (v *Validator) priceItem(ctx context.Context, i int, productID, variantID string, qty int) (domain.LineItem, error) {
	p, err := v.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return domain.LineItem{}, invalid(itemField(i, "productId"), "unknown product %q", productID)
	}
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("lookup product %s: %w", productID, err)
	}

	variant, ok := p.Variant(variantID)
	if !ok || variant.ProductID != p.ID {
		return domain.LineItem{}, invalid(itemField(i, "variantId"), "unknown variant %q for product %q", variantID, productID)
	}
	if variant.Price <= 0 {
		return domain.LineItem{}, invalid(itemField(i, "price"), "variant %q has no valid price", variantID)
	}

	return domain.LineItem{
		ProductID:  p.ID,
		VariantID:  variant.ID,
		Name:       fmt.Sprintf("%s (%s)", p.Name, variant.Name),
		Quantity:   qty,
		UnitAmount: variant.Price,
	}, nil
}

func (v *Validator) currency(raw any) string {
	s, _ := raw.(string)
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return v.defaultCurrency
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return v.defaultCurrency
		}
	}
	return strings.ToLower(s)
}

func (v *Validator) locale(raw any) string {
	s, _ := raw.(string)
	if slices.Contains(v.locales, s) {
		return s
	}
	return v.defaultLocale
}

func hasEmail(raw map[string]any) bool {
	if c, ok := raw["customer"].(map[string]any); ok {
		if s, ok := c["email"].(string); ok && strings.TrimSpace(s) != "" {
			return true
		}
	}
	s, ok := raw["customerEmail"].(string)
	return ok && strings.TrimSpace(s) != ""
}

func trimShipping(s domain.ShippingInfo) domain.ShippingInfo {
	return domain.ShippingInfo{
		Label:   strings.TrimSpace(s.Label),
		Street:  strings.TrimSpace(s.Street),
		City:    strings.TrimSpace(s.City),
		Country: strings.TrimSpace(s.Country),
		Postal:  strings.TrimSpace(s.Postal),
	}
}

var arrayIndex = regexp.MustCompile(`\.(\d+)(\.|$)`)

func fromSchemaError(re gojsonschema.ResultError) *ValidationError {
	field := re.Field()
	// required errors are reported against the parent object
	if prop, ok := re.Details()["property"].(string); ok && re.Type() == "required" {
		if field == gojsonschema.STRING_CONTEXT_ROOT {
			field = prop
		} else {
			field += "." + prop
		}
	}
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = "body"
	}
	field = arrayIndex.ReplaceAllString(field, "[$1]$2")

	msg := re.Description()
	switch re.Type() {
	case "required":
		msg = "is required"
	case "pattern":
		msg = "must not be empty"
	case "array_min_items":
		msg = "must contain at least one item"
	case "number_gte", "invalid_type":
		if strings.HasSuffix(field, ".quantity") {
			msg = "must be a positive integer"
		}
	case "number_lte":
		msg = fmt.Sprintf("must be at most %d", domain.MaxLineQuantity)
	}
	return &ValidationError{Field: field, Message: msg}
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

var itemFieldPattern = regexp.MustCompile(`^items\[(\d+)\](?:\.(\w+))?`)

func itemIndex(field string) (int, bool) {
	m := itemFieldPattern.FindStringSubmatch(field)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	return idx, err == nil
}

// fieldRank orders failures so that the reported one is the first in check order.
func fieldRank(field string) int {
	switch {
	case field == "body":
		return 0
	case field == "userId":
		return 1
	case field == "items":
		return 2
	case field == "customer.email" || field == "customerEmail":
		return 3
	case field == "customer" || strings.HasPrefix(field, "customer"):
		return 4
	case field == "shippingAddress":
		return 5
	case strings.HasPrefix(field, "shippingAddress."):
		name := strings.TrimPrefix(field, "shippingAddress.")
		if i := slices.Index(shippingFields, name); i >= 0 {
			return 6 + i
		}
		return 11
	}
	if m := itemFieldPattern.FindStringSubmatch(field); m != nil {
		idx, _ := strconv.Atoi(m[1])
		return 100 + idx*10 + slices.Index([]string{"productId", "variantId", "quantity"}, m[2]) + 1
	}
	return 1 << 20
}
