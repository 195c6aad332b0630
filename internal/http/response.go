package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/asgared/elarcabeer/internal/checkout"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondValidation reports a checkout input failure; any other error is an
// internal failure and its text is not exposed.
func respondValidation(w http.ResponseWriter, err error) bool {
	var ve *checkout.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error: ve.Message,
		Code:  "validation_error",
		Field: ve.Field,
	})
	return true
}

func respondInternal(w http.ResponseWriter) {
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// formatAmount renders minor units with the currency's own number of decimals.
func formatAmount(amount int64, currency string) string {
	exp := domain.CurrencyExponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}
