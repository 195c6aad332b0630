package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type LoyaltyReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

type AccountHandler struct {
	loyalty LoyaltyReader
	timeout time.Duration
	log     *slog.Logger
}

func NewAccountHandler(loyalty LoyaltyReader, timeout time.Duration, log *slog.Logger) *AccountHandler {
	return &AccountHandler{loyalty: loyalty, timeout: timeout, log: log}
}

type LoyaltyResponseDTO struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}

// GET /api/v1/account/loyalty
func (h *AccountHandler) Loyalty(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	points, err := h.loyalty.Balance(ctx, id.UserID)
	if err != nil {
		h.log.ErrorContext(ctx, "loyalty balance failed", "user_id", id.UserID, "error", err)
		respondInternal(w)
		return
	}
	respondJSON(w, http.StatusOK, LoyaltyResponseDTO{UserID: id.UserID, Points: points})
}
