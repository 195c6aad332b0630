package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/session"
)

// AdminSessionHandler trades an identity-provider JWT for an opaque admin
// session cookie.
type AdminSessionHandler struct {
	sessions SessionStore
	secret   []byte
	cookie   string
	ttl      time.Duration
	secure   bool
	timeout  time.Duration
	log      *slog.Logger
}

type AdminSessionConfig struct {
	JWTSecret     []byte
	CookieName    string
	TTL           time.Duration
	SecureCookies bool
}

func NewAdminSessionHandler(store SessionStore, cfg AdminSessionConfig, timeout time.Duration, log *slog.Logger) *AdminSessionHandler {
	return &AdminSessionHandler{
		sessions: store,
		secret:   cfg.JWTSecret,
		cookie:   cfg.CookieName,
		ttl:      cfg.TTL,
		secure:   cfg.SecureCookies,
		timeout:  timeout,
		log:      log,
	}
}

type LoginRequestDTO struct {
	Token string `json:"token"`
}

type MeResponseDTO struct {
	UserID       string              `json:"user_id"`
	Email        string              `json:"email,omitempty"`
	Roles        []domain.Role       `json:"roles"`
	Capabilities []domain.Capability `json:"capabilities"`
}

func convertIdentity(id *domain.Identity) MeResponseDTO {
	caps := session.Capabilities(id.Roles)
	if caps == nil {
		caps = []domain.Capability{}
	}
	roles := id.Roles
	if roles == nil {
		roles = []domain.Role{}
	}
	return MeResponseDTO{UserID: id.UserID, Email: id.Email, Roles: roles, Capabilities: caps}
}

// POST /api/v1/admin/sessions
func (h *AdminSessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		var req LoginRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		raw = req.Token
	}

	id, err := ParseToken(h.secret, raw)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	if !session.Has(id.Roles, domain.CapViewDashboard) {
		respondError(w, http.StatusUnauthorized, "unauthorized", "insufficient permissions")
		return
	}

	token, err := h.sessions.Create(ctx, *id, h.ttl)
	if err != nil {
		h.log.ErrorContext(ctx, "create admin session failed", "user_id", id.UserID, "error", err)
		respondInternal(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.log.InfoContext(ctx, "admin session created", "user_id", id.UserID)
	respondJSON(w, http.StatusCreated, convertIdentity(id))
}

// DELETE /api/v1/admin/sessions
func (h *AdminSessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if c, err := r.Cookie(h.cookie); err == nil && c.Value != "" {
		if err := h.sessions.Delete(ctx, c.Value); err != nil {
			h.log.ErrorContext(ctx, "delete admin session failed", "error", err)
			respondInternal(w)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/admin/me
func (h *AdminSessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "admin session required")
		return
	}
	respondJSON(w, http.StatusOK, convertIdentity(id))
}
