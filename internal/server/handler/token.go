package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/leagueauction/internal/server/middleware"
)

// TokenHandler lets operators mint participant tokens.
type TokenHandler struct {
	secret string
	ttl    time.Duration
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler signing with secret.
func NewTokenHandler(secret string, ttl time.Duration, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{secret: secret, ttl: ttl, logger: logHandler(logger, "token")}
}

type tokenRequest struct {
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken signs a token for one participant.
// POST /api/tokens
func (h *TokenHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}
	if h.secret == "" {
		writeError(w, http.StatusNotFound, "participant tokens are not configured")
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = middleware.RoleParticipant
	}
	tok, exp, err := middleware.IssueToken(h.secret, strings.TrimSpace(req.ParticipantID), role, h.ttl, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.InfoContext(r.Context(), "handler: token issued",
		slog.String("participant_id", req.ParticipantID),
		slog.String("role", role),
	)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: tok, ExpiresAt: exp})
}
