package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/middleware"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/token"
)

type TokenHandler struct {
	issuer    *token.Issuer
	validator *token.Validator
}

func NewTokenHandler(issuer *token.Issuer, validator *token.Validator) *TokenHandler {
	return &TokenHandler{issuer: issuer, validator: validator}
}

func (h *TokenHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Issue)
	r.Post("/validate", h.Validate)
	r.Post("/{tokenID}/revoke", h.Revoke)
	r.Get("/{tokenID}/status", h.Status)

	return r
}

// POST /v1/tokens
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	staff := middleware.GetStaff(r.Context())
	if staff == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		Type       model.TokenType `json:"type"`
		SubjectID  string          `json:"subjectId"`
		HotelID    string          `json:"hotelId"`
		Claims     json.RawMessage `json:"claims"`
		ExpiresIn  int             `json:"expiresIn"` // seconds
		UsageLimit int             `json:"usageLimit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.HotelID == "" {
		req.HotelID = staff.HotelID
	}
	if req.UsageLimit == 0 {
		req.UsageLimit = 1
	}

	if len(req.Claims) == 0 {
		writeError(w, apperrors.MissingRequired("claims"))
		return
	}
	claims, err := model.DecodeClaims(req.Type, req.Claims)
	if err != nil {
		writeError(w, apperrors.InvalidPayload(err.Error()))
		return
	}

	issued, err := h.issuer.Issue(r.Context(), token.IssueParams{
		Type:       req.Type,
		SubjectID:  req.SubjectID,
		HotelID:    req.HotelID,
		Claims:     claims,
		ExpiresIn:  time.Duration(req.ExpiresIn) * time.Second,
		UsageLimit: req.UsageLimit,
		IssuedBy:   &staff.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, issued)
}

// POST /v1/tokens/validate
// Dry-run validation: runs the full pipeline but consumes nothing.
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	staff := middleware.GetStaff(r.Context())
	if staff == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		Token   string          `json:"token"`
		Action  model.TokenType `json:"action"`
		HotelID string          `json:"hotelId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Token == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}
	if req.HotelID == "" {
		req.HotelID = staff.HotelID
	}
	if req.Action == "" {
		req.Action = model.TokenTypeCheckIn
	}

	result, err := h.validator.Validate(r.Context(), req.Token, token.Context{
		Action:  req.Action,
		HotelID: req.HotelID,
		Staff:   staff,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"result": result,
	})
}

// POST /v1/tokens/{tokenID}/revoke
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	staff := middleware.GetStaff(r.Context())
	if staff == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	tokenID := chi.URLParam(r, "tokenID")

	// The body is optional; revoking with no reason is allowed.
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Reason == "" {
		req.Reason = "revoked by staff"
	}

	revoked, err := h.issuer.Revoke(r.Context(), tokenID, req.Reason, staff)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("tokenId", tokenID).
		Str("staffId", staff.ID).
		Str("reason", req.Reason).
		Msg("token revoked")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   revoked,
	})
}

// GET /v1/tokens/{tokenID}/status
func (h *TokenHandler) Status(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")

	tok, err := h.issuer.Status(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tokenId":    tok.ID,
		"type":       tok.Type,
		"status":     tok.Status,
		"usageCount": tok.UsageCount,
		"usageLimit": tok.UsageLimit,
		"expiresAt":  tok.ExpiresAt.Format(time.RFC3339),
		"redeemable": tok.Redeemable(time.Now()),
	})
}
