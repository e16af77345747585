package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudnine/checkin-server-go/internal/checkin"
	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/middleware"
)

type CheckInHandler struct {
	orchestrator *checkin.Orchestrator
}

func NewCheckInHandler(orchestrator *checkin.Orchestrator) *CheckInHandler {
	return &CheckInHandler{orchestrator: orchestrator}
}

func (h *CheckInHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/redeem", h.Redeem)
	r.Post("/{processID}/cancel", h.Cancel)
	r.Get("/{processID}/status", h.Status)

	return r
}

// POST /v1/checkin/redeem
func (h *CheckInHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	staff := middleware.GetStaff(r.Context())
	if staff == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		Token       string   `json:"token"`
		HotelID     string   `json:"hotelId"`
		RoomNumbers []string `json:"roomNumbers"`
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

	result, err := h.orchestrator.RedeemCheckIn(r.Context(), req.Token, staff, req.HotelID, checkin.RedeemOptions{
		RoomNumbers: req.RoomNumbers,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/checkin/{processID}/cancel
func (h *CheckInHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")

	process, err := h.orchestrator.Cancel(r.Context(), processID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"process": process,
	})
}

// GET /v1/checkin/{processID}/status
func (h *CheckInHandler) Status(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")

	process, err := h.orchestrator.ProcessStatus(r.Context(), processID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, process)
}
