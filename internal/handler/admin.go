package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloudnine/checkin-server-go/internal/audit"
	"github.com/cloudnine/checkin-server-go/internal/metrics"
	"github.com/cloudnine/checkin-server-go/internal/middleware"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/sse"
)

// AdminHandler exposes the operational surfaces: aggregate counters and the
// recent security event ring. Admin role only.
type AdminHandler struct {
	metrics *metrics.Recorder
	auditor *audit.Recorder
	broker  *sse.Broker
}

func NewAdminHandler(metricsRecorder *metrics.Recorder, auditor *audit.Recorder, broker *sse.Broker) *AdminHandler {
	return &AdminHandler{metrics: metricsRecorder, auditor: auditor, broker: broker}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/metrics", h.Metrics)
	r.Get("/security-events", h.SecurityEvents)

	return r
}

func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	staff := middleware.GetStaff(r.Context())
	if staff == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return false
	}
	if staff.Role != model.RoleAdmin && staff.Role != model.RoleManager {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Insufficient role"})
		return false
	}
	return true
}

// GET /v1/admin/metrics
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	snapshot, err := h.metrics.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read metrics"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"counters":   snapshot,
		"sseClients": h.broker.TotalClients(),
	})
}

// GET /v1/admin/security-events?limit=50
func (h *AdminHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.auditor.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read security events"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
