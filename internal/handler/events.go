package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/middleware"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/sse"
)

// EventsHandler streams the hotel event feed to staff dashboards over SSE.
// Staff subscribe to their own hotel's channel; admins may request the
// all-hotels stream with ?stream=admin.
type EventsHandler struct {
	broker *sse.Broker
}

func NewEventsHandler(broker *sse.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	staff := middleware.GetStaff(r.Context())
	if staff == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	var client *sse.Client
	if r.URL.Query().Get("stream") == "admin" {
		if staff.Role != model.RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Admin stream requires admin role"})
			return
		}
		client = h.broker.SubscribeAdmin()
	} else {
		client = h.broker.SubscribeHotel(staff.HotelID)
	}
	defer h.broker.Unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	log.Info().
		Str("staffId", staff.ID).
		Str("channel", client.Channel).
		Msg("sse connection established")

	h.sendEvent(w, flusher, "connected", map[string]any{
		"staffId": staff.ID,
		"hotelId": staff.HotelID,
	})

	ctx := r.Context()
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("staffId", staff.ID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("staffId", staff.ID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("staffId", staff.ID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
