// Package audit records security-relevant events: every validation failure,
// revocation and authorization finding, classified by severity. Events go to
// the structured log and to a bounded redis ring for the admin surface;
// high-severity events are additionally pushed to the operator channel.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/config"
	"github.com/cloudnine/checkin-server-go/internal/notify"
	redisclient "github.com/cloudnine/checkin-server-go/internal/redis"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type EventType string

const (
	EventTokenIssued         EventType = "token_issued"
	EventTokenRevoked        EventType = "token_revoked"
	EventValidationFailed    EventType = "validation_failed"
	EventValidationWarning   EventType = "validation_warning"
	EventAuthorizationDenied EventType = "authorization_denied"
	EventUsageExceeded       EventType = "usage_exceeded"
	EventCheckInFailed       EventType = "checkin_failed"
)

type Event struct {
	Type     EventType      `json:"type"`
	Severity Severity       `json:"severity"`
	TokenID  string         `json:"tokenId,omitempty"`
	HotelID  string         `json:"hotelId,omitempty"`
	StaffID  string         `json:"staffId,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// Recorder writes classified security events. The notifier is optional; when
// set, high-severity events are escalated to operators immediately.
type Recorder struct {
	client   *redisclient.Client
	notifier notify.Notifier
}

func NewRecorder(client *redisclient.Client, notifier notify.Notifier) *Recorder {
	return &Recorder{client: client, notifier: notifier}
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	logEvent(event)

	if r.client != nil {
		data, err := json.Marshal(event)
		if err == nil {
			pipe := r.client.Pipeline()
			pipe.LPush(ctx, redisclient.SecurityEventsKey(), data)
			pipe.LTrim(ctx, redisclient.SecurityEventsKey(), 0, config.SecurityEventRingSize-1)
			if _, err := pipe.Exec(ctx); err != nil {
				log.Error().Err(err).Msg("failed to persist security event")
			}
		}
	}

	if event.Severity == SeverityHigh && r.notifier != nil {
		err := r.notifier.Publish(ctx, notify.Event{
			Type:    notify.EventSecurity,
			HotelID: event.HotelID,
			Data: map[string]any{
				"eventType": string(event.Type),
				"severity":  string(event.Severity),
				"tokenId":   event.TokenID,
				"staffId":   event.StaffID,
				"reason":    event.Reason,
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to escalate security event")
		}
	}
}

// Recent returns the newest events from the bounded ring, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	if r.client == nil {
		return nil, nil
	}
	if limit <= 0 || limit > config.SecurityEventRingSize {
		limit = config.SecurityEventRingSize
	}

	raw, err := r.client.LRange(ctx, redisclient.SecurityEventsKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func logEvent(event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Str("severity", string(event.Severity)).
		Time("timestamp", event.At).
		Logger()

	if event.TokenID != "" {
		logger = logger.With().Str("token_id", event.TokenID).Logger()
	}
	if event.HotelID != "" {
		logger = logger.With().Str("hotel_id", event.HotelID).Logger()
	}
	if event.StaffID != "" {
		logger = logger.With().Str("staff_id", event.StaffID).Logger()
	}
	if event.Reason != "" {
		logger = logger.With().Str("reason", event.Reason).Logger()
	}

	logLine := logger.Info()
	if event.Severity == SeverityHigh {
		logLine = logger.Warn()
	}
	for k, v := range event.Details {
		logLine = addField(logLine, k, v)
	}
	logLine.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
