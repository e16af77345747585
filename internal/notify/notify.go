// Package notify defines the lifecycle events the service emits and the
// fan-out boundary they cross. The orchestrator and issuer publish named,
// typed events; transport (SSE over redis pub/sub) is an implementation
// detail behind the Notifier interface.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/cloudnine/checkin-server-go/internal/redis"
)

const (
	EventTokenIssued     = "TOKEN_ISSUED"
	EventTokenValidated  = "TOKEN_VALIDATED"
	EventTokenRevoked    = "TOKEN_REVOKED"
	EventCheckInStarted  = "CHECKIN_STARTED"
	EventCheckInComplete = "CHECKIN_COMPLETED"
	EventCheckInFailed   = "CHECKIN_FAILED"
	EventSecurity        = "SECURITY_EVENT"
)

// Event carries hotelId/subjectId so consumers can route it to the right
// guest, staff or dashboard channel.
type Event struct {
	Type      string         `json:"type"`
	HotelID   string         `json:"hotelId"`
	SubjectID string         `json:"subjectId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// RedisNotifier publishes events to the per-hotel channel and mirrors them to
// the admin channel so the system dashboard sees everything.
type RedisNotifier struct {
	client *redisclient.Client
}

func NewRedisNotifier(client *redisclient.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

var _ Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if event.HotelID != "" {
		if err := n.client.Publish(ctx, redisclient.HotelChannel(event.HotelID), data).Err(); err != nil {
			return err
		}
	}
	if err := n.client.Publish(ctx, redisclient.AdminChannel(), data).Err(); err != nil {
		// Hotel channel already got the event; admin mirror is best-effort.
		log.Warn().Str("type", event.Type).Err(err).Msg("failed to mirror event to admin channel")
	}
	return nil
}
