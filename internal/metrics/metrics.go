// Package metrics keeps aggregate counters in redis. Counter writes are
// fire-and-forget: a metrics failure must never fail the operation that
// produced it.
package metrics

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	redisclient "github.com/cloudnine/checkin-server-go/internal/redis"
)

const (
	TokensIssued      = "tokens_issued"
	TokensValidated   = "tokens_validated"
	TokensRevoked     = "tokens_revoked"
	ValidationsFailed = "validations_failed"
	CheckInsStarted   = "checkins_started"
	CheckInsCompleted = "checkins_completed"
	CheckInsFailed    = "checkins_failed"
	PostCommitErrors  = "post_commit_errors"
	ProcessesReaped   = "processes_reaped"
)

type Recorder struct {
	client *redisclient.Client
}

func NewRecorder(client *redisclient.Client) *Recorder {
	return &Recorder{client: client}
}

func (r *Recorder) Inc(ctx context.Context, name string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Incr(ctx, redisclient.CounterKey(name)).Err(); err != nil {
		log.Warn().Str("counter", name).Err(err).Msg("failed to increment counter")
	}
}

func (r *Recorder) IncBy(ctx context.Context, name string, delta int64) {
	if r == nil || r.client == nil || delta == 0 {
		return
	}
	if err := r.client.IncrBy(ctx, redisclient.CounterKey(name), delta).Err(); err != nil {
		log.Warn().Str("counter", name).Err(err).Msg("failed to increment counter")
	}
}

// IncCode bumps a per-error-code breakdown, e.g. validations_failed:TOKEN_EXPIRED.
func (r *Recorder) IncCode(ctx context.Context, name, code string) {
	r.Inc(ctx, name)
	r.Inc(ctx, name+":"+code)
}

// Snapshot reads every counter under the metrics prefix.
func (r *Recorder) Snapshot(ctx context.Context) (map[string]int64, error) {
	if r == nil || r.client == nil {
		return map[string]int64{}, nil
	}

	snapshot := make(map[string]int64)
	prefix := redisclient.CounterKey("")

	iter := r.client.Scan(ctx, 0, redisclient.CounterKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		snapshot[strings.TrimPrefix(key, prefix)] = n
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return snapshot, nil
}
