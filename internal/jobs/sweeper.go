// Package jobs holds the background maintenance loops.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/cache"
	"github.com/cloudnine/checkin-server-go/internal/metrics"
	"github.com/cloudnine/checkin-server-go/internal/repository"
)

// Sweeper reclaims state that outlived its usefulness: process records whose
// attempt stalled past the process timeout, and active tokens past their
// expiry that nobody has presented since.
type Sweeper struct {
	cache      cache.SessionCache
	tokens     repository.TokenRepository
	metrics    *metrics.Recorder
	processTTL time.Duration
	interval   time.Duration
	done       chan struct{}
}

func NewSweeper(
	sessionCache cache.SessionCache,
	tokens repository.TokenRepository,
	metricsRecorder *metrics.Recorder,
	processTTL time.Duration,
	interval time.Duration,
) *Sweeper {
	return &Sweeper{
		cache:      sessionCache,
		tokens:     tokens,
		metrics:    metricsRecorder,
		processTTL: processTTL,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("sweeper started")
}

func (s *Sweeper) Stop() {
	close(s.done)
	log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reaped, err := s.cache.SweepOrphans(ctx, s.processTTL)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep orphaned processes")
	} else if reaped > 0 {
		s.metrics.IncBy(ctx, metrics.ProcessesReaped, reaped)
		log.Info().Int64("count", reaped).Msg("reaped orphaned processes")
	}

	expired, err := s.tokens.MarkExpired(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to expire tokens")
	} else if expired > 0 {
		log.Info().Int64("count", expired).Msg("expired tokens")
	}
}
