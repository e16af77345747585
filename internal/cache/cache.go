// Package cache implements the short-TTL session/process layer backing the
// check-in orchestrator: the per-token process lock, in-flight process state,
// cached validation results and booking snapshots. All entries carry explicit
// TTLs; a periodic sweep reclaims orphaned process records whose age exceeds
// the process timeout.
package cache

import (
	"context"
	"time"

	"github.com/cloudnine/checkin-server-go/internal/model"
)

// SessionCache is the contract the orchestrator, issuer and validator depend
// on. The production implementation is redis-backed; tests substitute an
// in-memory fake.
type SessionCache interface {
	// AcquireProcessLock conditionally claims the per-token process slot.
	// Returns false when another process already holds it.
	AcquireProcessLock(ctx context.Context, tokenID, processID string, ttl time.Duration) (bool, error)
	// ReleaseProcessLock frees the slot, but only if processID still owns it.
	ReleaseProcessLock(ctx context.Context, tokenID, processID string) error

	PutProcess(ctx context.Context, process *model.CheckInProcess, ttl time.Duration) error
	GetProcess(ctx context.Context, processID string) (*model.CheckInProcess, error)
	DeleteProcess(ctx context.Context, processID string) error

	PutValidation(ctx context.Context, fingerprint, hotelID string, result *model.ValidationResult, ttl time.Duration) error
	GetValidation(ctx context.Context, fingerprint, hotelID string) (*model.ValidationResult, error)
	// InvalidateValidation drops every cached validation result for a token,
	// regardless of which hotel context it was validated under.
	InvalidateValidation(ctx context.Context, tokenID string) error

	PutBookingRef(ctx context.Context, tokenID, bookingID string, ttl time.Duration) error
	GetBookingRef(ctx context.Context, tokenID string) (string, error)

	PutBookingSnapshot(ctx context.Context, booking *model.Booking, ttl time.Duration) error
	GetBookingSnapshot(ctx context.Context, bookingID string) (*model.Booking, error)
	InvalidateBookingSnapshot(ctx context.Context, bookingID string) error

	// SweepOrphans marks non-terminal processes older than maxAge as failed
	// and frees their token locks. Returns the number of processes reaped.
	SweepOrphans(ctx context.Context, maxAge time.Duration) (int64, error)
}
