// Package checkin drives the redemption of a check-in token from "token
// presented" to "guest checked in". The pipeline is strict before the booking
// commit and best-effort after it: a check-in is never lost because a
// notification or cache write failed.
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/audit"
	"github.com/cloudnine/checkin-server-go/internal/cache"
	"github.com/cloudnine/checkin-server-go/internal/database"
	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/metrics"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/notify"
	"github.com/cloudnine/checkin-server-go/internal/repository"
	"github.com/cloudnine/checkin-server-go/internal/token"
)

// Committer runs the COMMITTING stage inside one storage transaction. The
// production implementation is *database.DB; tests substitute a fake.
type Committer interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type Options struct {
	ProcessTTL         time.Duration
	CompletedRetention time.Duration
	CallTimeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		ProcessTTL:         30 * time.Minute,
		CompletedRetention: 5 * time.Minute,
		CallTimeout:        5 * time.Second,
	}
}

type Orchestrator struct {
	committer Committer
	bookings  repository.BookingRepository
	rooms     repository.RoomRepository
	issuer    *token.Issuer
	validator *token.Validator
	signer    *token.Signer
	cache     cache.SessionCache
	notifier  notify.Notifier
	auditor   *audit.Recorder
	metrics   *metrics.Recorder
	opts      Options
	now       func() time.Time
}

func NewOrchestrator(
	committer Committer,
	bookings repository.BookingRepository,
	rooms repository.RoomRepository,
	issuer *token.Issuer,
	validator *token.Validator,
	signer *token.Signer,
	sessionCache cache.SessionCache,
	notifier notify.Notifier,
	auditor *audit.Recorder,
	metricsRecorder *metrics.Recorder,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		committer: committer,
		bookings:  bookings,
		rooms:     rooms,
		issuer:    issuer,
		validator: validator,
		signer:    signer,
		cache:     sessionCache,
		notifier:  notifier,
		auditor:   auditor,
		metrics:   metricsRecorder,
		opts:      opts,
		now:       time.Now,
	}
}

type RedeemOptions struct {
	// RoomNumbers are caller-supplied assignments. Invalid or unavailable
	// rooms fall back to auto-assignment; assignment never fails the process.
	RoomNumbers []string
}

// RedeemCheckIn consumes a CHECK_IN token under staff supervision. At most
// one attempt per token may be in flight; a concurrent call fails fast with
// ALREADY_IN_PROGRESS instead of racing the first.
func (o *Orchestrator) RedeemCheckIn(ctx context.Context, rawToken string, staff *model.Staff, hotelID string, opts RedeemOptions) (*model.CheckInResult, error) {
	// The lock is keyed by tokenId, so the signature check happens before a
	// process record exists. A malformed token leaves no trace beyond audit.
	payload, err := o.signer.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	tokenID := payload.TokenID

	process := &model.CheckInProcess{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		StaffID:   staff.ID,
		HotelID:   hotelID,
		Status:    model.ProcessInitializing,
		StartedAt: o.now(),
	}

	acquired, err := o.cache.AcquireProcessLock(ctx, tokenID, process.ID, o.opts.ProcessTTL)
	if err != nil {
		return nil, apperrors.Cache(err)
	}
	if !acquired {
		return nil, apperrors.AlreadyInProgress(tokenID)
	}

	if err := o.cache.PutProcess(ctx, process, o.opts.ProcessTTL); err != nil {
		// Without a readable process record the attempt cannot be tracked or
		// cancelled; release the slot and bail before any side effects.
		o.releaseLock(ctx, process)
		return nil, apperrors.Cache(err)
	}

	o.metrics.Inc(ctx, metrics.CheckInsStarted)
	o.publish(ctx, notify.Event{
		Type:    notify.EventCheckInStarted,
		HotelID: hotelID,
		Data: map[string]any{
			"processId": process.ID,
			"tokenId":   tokenID,
			"staffId":   staff.ID,
		},
	})

	log.Info().
		Str("processId", process.ID).
		Str("tokenId", tokenID).
		Str("staffId", staff.ID).
		Str("hotelId", hotelID).
		Msg("check-in started")

	// VALIDATING
	o.advance(ctx, process, model.ProcessValidating)
	result, err := o.validate(ctx, rawToken, staff, hotelID)
	if err != nil {
		return nil, o.failProcess(ctx, process, err)
	}
	process.Steps.Validated = true
	process.Warnings = append(process.Warnings, result.Warnings...)

	// LOADING_BOOKING
	o.advance(ctx, process, model.ProcessLoadingBooking)
	claims, err := result.CheckInClaims()
	if err != nil {
		return nil, o.failProcess(ctx, process, apperrors.InvalidPayload(err.Error()))
	}
	booking, err := o.loadBooking(ctx, claims.BookingID, hotelID)
	if err != nil {
		return nil, o.failProcess(ctx, process, err)
	}
	process.BookingID = booking.ID
	process.Steps.BookingLoaded = true

	// PRE_CHECK
	o.advance(ctx, process, model.ProcessPreCheck)
	if err := o.preCheck(process, booking); err != nil {
		return nil, o.failProcess(ctx, process, err)
	}
	process.Steps.PreChecked = true

	// ASSIGNING_ROOMS: selection only; the writes land inside the commit
	// transaction. Selection problems degrade to warnings, never aborts.
	o.advance(ctx, process, model.ProcessAssigningRooms)
	roomIDs := o.selectRooms(ctx, process, booking, opts.RoomNumbers)

	// COMMITTING: the one authoritative state transition. This is the last
	// stage allowed to abort the process.
	o.advance(ctx, process, model.ProcessCommitting)
	committed, roomNumbers, err := o.commit(ctx, process, booking, roomIDs)
	if err != nil {
		return nil, o.failProcess(ctx, process, err)
	}
	process.Steps.Committed = true
	process.Steps.RoomsAssigned = len(roomNumbers) > 0

	// Everything below is post-commit: logged and counted, never surfaced.
	usageCount := o.recordUsage(ctx, process)

	o.advance(ctx, process, model.ProcessNotifying)
	o.postCommit(ctx, process, committed)

	now := o.now()
	process.Status = model.ProcessCompleted
	process.CompletedAt = &now
	if err := o.cache.PutProcess(ctx, process, o.opts.CompletedRetention); err != nil {
		log.Error().Str("processId", process.ID).Err(err).Msg("failed to store completed process")
	}
	o.releaseLock(ctx, process)
	o.metrics.Inc(ctx, metrics.CheckInsCompleted)

	log.Info().
		Str("processId", process.ID).
		Str("bookingId", booking.ID).
		Strs("rooms", roomNumbers).
		Msg("check-in completed")

	return &model.CheckInResult{
		Success:      true,
		ProcessID:    process.ID,
		BookingID:    committed.ID,
		GuestName:    committed.GuestName,
		RoomNumbers:  roomNumbers,
		CheckInDate:  committed.CheckInDate,
		CheckOutDate: committed.CheckOutDate,
		Warnings:     process.Warnings,
		CheckedInAt:  *committed.CheckedInAt,
		UsageCount:   usageCount,
		UsageLimit:   result.UsageLimit,
	}, nil
}

// Cancel aborts a non-terminal process before its commit stage.
func (o *Orchestrator) Cancel(ctx context.Context, processID string) (*model.CheckInProcess, error) {
	process, err := o.cache.GetProcess(ctx, processID)
	if err != nil {
		return nil, apperrors.Cache(err)
	}
	if process == nil {
		return nil, apperrors.NotFound("Process")
	}
	if process.Status.Terminal() {
		return nil, apperrors.ProcessTerminal(string(process.Status))
	}
	if process.Steps.Committed {
		return nil, apperrors.Conflict("process has already committed and cannot be cancelled")
	}

	now := o.now()
	process.Status = model.ProcessFailed
	process.FailureCode = "CANCELLED"
	process.Failure = "cancelled"
	process.CompletedAt = &now

	if err := o.cache.PutProcess(ctx, process, o.opts.CompletedRetention); err != nil {
		return nil, apperrors.Cache(err)
	}
	o.releaseLock(ctx, process)

	log.Info().Str("processId", processID).Msg("check-in cancelled")
	return process, nil
}

// ProcessStatus is the polling surface for in-flight and recently finished
// attempts.
func (o *Orchestrator) ProcessStatus(ctx context.Context, processID string) (*model.CheckInProcess, error) {
	process, err := o.cache.GetProcess(ctx, processID)
	if err != nil {
		return nil, apperrors.Cache(err)
	}
	if process == nil {
		return nil, apperrors.NotFound("Process")
	}
	return process, nil
}

func (o *Orchestrator) validate(ctx context.Context, rawToken string, staff *model.Staff, hotelID string) (*model.ValidationResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	return o.validator.Validate(callCtx, rawToken, token.Context{
		Action:  model.TokenTypeCheckIn,
		HotelID: hotelID,
		Staff:   staff,
	})
}

func (o *Orchestrator) loadBooking(ctx context.Context, bookingID, hotelID string) (*model.Booking, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	booking, err := o.cache.GetBookingSnapshot(callCtx, bookingID)
	if err != nil {
		log.Warn().Str("bookingId", bookingID).Err(err).Msg("booking snapshot read failed")
	}
	if booking == nil {
		booking, err = o.bookings.FindByID(callCtx, bookingID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
	}
	if booking == nil {
		return nil, apperrors.NotFound("Booking")
	}
	if booking.HotelID != hotelID {
		return nil, apperrors.HotelMismatch()
	}
	return booking, nil
}

func (o *Orchestrator) preCheck(process *model.CheckInProcess, booking *model.Booking) error {
	switch booking.Status {
	case model.BookingStatusCheckedIn:
		return apperrors.AlreadyCheckedIn()
	case model.BookingStatusConfirmed:
		// eligible
	default:
		return apperrors.BookingNotEligible(string(booking.Status))
	}

	if booking.PaymentStatus == model.PaymentStatusFailed {
		return apperrors.PaymentFailed()
	}
	if booking.PaymentStatus == model.PaymentStatusPending {
		process.Warnings = append(process.Warnings, "payment is still pending")
	}

	today := o.now().Truncate(24 * time.Hour)
	scheduled := booking.CheckInDate.Truncate(24 * time.Hour)
	if !today.Equal(scheduled) {
		process.Warnings = append(process.Warnings, fmt.Sprintf(
			"check-in date is %s, not today", booking.CheckInDate.Format("2006-01-02")))
	}

	return nil
}

// selectRooms picks the rooms to occupy: caller-supplied numbers when they
// check out, otherwise auto-assignment from availability, otherwise nothing.
func (o *Orchestrator) selectRooms(ctx context.Context, process *model.CheckInProcess, booking *model.Booking, requested []string) []string {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	if len(requested) > 0 {
		rooms, err := o.rooms.FindByNumbers(callCtx, booking.HotelID, requested)
		if err != nil {
			log.Warn().Str("processId", process.ID).Err(err).Msg("room lookup failed, falling back to auto-assignment")
		} else {
			var ids []string
			for _, room := range rooms {
				if room.Status == model.RoomStatusAvailable {
					ids = append(ids, room.ID)
				}
			}
			if len(ids) == len(requested) {
				return ids
			}
			process.Warnings = append(process.Warnings, "requested rooms unavailable, auto-assigning")
		}
	}

	available, err := o.rooms.FindAvailable(callCtx, booking.HotelID, booking.RoomTypeID, booking.RoomCount)
	if err != nil {
		log.Warn().Str("processId", process.ID).Err(err).Msg("room availability lookup failed")
		process.Warnings = append(process.Warnings, "room assignment skipped: availability unknown")
		return nil
	}
	if len(available) == 0 {
		process.Warnings = append(process.Warnings, "no rooms ready for assignment")
		return nil
	}

	ids := make([]string, 0, len(available))
	for _, room := range available {
		ids = append(ids, room.ID)
	}
	return ids
}

// commit transitions the booking to checked-in and applies room assignments
// in one transaction. Assignment errors degrade to warnings inside the
// transaction; only the booking transition itself can abort.
func (o *Orchestrator) commit(ctx context.Context, process *model.CheckInProcess, booking *model.Booking, roomIDs []string) (*model.Booking, []string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	var committed *model.Booking
	var roomNumbers []string

	err := o.committer.WithTx(callCtx, func(tx *sqlx.Tx) error {
		updated, err := o.bookings.WithTx(tx).CommitCheckIn(callCtx, booking.ID, process.TokenID, o.now())
		if err != nil {
			return err
		}
		if updated == nil {
			// Conditional update matched nothing: the booking changed under us.
			return errCommitConflict
		}
		committed = updated

		if len(roomIDs) > 0 {
			numbers, err := o.rooms.WithTx(tx).AssignToBooking(callCtx, booking.ID, roomIDs)
			if err != nil {
				// Room bookkeeping must not sink a committable check-in.
				log.Warn().Str("processId", process.ID).Err(err).Msg("room assignment failed during commit")
				process.Warnings = append(process.Warnings, "room assignment failed")
				return nil
			}
			roomNumbers = numbers
		}
		return nil
	})

	if err == errCommitConflict {
		current, ferr := o.bookings.FindByID(ctx, booking.ID)
		if ferr == nil && current != nil && current.Status == model.BookingStatusCheckedIn {
			return nil, nil, apperrors.AlreadyCheckedIn()
		}
		return nil, nil, apperrors.CommitFailed(fmt.Errorf("booking %s is no longer committable", booking.ID))
	}
	if err != nil {
		return nil, nil, apperrors.CommitFailed(err)
	}
	return committed, roomNumbers, nil
}

var errCommitConflict = fmt.Errorf("commit conflict")

// recordUsage marks the token used after the commit. A failure here is a
// bookkeeping problem, not a check-in problem: log, count, move on.
func (o *Orchestrator) recordUsage(ctx context.Context, process *model.CheckInProcess) int {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	updated, err := o.issuer.RecordUsage(callCtx, process.TokenID)
	if err != nil {
		log.Error().
			Str("processId", process.ID).
			Str("tokenId", process.TokenID).
			Err(err).
			Msg("post-commit usage increment failed")
		o.metrics.Inc(ctx, metrics.PostCommitErrors)
		return 0
	}
	process.Steps.UsageRecorded = true
	return updated.UsageCount
}

// postCommit refreshes caches and fans out the completion event. Best-effort
// by contract.
func (o *Orchestrator) postCommit(ctx context.Context, process *model.CheckInProcess, booking *model.Booking) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	if err := o.cache.PutBookingSnapshot(callCtx, booking, o.opts.CompletedRetention); err != nil {
		log.Warn().Str("processId", process.ID).Err(err).Msg("failed to refresh booking snapshot")
		o.metrics.Inc(ctx, metrics.PostCommitErrors)
	}
	if err := o.cache.InvalidateValidation(callCtx, process.TokenID); err != nil {
		log.Warn().Str("processId", process.ID).Err(err).Msg("failed to invalidate validation cache")
		o.metrics.Inc(ctx, metrics.PostCommitErrors)
	}

	if o.notifier != nil {
		err := o.notifier.Publish(callCtx, notify.Event{
			Type:      notify.EventCheckInComplete,
			HotelID:   process.HotelID,
			SubjectID: booking.CustomerID,
			Data: map[string]any{
				"processId": process.ID,
				"bookingId": booking.ID,
				"tokenId":   process.TokenID,
				"staffId":   process.StaffID,
			},
		})
		if err != nil {
			log.Warn().Str("processId", process.ID).Err(err).Msg("failed to publish completion event")
			o.metrics.Inc(ctx, metrics.PostCommitErrors)
			return
		}
		process.Steps.Notified = true
	}
}

// advance moves the process to the next stage and persists it. A cache write
// failure here is tolerable: the record is diagnostic, the pipeline state is
// in memory.
func (o *Orchestrator) advance(ctx context.Context, process *model.CheckInProcess, status model.ProcessStatus) {
	process.Status = status
	if err := o.cache.PutProcess(ctx, process, o.opts.ProcessTTL); err != nil {
		log.Warn().
			Str("processId", process.ID).
			Str("status", string(status)).
			Err(err).
			Msg("failed to persist process stage")
	}
}

// failProcess marks the attempt failed, keeps the record for diagnostics,
// frees the token slot and reports the failure downstream.
func (o *Orchestrator) failProcess(ctx context.Context, process *model.CheckInProcess, cause error) error {
	now := o.now()
	process.Status = model.ProcessFailed
	process.FailureCode = string(apperrors.GetCode(cause))
	if appErr, ok := apperrors.AsAppError(cause); ok {
		process.Failure = appErr.Message
	} else {
		process.Failure = cause.Error()
	}
	process.CompletedAt = &now

	if err := o.cache.PutProcess(ctx, process, o.opts.CompletedRetention); err != nil {
		log.Error().Str("processId", process.ID).Err(err).Msg("failed to store failed process")
	}
	o.releaseLock(ctx, process)

	o.metrics.IncCode(ctx, metrics.CheckInsFailed, process.FailureCode)
	o.auditor.Record(ctx, audit.Event{
		Type:     audit.EventCheckInFailed,
		Severity: audit.SeverityMedium,
		TokenID:  process.TokenID,
		HotelID:  process.HotelID,
		StaffID:  process.StaffID,
		Reason:   process.FailureCode,
	})
	o.publish(ctx, notify.Event{
		Type:    notify.EventCheckInFailed,
		HotelID: process.HotelID,
		Data: map[string]any{
			"processId": process.ID,
			"tokenId":   process.TokenID,
			"reason":    process.FailureCode,
		},
	})

	log.Warn().
		Str("processId", process.ID).
		Str("tokenId", process.TokenID).
		Str("reason", process.FailureCode).
		Msg("check-in failed")

	return cause
}

func (o *Orchestrator) releaseLock(ctx context.Context, process *model.CheckInProcess) {
	if err := o.cache.ReleaseProcessLock(ctx, process.TokenID, process.ID); err != nil {
		log.Error().Str("processId", process.ID).Err(err).Msg("failed to release process lock")
	}
}

func (o *Orchestrator) publish(ctx context.Context, event notify.Event) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, event); err != nil {
		log.Warn().Str("type", event.Type).Err(err).Msg("failed to publish check-in event")
	}
}
