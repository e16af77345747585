package token

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/audit"
	"github.com/cloudnine/checkin-server-go/internal/cache"
	"github.com/cloudnine/checkin-server-go/internal/config"
	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/metrics"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/notify"
	"github.com/cloudnine/checkin-server-go/internal/repository"
	"github.com/cloudnine/checkin-server-go/internal/util"
)

// Policy holds the tunable validation behavior. Late check-in and cross-hotel
// staff redemption default to warnings; operators can harden either to a
// rejection without a code change.
type Policy struct {
	EarlyWindow     time.Duration
	LateGrace       time.Duration
	LateCheckIn     config.WarningPolicy
	CrossHotelStaff config.WarningPolicy
	CacheTTL        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		EarlyWindow:     2 * time.Hour,
		LateGrace:       24 * time.Hour,
		LateCheckIn:     config.PolicyWarn,
		CrossHotelStaff: config.PolicyWarn,
		CacheTTL:        2 * time.Minute,
	}
}

// Context describes the caller presenting a token: the action they intend to
// perform, the hotel they act for, and who they are.
type Context struct {
	Action  model.TokenType
	HotelID string
	Staff   *model.Staff
}

// Validator runs the verification pipeline against a presented token plus
// caller context, short-circuiting on the first failure. Each failure is a
// distinct coded error; soft findings become warnings on the result.
type Validator struct {
	signer   *Signer
	tokens   repository.TokenRepository
	cache    cache.SessionCache
	auditor  *audit.Recorder
	metrics  *metrics.Recorder
	notifier notify.Notifier
	policy   Policy
	now      func() time.Time
}

func NewValidator(
	signer *Signer,
	tokens repository.TokenRepository,
	sessionCache cache.SessionCache,
	auditor *audit.Recorder,
	metricsRecorder *metrics.Recorder,
	notifier notify.Notifier,
	policy Policy,
) *Validator {
	return &Validator{
		signer:   signer,
		tokens:   tokens,
		cache:    sessionCache,
		auditor:  auditor,
		metrics:  metricsRecorder,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

func (v *Validator) Validate(ctx context.Context, raw string, vctx Context) (*model.ValidationResult, error) {
	fingerprint := util.Fingerprint(raw)
	now := v.now()

	// Fast path: a recent identical validation for the same hotel context.
	// Revocation and usage increments invalidate these entries, and a hit is
	// honored only while the token itself is still unexpired, so it is as
	// trustworthy as a full pipeline run.
	if v.cache != nil {
		if cached, err := v.cache.GetValidation(ctx, fingerprint, vctx.HotelID); err == nil &&
			cached != nil && cached.Type == vctx.Action && now.Before(cached.ExpiresAt) {
			return cached, nil
		}
	}

	// 1. Signature/structure
	payload, err := v.signer.Verify(raw)
	if err != nil {
		return nil, v.fail(ctx, vctx, fingerprint, "", apperrors.MalformedToken())
	}

	tokenID := payload.TokenID

	// 2. Expiry
	if !now.Before(time.Unix(payload.ExpiresAt, 0)) {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.TokenExpired())
	}

	// 3. Type/context binding
	if payload.Type != vctx.Action {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID,
			apperrors.TypeMismatch(string(vctx.Action), string(payload.Type)))
	}
	if payload.HotelID != vctx.HotelID {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.HotelMismatch())
	}

	claims, err := model.DecodeClaims(payload.Type, payload.Claims)
	if err != nil {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.InvalidPayload(err.Error()))
	}

	var warnings []string

	// 4. Temporal window, per token type
	if warn, err := v.checkWindow(now, claims); err != nil {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, err)
	} else if warn != "" {
		warnings = append(warnings, warn)
	}

	// 5. Actor authorization
	if warn, err := v.checkActor(vctx); err != nil {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, err)
	} else if warn != "" {
		warnings = append(warnings, warn)
	}

	// 6. Stored state: revocation and usage
	stored, err := v.tokens.FindByID(ctx, tokenID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if stored == nil {
		// Signed with our secret but unknown to the store; treat with suspicion.
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.NotFound("Token"))
	}
	switch stored.Status {
	case model.TokenStatusRevoked:
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.TokenRevoked())
	case model.TokenStatusExpired:
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.TokenExpired())
	case model.TokenStatusUsed:
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.TokenUsed())
	}
	if stored.UsageCount >= stored.UsageLimit {
		return nil, v.fail(ctx, vctx, fingerprint, tokenID, apperrors.UsageExceeded())
	}

	result := &model.ValidationResult{
		TokenID:     tokenID,
		Type:        payload.Type,
		SubjectID:   payload.SubjectID,
		HotelID:     payload.HotelID,
		Claims:      payload.Claims,
		Warnings:    warnings,
		UsageCount:  stored.UsageCount,
		UsageLimit:  stored.UsageLimit,
		ExpiresAt:   stored.ExpiresAt,
		ValidatedAt: now,
	}

	if v.cache != nil {
		// The entry must never outlive the token: cap the TTL at the time
		// remaining to expiry.
		ttl := v.policy.CacheTTL
		if remaining := stored.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
		if ttl > 0 {
			if err := v.cache.PutValidation(ctx, fingerprint, vctx.HotelID, result, ttl); err != nil {
				log.Warn().Str("tokenId", tokenID).Err(err).Msg("failed to cache validation result")
			}
		}
	}

	for _, warn := range warnings {
		v.auditor.Record(ctx, audit.Event{
			Type:     audit.EventValidationWarning,
			Severity: audit.SeverityLow,
			TokenID:  tokenID,
			HotelID:  vctx.HotelID,
			StaffID:  staffID(vctx.Staff),
			Reason:   warn,
		})
	}

	v.metrics.Inc(ctx, metrics.TokensValidated)
	if v.notifier != nil {
		err := v.notifier.Publish(ctx, notify.Event{
			Type:      notify.EventTokenValidated,
			HotelID:   vctx.HotelID,
			SubjectID: payload.SubjectID,
			Data: map[string]any{
				"tokenId":  tokenID,
				"type":     string(payload.Type),
				"warnings": warnings,
			},
		})
		if err != nil {
			log.Warn().Str("tokenId", tokenID).Err(err).Msg("failed to publish validation event")
		}
	}

	return result, nil
}

// checkWindow enforces the type-specific temporal rules. A non-empty warning
// is a soft finding; an error rejects the token.
func (v *Validator) checkWindow(now time.Time, claims model.Claims) (string, *apperrors.AppError) {
	switch c := claims.(type) {
	case model.CheckInClaims:
		if now.Before(c.CheckInDate.Add(-v.policy.EarlyWindow)) {
			return "", apperrors.TooEarly(fmt.Sprintf(
				"check-in opens %s before the scheduled date", v.policy.EarlyWindow))
		}
		if now.After(c.CheckInDate.Add(v.policy.LateGrace)) {
			msg := fmt.Sprintf("redeemed more than %s after the scheduled check-in date", v.policy.LateGrace)
			if v.policy.LateCheckIn == config.PolicyReject {
				return "", apperrors.TooLate(msg)
			}
			return "late check-in: " + msg, nil
		}
	case model.RoomAccessClaims:
		if now.Before(c.ValidFrom) {
			return "", apperrors.TooEarly("room access is not yet valid")
		}
		if now.After(c.ValidUntil) {
			return "", apperrors.TooLate("room access window has ended")
		}
	}
	return "", nil
}

func (v *Validator) checkActor(vctx Context) (string, *apperrors.AppError) {
	if vctx.Staff == nil {
		return "", apperrors.UnauthorizedActor("staff context is required to redeem this token")
	}
	if !vctx.Staff.Role.CanRedeem(vctx.Action) {
		return "", apperrors.UnauthorizedActor(fmt.Sprintf(
			"role %s may not redeem %s tokens", vctx.Staff.Role, vctx.Action))
	}
	if vctx.Staff.HotelID != vctx.HotelID {
		if v.policy.CrossHotelStaff == config.PolicyReject {
			return "", apperrors.UnauthorizedActor("staff belongs to a different hotel")
		}
		return fmt.Sprintf("cross-hotel redemption: staff %s belongs to hotel %s",
			vctx.Staff.ID, vctx.Staff.HotelID), nil
	}
	return "", nil
}

// fail records the audit trail for a rejected token and passes the coded
// error through unchanged.
func (v *Validator) fail(ctx context.Context, vctx Context, fingerprint, tokenID string, appErr *apperrors.AppError) error {
	severity := severityFor(appErr.Code)
	eventType := audit.EventValidationFailed
	if appErr.Code == apperrors.ErrCodeUnauthorized {
		eventType = audit.EventAuthorizationDenied
	}
	if appErr.Code == apperrors.ErrCodeUsageExceeded {
		eventType = audit.EventUsageExceeded
	}

	v.auditor.Record(ctx, audit.Event{
		Type:     eventType,
		Severity: severity,
		TokenID:  tokenID,
		HotelID:  vctx.HotelID,
		StaffID:  staffID(vctx.Staff),
		Reason:   string(appErr.Code),
		Details:  map[string]any{"fingerprint": fingerprint},
	})
	v.metrics.IncCode(ctx, metrics.ValidationsFailed, string(appErr.Code))

	return appErr
}

func severityFor(code apperrors.ErrorCode) audit.Severity {
	switch code {
	case apperrors.ErrCodeTokenExpired, apperrors.ErrCodeTooEarly, apperrors.ErrCodeTooLate:
		return audit.SeverityLow
	case apperrors.ErrCodeTypeMismatch, apperrors.ErrCodeHotelMismatch, apperrors.ErrCodeUnauthorized:
		return audit.SeverityHigh
	default:
		return audit.SeverityMedium
	}
}

func staffID(staff *model.Staff) string {
	if staff == nil {
		return ""
	}
	return staff.ID
}
