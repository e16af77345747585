package token

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/audit"
	"github.com/cloudnine/checkin-server-go/internal/cache"
	"github.com/cloudnine/checkin-server-go/internal/config"
	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/metrics"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/notify"
	"github.com/cloudnine/checkin-server-go/internal/repository"
)

// Issuer mints scoped, signed, time-boxed credentials and owns every mutation
// of a token's usage counter and status. Nothing else writes those fields.
type Issuer struct {
	tokens   repository.TokenRepository
	cache    cache.SessionCache
	signer   *Signer
	auditor  *audit.Recorder
	notifier notify.Notifier
	metrics  *metrics.Recorder
}

func NewIssuer(
	tokens repository.TokenRepository,
	sessionCache cache.SessionCache,
	signer *Signer,
	auditor *audit.Recorder,
	notifier notify.Notifier,
	metricsRecorder *metrics.Recorder,
) *Issuer {
	return &Issuer{
		tokens:   tokens,
		cache:    sessionCache,
		signer:   signer,
		auditor:  auditor,
		notifier: notifier,
		metrics:  metricsRecorder,
	}
}

type IssueParams struct {
	Type       model.TokenType
	SubjectID  string
	HotelID    string
	Claims     model.Claims
	ExpiresIn  time.Duration
	UsageLimit int
	IssuedBy   *string
}

// IssuedToken is the renderable credential handed back to the caller. The
// signed artifact is returned exactly once and never persisted.
type IssuedToken struct {
	Token     *model.QRToken `json:"token"`
	Signed    string         `json:"signedToken"`
	ExpiresIn int            `json:"expiresIn"`
}

func (i *Issuer) Issue(ctx context.Context, params IssueParams) (*IssuedToken, error) {
	if !params.Type.Valid() {
		return nil, apperrors.InvalidPayload("unknown token type")
	}
	if params.SubjectID == "" {
		return nil, apperrors.MissingRequired("subjectId")
	}
	if params.HotelID == "" {
		return nil, apperrors.MissingRequired("hotelId")
	}
	if params.Claims == nil {
		return nil, apperrors.InvalidPayload("claims are required")
	}
	if params.Claims.TokenType() != params.Type {
		return nil, apperrors.InvalidPayload("claims do not match token type")
	}
	if params.ExpiresIn < config.MinTokenTTL || params.ExpiresIn > config.MaxTokenTTL {
		return nil, apperrors.InvalidInput("expiresIn", "must be between 30s and 7d")
	}
	if params.UsageLimit < config.MinUsageLimit || params.UsageLimit > config.MaxUsageLimit {
		return nil, apperrors.InvalidInput("usageLimit", "must be between 1 and 100")
	}

	rawClaims, err := model.EncodeClaims(params.Claims)
	if err != nil {
		return nil, apperrors.InvalidPayload(err.Error())
	}

	tokenID := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(params.ExpiresIn)

	signed, err := i.signer.Sign(model.TokenPayload{
		TokenID:    tokenID,
		Type:       params.Type,
		SubjectID:  params.SubjectID,
		HotelID:    params.HotelID,
		IssuedAt:   now.Unix(),
		ExpiresAt:  expiresAt.Unix(),
		UsageLimit: params.UsageLimit,
		Claims:     rawClaims,
	})
	if err != nil {
		return nil, apperrors.GenerationFailed(err)
	}

	// Persist metadata last: a signing failure must not leave a half-issued
	// record, and a storage failure must not hand out an unvalidatable token.
	token, err := i.tokens.Create(ctx, model.CreateTokenParams{
		ID:         tokenID,
		Type:       params.Type,
		SubjectID:  params.SubjectID,
		HotelID:    params.HotelID,
		Claims:     rawClaims,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		UsageLimit: params.UsageLimit,
		IssuedBy:   params.IssuedBy,
	})
	if err != nil {
		return nil, apperrors.GenerationFailed(err)
	}

	if checkIn, ok := params.Claims.(model.CheckInClaims); ok && i.cache != nil {
		if err := i.cache.PutBookingRef(ctx, tokenID, checkIn.BookingID, params.ExpiresIn); err != nil {
			log.Warn().Str("tokenId", tokenID).Err(err).Msg("failed to cache token booking ref")
		}
	}

	i.metrics.Inc(ctx, metrics.TokensIssued)
	i.publish(ctx, notify.Event{
		Type:      notify.EventTokenIssued,
		HotelID:   params.HotelID,
		SubjectID: params.SubjectID,
		Data: map[string]any{
			"tokenId":   tokenID,
			"type":      string(params.Type),
			"expiresAt": expiresAt.Format(time.RFC3339),
		},
	})

	log.Info().
		Str("tokenId", tokenID).
		Str("type", string(params.Type)).
		Str("hotelId", params.HotelID).
		Time("expiresAt", expiresAt).
		Int("usageLimit", params.UsageLimit).
		Msg("token issued")

	return &IssuedToken{
		Token:     token,
		Signed:    signed,
		ExpiresIn: int(params.ExpiresIn.Seconds()),
	}, nil
}

// Revoke marks the token revoked regardless of remaining usage. Revoking an
// already revoked token succeeds silently.
func (i *Issuer) Revoke(ctx context.Context, tokenID, reason string, actor *model.Staff) (*model.QRToken, error) {
	token, err := i.tokens.MarkRevoked(ctx, tokenID, reason)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if token == nil {
		return nil, apperrors.NotFound("Token")
	}

	if i.cache != nil {
		if err := i.cache.InvalidateValidation(ctx, tokenID); err != nil {
			log.Warn().Str("tokenId", tokenID).Err(err).Msg("failed to invalidate cached validation")
		}
	}

	staffID := ""
	if actor != nil {
		staffID = actor.ID
	}
	i.auditor.Record(ctx, audit.Event{
		Type:     audit.EventTokenRevoked,
		Severity: audit.SeverityMedium,
		TokenID:  tokenID,
		HotelID:  token.HotelID,
		StaffID:  staffID,
		Reason:   reason,
	})
	i.metrics.Inc(ctx, metrics.TokensRevoked)
	i.publish(ctx, notify.Event{
		Type:      notify.EventTokenRevoked,
		HotelID:   token.HotelID,
		SubjectID: token.SubjectID,
		Data: map[string]any{
			"tokenId": tokenID,
			"reason":  reason,
		},
	})

	return token, nil
}

// RecordUsage increments the usage counter after a successful redemption.
// The increment is a single conditional update, so two attempts racing for
// the last remaining use cannot both succeed.
func (i *Issuer) RecordUsage(ctx context.Context, tokenID string) (*model.QRToken, error) {
	token, err := i.tokens.IncrementUsage(ctx, tokenID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if token != nil {
		return token, nil
	}

	// The conditional update matched nothing; report why.
	current, err := i.tokens.FindByID(ctx, tokenID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if current == nil {
		return nil, apperrors.NotFound("Token")
	}
	switch current.Status {
	case model.TokenStatusRevoked:
		return nil, apperrors.TokenRevoked()
	case model.TokenStatusExpired:
		return nil, apperrors.TokenExpired()
	default:
		return nil, apperrors.UsageExceeded()
	}
}

func (i *Issuer) Status(ctx context.Context, tokenID string) (*model.QRToken, error) {
	token, err := i.tokens.FindByID(ctx, tokenID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if token == nil {
		return nil, apperrors.NotFound("Token")
	}
	return token, nil
}

func (i *Issuer) publish(ctx context.Context, event notify.Event) {
	if i.notifier == nil {
		return
	}
	if err := i.notifier.Publish(ctx, event); err != nil {
		log.Warn().Str("type", event.Type).Err(err).Msg("failed to publish token event")
	}
}
