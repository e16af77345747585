package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cloudnine/checkin-server-go/internal/model"
)

// TokenRepository persists issued token metadata. It is the single writer of
// usage_count and status; all mutations are conditional updates so concurrent
// attempts near the usage limit cannot both succeed.
type TokenRepository interface {
	FindByID(ctx context.Context, id string) (*model.QRToken, error)
	Create(ctx context.Context, params model.CreateTokenParams) (*model.QRToken, error)
	// IncrementUsage bumps usage_count by one and flips status to used when
	// the limit is reached. Returns the updated token, or nil when the token
	// was not active or had no remaining uses.
	IncrementUsage(ctx context.Context, id string) (*model.QRToken, error)
	// MarkRevoked is idempotent: revoking an already revoked token reports
	// success without touching the row again.
	MarkRevoked(ctx context.Context, id string, reason string) (*model.QRToken, error)
	// MarkExpired transitions active tokens past their expiry to expired.
	// Used by the background sweeper; returns the number of rows changed.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) TokenRepository
}

type tokenDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type tokenRepo struct {
	db tokenDB
}

func NewTokenRepository(db *sqlx.DB) TokenRepository {
	return &tokenRepo{db: db}
}

func (r *tokenRepo) WithTx(tx *sqlx.Tx) TokenRepository {
	return &tokenRepo{db: tx}
}

func (r *tokenRepo) FindByID(ctx context.Context, id string) (*model.QRToken, error) {
	var token model.QRToken
	err := r.db.GetContext(ctx, &token, `
		SELECT * FROM qr_tokens WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepo) Create(ctx context.Context, params model.CreateTokenParams) (*model.QRToken, error) {
	var token model.QRToken
	err := r.db.GetContext(ctx, &token, `
		INSERT INTO qr_tokens (id, type, subject_id, hotel_id, claims, issued_at, expires_at, usage_limit, usage_count, status, issued_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 'active', $9)
		RETURNING *
	`, params.ID, params.Type, params.SubjectID, params.HotelID, params.Claims,
		params.IssuedAt, params.ExpiresAt, params.UsageLimit, params.IssuedBy)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepo) IncrementUsage(ctx context.Context, id string) (*model.QRToken, error) {
	var token model.QRToken
	err := r.db.GetContext(ctx, &token, `
		UPDATE qr_tokens SET
			usage_count = usage_count + 1,
			status = CASE WHEN usage_count + 1 >= usage_limit THEN 'used' ELSE status END,
			updated_at = $2
		WHERE id = $1
		AND status = 'active'
		AND usage_count < usage_limit
		RETURNING *
	`, id, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepo) MarkRevoked(ctx context.Context, id string, reason string) (*model.QRToken, error) {
	var token model.QRToken
	err := r.db.GetContext(ctx, &token, `
		UPDATE qr_tokens SET
			status = 'revoked',
			revoked_reason = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'active'
		RETURNING *
	`, id, reason, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		// Already terminal (used/expired/revoked stay as they are), or
		// missing. Re-read so the caller can tell.
		return r.FindByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE qr_tokens SET
			status = 'expired',
			updated_at = $1
		WHERE status = 'active' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
