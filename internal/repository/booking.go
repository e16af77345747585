package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cloudnine/checkin-server-go/internal/model"
)

// BookingRepository is the interface boundary to the external booking store.
type BookingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// CommitCheckIn atomically transitions a confirmed booking to checked_in,
	// recording the method and the token that authorized it. Returns the
	// updated booking, or nil when the booking was not in a committable state
	// (lost race, cancelled, already checked in).
	CommitCheckIn(ctx context.Context, id string, tokenID string, at time.Time) (*model.Booking, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) BookingRepository
}

type bookingDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type bookingRepo struct {
	db bookingDB
}

func NewBookingRepository(db *sqlx.DB) BookingRepository {
	return &bookingRepo{db: db}
}

func (r *bookingRepo) WithTx(tx *sqlx.Tx) BookingRepository {
	return &bookingRepo{db: tx}
}

func (r *bookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.GetContext(ctx, &booking, `
		SELECT * FROM bookings WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepo) CommitCheckIn(ctx context.Context, id string, tokenID string, at time.Time) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.GetContext(ctx, &booking, `
		UPDATE bookings SET
			status = 'checked_in',
			checked_in_at = $2,
			check_in_method = 'qr_token',
			check_in_token_id = $3,
			updated_at = $2
		WHERE id = $1 AND status = 'confirmed'
		RETURNING *
	`, id, at, tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
