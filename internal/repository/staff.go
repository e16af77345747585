package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/cloudnine/checkin-server-go/internal/model"
)

type StaffRepository interface {
	FindByID(ctx context.Context, id string) (*model.Staff, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Staff, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) StaffRepository
}

type staffDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type staffRepo struct {
	db staffDB
}

func NewStaffRepository(db *sqlx.DB) StaffRepository {
	return &staffRepo{db: db}
}

func (r *staffRepo) WithTx(tx *sqlx.Tx) StaffRepository {
	return &staffRepo{db: tx}
}

func (r *staffRepo) FindByID(ctx context.Context, id string) (*model.Staff, error) {
	var staff model.Staff
	err := r.db.GetContext(ctx, &staff, `
		SELECT * FROM staff WHERE id = $1 AND active = true
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Staff, error) {
	var staff model.Staff
	err := r.db.GetContext(ctx, &staff, `
		SELECT * FROM staff
		WHERE api_token_hash = $1 AND active = true
	`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &staff, nil
}
