package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cloudnine/checkin-server-go/internal/model"
)

type RoomRepository interface {
	FindByNumbers(ctx context.Context, hotelID string, numbers []string) ([]model.Room, error)
	FindAvailable(ctx context.Context, hotelID, roomTypeID string, limit int) ([]model.Room, error)
	// AssignToBooking marks the rooms occupied and links them to the booking.
	// Only available rooms are assigned; returns the room numbers actually taken.
	AssignToBooking(ctx context.Context, bookingID string, roomIDs []string) ([]string, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RoomRepository
}

type roomDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type roomRepo struct {
	db roomDB
}

func NewRoomRepository(db *sqlx.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) WithTx(tx *sqlx.Tx) RoomRepository {
	return &roomRepo{db: tx}
}

func (r *roomRepo) FindByNumbers(ctx context.Context, hotelID string, numbers []string) ([]model.Room, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT * FROM rooms
		WHERE hotel_id = ? AND number IN (?)
	`, hotelID, numbers)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var rooms []model.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepo) FindAvailable(ctx context.Context, hotelID, roomTypeID string, limit int) ([]model.Room, error) {
	var rooms []model.Room
	err := r.db.SelectContext(ctx, &rooms, `
		SELECT * FROM rooms
		WHERE hotel_id = $1 AND room_type_id = $2 AND status = 'available'
		ORDER BY number
		LIMIT $3
	`, hotelID, roomTypeID, limit)
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepo) AssignToBooking(ctx context.Context, bookingID string, roomIDs []string) ([]string, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		UPDATE rooms SET
			status = 'occupied',
			updated_at = ?
		WHERE id IN (?) AND status = 'available'
		RETURNING id, number
	`, time.Now(), roomIDs)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var assigned []struct {
		ID     string `db:"id"`
		Number string `db:"number"`
	}
	if err := r.db.SelectContext(ctx, &assigned, query, args...); err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(assigned))
	for _, room := range assigned {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO booking_rooms (booking_id, room_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, bookingID, room.ID); err != nil {
			return nil, err
		}
		numbers = append(numbers, room.Number)
	}
	return numbers, nil
}
