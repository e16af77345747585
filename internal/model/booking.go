package model

import "time"

// Booking is owned by the external booking store; the orchestrator reads it
// during LOADING_BOOKING/PRE_CHECK and mutates it exactly once in COMMITTING.
type Booking struct {
	ID             string        `db:"id" json:"bookingId"`
	HotelID        string        `db:"hotel_id" json:"hotelId"`
	CustomerID     string        `db:"customer_id" json:"customerId"`
	GuestName      string        `db:"guest_name" json:"guestName"`
	Status         BookingStatus `db:"status" json:"status"`
	PaymentStatus  PaymentStatus `db:"payment_status" json:"paymentStatus"`
	RoomTypeID     string        `db:"room_type_id" json:"roomTypeId"`
	RoomCount      int           `db:"room_count" json:"roomCount"`
	CheckInDate    time.Time     `db:"check_in_date" json:"checkInDate"`
	CheckOutDate   time.Time     `db:"check_out_date" json:"checkOutDate"`
	CheckedInAt    *time.Time    `db:"checked_in_at" json:"checkedInAt,omitempty"`
	CheckInMethod  *string       `db:"check_in_method" json:"checkInMethod,omitempty"`
	CheckInTokenID *string       `db:"check_in_token_id" json:"checkInTokenId,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

type Room struct {
	ID         string     `db:"id" json:"roomId"`
	HotelID    string     `db:"hotel_id" json:"hotelId"`
	RoomTypeID string     `db:"room_type_id" json:"roomTypeId"`
	Number     string     `db:"number" json:"number"`
	Status     RoomStatus `db:"status" json:"status"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

type Staff struct {
	ID           string    `db:"id" json:"staffId"`
	HotelID      string    `db:"hotel_id" json:"hotelId"`
	Name         string    `db:"name" json:"name"`
	Role         StaffRole `db:"role" json:"role"`
	APITokenHash string    `db:"api_token_hash" json:"-"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
