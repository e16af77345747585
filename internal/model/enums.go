package model

// TokenType identifies the physical action a QR token authorizes.
type TokenType string

const (
	TokenTypeCheckIn    TokenType = "check_in"
	TokenTypeCheckOut   TokenType = "check_out"
	TokenTypeRoomAccess TokenType = "room_access"
	TokenTypePayment    TokenType = "payment"
)

func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeCheckIn, TokenTypeCheckOut, TokenTypeRoomAccess, TokenTypePayment:
		return true
	}
	return false
}

// TokenStatus transitions are monotonic: active is the only non-terminal
// state, and there is no way back out of used, expired or revoked.
type TokenStatus string

const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusUsed    TokenStatus = "used"
	TokenStatusExpired TokenStatus = "expired"
	TokenStatusRevoked TokenStatus = "revoked"
)

func (s TokenStatus) Terminal() bool {
	return s != TokenStatusActive
}

// ProcessStatus tracks one redemption attempt through its ordered stages.
type ProcessStatus string

const (
	ProcessInitializing   ProcessStatus = "initializing"
	ProcessValidating     ProcessStatus = "validating"
	ProcessLoadingBooking ProcessStatus = "loading_booking"
	ProcessPreCheck       ProcessStatus = "pre_check"
	ProcessAssigningRooms ProcessStatus = "assigning_rooms"
	ProcessCommitting     ProcessStatus = "committing"
	ProcessNotifying      ProcessStatus = "notifying"
	ProcessCompleted      ProcessStatus = "completed"
	ProcessFailed         ProcessStatus = "failed"
)

func (s ProcessStatus) Terminal() bool {
	return s == ProcessCompleted || s == ProcessFailed
}

// BookingStatus mirrors the external booking store's state machine. Only the
// states the orchestrator reads or writes are listed.
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusCheckedIn  BookingStatus = "checked_in"
	BookingStatusCheckedOut BookingStatus = "checked_out"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusNoShow     BookingStatus = "no_show"
)

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusOccupied    RoomStatus = "occupied"
	RoomStatusMaintenance RoomStatus = "maintenance"
	RoomStatusCleaning    RoomStatus = "cleaning"
)

// StaffRole gates which token types an actor may redeem.
type StaffRole string

const (
	RoleFrontDesk StaffRole = "front_desk"
	RoleManager   StaffRole = "manager"
	RoleAdmin     StaffRole = "admin"
	RoleHousekeep StaffRole = "housekeeping"
)

// CanRedeem reports whether the role is allowed to redeem the given token type.
func (r StaffRole) CanRedeem(t TokenType) bool {
	switch t {
	case TokenTypeCheckIn, TokenTypeCheckOut, TokenTypePayment:
		return r == RoleFrontDesk || r == RoleManager || r == RoleAdmin
	case TokenTypeRoomAccess:
		return r != ""
	}
	return false
}
