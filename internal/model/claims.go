package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Claims is the tagged union of type-specific token payloads. Each token type
// has its own claim struct with its own required fields; there is no
// free-form additionalData bag.
type Claims interface {
	TokenType() TokenType
	// Validate checks that every claim the type requires is present and sane.
	Validate() error
}

type CheckInClaims struct {
	BookingID    string    `json:"bookingId"`
	CheckInDate  time.Time `json:"checkInDate"`
	CheckOutDate time.Time `json:"checkOutDate"`
	GuestName    string    `json:"guestName,omitempty"`
}

func (c CheckInClaims) TokenType() TokenType { return TokenTypeCheckIn }

func (c CheckInClaims) Validate() error {
	if c.BookingID == "" {
		return fmt.Errorf("bookingId is required for check_in tokens")
	}
	if c.CheckInDate.IsZero() {
		return fmt.Errorf("checkInDate is required for check_in tokens")
	}
	if c.CheckOutDate.IsZero() {
		return fmt.Errorf("checkOutDate is required for check_in tokens")
	}
	if !c.CheckOutDate.After(c.CheckInDate) {
		return fmt.Errorf("checkOutDate must be after checkInDate")
	}
	return nil
}

type CheckOutClaims struct {
	BookingID    string    `json:"bookingId"`
	CheckOutDate time.Time `json:"checkOutDate"`
}

func (c CheckOutClaims) TokenType() TokenType { return TokenTypeCheckOut }

func (c CheckOutClaims) Validate() error {
	if c.BookingID == "" {
		return fmt.Errorf("bookingId is required for check_out tokens")
	}
	if c.CheckOutDate.IsZero() {
		return fmt.Errorf("checkOutDate is required for check_out tokens")
	}
	return nil
}

type RoomAccessClaims struct {
	BookingID  string    `json:"bookingId"`
	RoomNumber string    `json:"roomNumber"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
}

func (c RoomAccessClaims) TokenType() TokenType { return TokenTypeRoomAccess }

func (c RoomAccessClaims) Validate() error {
	if c.RoomNumber == "" {
		return fmt.Errorf("roomNumber is required for room_access tokens")
	}
	if c.ValidFrom.IsZero() || c.ValidUntil.IsZero() {
		return fmt.Errorf("validFrom and validUntil are required for room_access tokens")
	}
	if !c.ValidUntil.After(c.ValidFrom) {
		return fmt.Errorf("validUntil must be after validFrom")
	}
	return nil
}

type PaymentClaims struct {
	BookingID string `json:"bookingId"`
	AmountDue int64  `json:"amountDue"` // minor units
	Currency  string `json:"currency"`
}

func (c PaymentClaims) TokenType() TokenType { return TokenTypePayment }

func (c PaymentClaims) Validate() error {
	if c.BookingID == "" {
		return fmt.Errorf("bookingId is required for payment tokens")
	}
	if c.AmountDue <= 0 {
		return fmt.Errorf("amountDue must be positive")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code")
	}
	return nil
}

// DecodeClaims parses the raw claim blob according to the token type and
// validates it.
func DecodeClaims(t TokenType, raw json.RawMessage) (Claims, error) {
	var claims Claims
	switch t {
	case TokenTypeCheckIn:
		var c CheckInClaims
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode check_in claims: %w", err)
		}
		claims = c
	case TokenTypeCheckOut:
		var c CheckOutClaims
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode check_out claims: %w", err)
		}
		claims = c
	case TokenTypeRoomAccess:
		var c RoomAccessClaims
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode room_access claims: %w", err)
		}
		claims = c
	case TokenTypePayment:
		var c PaymentClaims
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode payment claims: %w", err)
		}
		claims = c
	default:
		return nil, fmt.Errorf("unknown token type %q", t)
	}

	if err := claims.Validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

// EncodeClaims validates and serializes a claim struct for storage or signing.
func EncodeClaims(claims Claims) (json.RawMessage, error) {
	if err := claims.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("encode claims: %w", err)
	}
	return data, nil
}
