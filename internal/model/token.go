package model

import (
	"encoding/json"
	"time"
)

// QRToken is the stored metadata of an issued credential. The raw signed
// artifact is never persisted; validation verifies the signature statelessly
// and then consults this record for usage and revocation state.
type QRToken struct {
	ID            string          `db:"id" json:"tokenId"`
	Type          TokenType       `db:"type" json:"type"`
	SubjectID     string          `db:"subject_id" json:"subjectId"`
	HotelID       string          `db:"hotel_id" json:"hotelId"`
	Claims        json.RawMessage `db:"claims" json:"claims"`
	IssuedAt      time.Time       `db:"issued_at" json:"issuedAt"`
	ExpiresAt     time.Time       `db:"expires_at" json:"expiresAt"`
	UsageLimit    int             `db:"usage_limit" json:"usageLimit"`
	UsageCount    int             `db:"usage_count" json:"usageCount"`
	Status        TokenStatus     `db:"status" json:"status"`
	RevokedReason *string         `db:"revoked_reason" json:"revokedReason,omitempty"`
	IssuedBy      *string         `db:"issued_by" json:"issuedBy,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Redeemable reports whether the token can still be consumed at the given time.
func (t *QRToken) Redeemable(now time.Time) bool {
	return t.Status == TokenStatusActive &&
		now.Before(t.ExpiresAt) &&
		t.UsageCount < t.UsageLimit
}

type CreateTokenParams struct {
	ID         string
	Type       TokenType
	SubjectID  string
	HotelID    string
	Claims     json.RawMessage
	IssuedAt   time.Time
	ExpiresAt  time.Time
	UsageLimit int
	IssuedBy   *string
}

// TokenPayload is the wire representation carried inside the signed blob.
// It is self-describing so the validator can check signature, expiry and
// context binding without a storage round-trip.
type TokenPayload struct {
	TokenID    string          `json:"jti"`
	Type       TokenType       `json:"type"`
	SubjectID  string          `json:"sub"`
	HotelID    string          `json:"hotelId"`
	IssuedAt   int64           `json:"iat"`
	ExpiresAt  int64           `json:"exp"`
	UsageLimit int             `json:"usageLimit"`
	Claims     json.RawMessage `json:"claims"`
}
