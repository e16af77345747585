package model

import (
	"encoding/json"
	"time"
)

// ValidationResult is the outcome of running the validation pipeline against
// a token and caller context. Cached briefly so UI polling and the redemption
// pipeline do not re-run the full pipeline for the same token.
type ValidationResult struct {
	TokenID     string          `json:"tokenId"`
	Type        TokenType       `json:"type"`
	SubjectID   string          `json:"subjectId"`
	HotelID     string          `json:"hotelId"`
	Claims      json.RawMessage `json:"claims"`
	Warnings    []string        `json:"warnings,omitempty"`
	UsageCount  int             `json:"usageCount"`
	UsageLimit  int             `json:"usageLimit"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	ValidatedAt time.Time       `json:"validatedAt"`
}

// CheckInClaims decodes the result's claims as check-in claims.
func (v *ValidationResult) CheckInClaims() (CheckInClaims, error) {
	claims, err := DecodeClaims(TokenTypeCheckIn, v.Claims)
	if err != nil {
		return CheckInClaims{}, err
	}
	return claims.(CheckInClaims), nil
}
