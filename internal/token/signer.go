package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/util"
)

// Signer produces and verifies the token wire format:
// base64url(JSON payload) + "." + hex(HMAC-SHA256). The payload is
// self-describing, so verification needs no storage round-trip.
type Signer struct {
	secret string
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

func (s *Signer) Sign(payload model.TokenPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	sig := util.HmacSHA256(s.secret, encoded)
	return encoded + "." + sig, nil
}

// Verify checks structure and signature only. Expiry, context binding and
// usage state are the validator's concern.
func (s *Signer) Verify(raw string) (*model.TokenPayload, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, apperrors.MalformedToken()
	}

	expected := util.HmacSHA256(s.secret, parts[0])
	if !util.ConstantTimeEqual(expected, parts[1]) {
		return nil, apperrors.MalformedToken()
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, apperrors.MalformedToken()
	}

	var payload model.TokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.MalformedToken()
	}

	if payload.TokenID == "" || payload.HotelID == "" || !payload.Type.Valid() || payload.ExpiresAt == 0 {
		return nil, apperrors.MalformedToken()
	}

	return &payload, nil
}
