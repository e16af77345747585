package token

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudnine/checkin-server-go/internal/audit"
	"github.com/cloudnine/checkin-server-go/internal/config"
	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/repository"
)

type fakeTokenRepo struct {
	tokens    map[string]*model.QRToken
	createErr error
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*model.QRToken)}
}

func (f *fakeTokenRepo) FindByID(ctx context.Context, id string) (*model.QRToken, error) {
	tok, ok := f.tokens[id]
	if !ok {
		return nil, nil
	}
	copied := *tok
	return &copied, nil
}

func (f *fakeTokenRepo) Create(ctx context.Context, params model.CreateTokenParams) (*model.QRToken, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	tok := &model.QRToken{
		ID:         params.ID,
		Type:       params.Type,
		SubjectID:  params.SubjectID,
		HotelID:    params.HotelID,
		Claims:     params.Claims,
		IssuedAt:   params.IssuedAt,
		ExpiresAt:  params.ExpiresAt,
		UsageLimit: params.UsageLimit,
		Status:     model.TokenStatusActive,
		IssuedBy:   params.IssuedBy,
	}
	f.tokens[params.ID] = tok
	copied := *tok
	return &copied, nil
}

func (f *fakeTokenRepo) IncrementUsage(ctx context.Context, id string) (*model.QRToken, error) {
	tok, ok := f.tokens[id]
	if !ok || tok.Status != model.TokenStatusActive || tok.UsageCount >= tok.UsageLimit {
		return nil, nil
	}
	tok.UsageCount++
	if tok.UsageCount >= tok.UsageLimit {
		tok.Status = model.TokenStatusUsed
	}
	copied := *tok
	return &copied, nil
}

func (f *fakeTokenRepo) MarkRevoked(ctx context.Context, id string, reason string) (*model.QRToken, error) {
	tok, ok := f.tokens[id]
	if !ok {
		return nil, nil
	}
	// Terminal statuses stay as they are; only active tokens transition.
	if tok.Status == model.TokenStatusActive {
		tok.Status = model.TokenStatusRevoked
		tok.RevokedReason = &reason
	}
	copied := *tok
	return &copied, nil
}

func (f *fakeTokenRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, tok := range f.tokens {
		if tok.Status == model.TokenStatusActive && tok.ExpiresAt.Before(now) {
			tok.Status = model.TokenStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenRepo) WithTx(tx *sqlx.Tx) repository.TokenRepository {
	return f
}

// fakeValidationCache implements the validation-result half of the session
// cache; everything else is a no-op.
type fakeValidationCache struct {
	validations map[string]*model.ValidationResult
	lastTTL     time.Duration
}

func newFakeValidationCache() *fakeValidationCache {
	return &fakeValidationCache{validations: make(map[string]*model.ValidationResult)}
}

func (f *fakeValidationCache) PutValidation(ctx context.Context, fingerprint, hotelID string, result *model.ValidationResult, ttl time.Duration) error {
	f.validations[fingerprint+":"+hotelID] = result
	f.lastTTL = ttl
	return nil
}

func (f *fakeValidationCache) GetValidation(ctx context.Context, fingerprint, hotelID string) (*model.ValidationResult, error) {
	return f.validations[fingerprint+":"+hotelID], nil
}

func (f *fakeValidationCache) InvalidateValidation(ctx context.Context, tokenID string) error {
	for key, result := range f.validations {
		if result.TokenID == tokenID {
			delete(f.validations, key)
		}
	}
	return nil
}

func (f *fakeValidationCache) AcquireProcessLock(ctx context.Context, tokenID, processID string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeValidationCache) ReleaseProcessLock(ctx context.Context, tokenID, processID string) error {
	return nil
}
func (f *fakeValidationCache) PutProcess(ctx context.Context, process *model.CheckInProcess, ttl time.Duration) error {
	return nil
}
func (f *fakeValidationCache) GetProcess(ctx context.Context, processID string) (*model.CheckInProcess, error) {
	return nil, nil
}
func (f *fakeValidationCache) DeleteProcess(ctx context.Context, processID string) error { return nil }
func (f *fakeValidationCache) PutBookingRef(ctx context.Context, tokenID, bookingID string, ttl time.Duration) error {
	return nil
}
func (f *fakeValidationCache) GetBookingRef(ctx context.Context, tokenID string) (string, error) {
	return "", nil
}
func (f *fakeValidationCache) PutBookingSnapshot(ctx context.Context, booking *model.Booking, ttl time.Duration) error {
	return nil
}
func (f *fakeValidationCache) GetBookingSnapshot(ctx context.Context, bookingID string) (*model.Booking, error) {
	return nil, nil
}
func (f *fakeValidationCache) InvalidateBookingSnapshot(ctx context.Context, bookingID string) error {
	return nil
}
func (f *fakeValidationCache) SweepOrphans(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func testStaff(role model.StaffRole, hotelID string) *model.Staff {
	return &model.Staff{
		ID:      "staff-1",
		HotelID: hotelID,
		Name:    "Front Desk",
		Role:    role,
		Active:  true,
	}
}

// mintToken signs a check-in token and registers its metadata with the repo.
func mintToken(t *testing.T, signer *Signer, repo *fakeTokenRepo, checkInDate time.Time, expiresAt time.Time, usageLimit int) (string, string) {
	t.Helper()

	claims := model.CheckInClaims{
		BookingID:    "bk-1",
		CheckInDate:  checkInDate,
		CheckOutDate: checkInDate.Add(48 * time.Hour),
	}
	raw, err := model.EncodeClaims(claims)
	require.NoError(t, err)

	tokenID := "tok-" + checkInDate.Format("150405.000")
	signed, err := signer.Sign(model.TokenPayload{
		TokenID:    tokenID,
		Type:       model.TokenTypeCheckIn,
		SubjectID:  "guest-1",
		HotelID:    "hotel-1",
		IssuedAt:   time.Now().Unix(),
		ExpiresAt:  expiresAt.Unix(),
		UsageLimit: usageLimit,
		Claims:     raw,
	})
	require.NoError(t, err)

	repo.tokens[tokenID] = &model.QRToken{
		ID:         tokenID,
		Type:       model.TokenTypeCheckIn,
		SubjectID:  "guest-1",
		HotelID:    "hotel-1",
		Claims:     raw,
		ExpiresAt:  expiresAt,
		UsageLimit: usageLimit,
		Status:     model.TokenStatusActive,
	}
	return tokenID, signed
}

func newTestValidator(repo *fakeTokenRepo, policy Policy) *Validator {
	signer := NewSigner("test-signing-secret")
	auditor := audit.NewRecorder(nil, nil)
	return NewValidator(signer, repo, nil, auditor, nil, nil, policy)
}

func TestValidator(t *testing.T) {
	signer := NewSigner("test-signing-secret")
	vctx := Context{
		Action:  model.TokenTypeCheckIn,
		HotelID: "hotel-1",
		Staff:   testStaff(model.RoleFrontDesk, "hotel-1"),
	}

	t.Run("accepts a valid token", func(t *testing.T) {
		repo := newFakeTokenRepo()
		tokenID, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		result, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
		assert.Equal(t, tokenID, result.TokenID)
		assert.Empty(t, result.Warnings)
		assert.Equal(t, 0, result.UsageCount)
		assert.Equal(t, 1, result.UsageLimit)
	})

	t.Run("rejects garbage input as malformed", func(t *testing.T) {
		v := newTestValidator(newFakeTokenRepo(), DefaultPolicy())

		_, err := v.Validate(context.Background(), "not-a-token", vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMalformedToken))
	})

	t.Run("rejects expired token", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(-time.Minute), 1)
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTokenExpired))
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		repo := newFakeTokenRepo()
		expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
		_, signed := mintToken(t, signer, repo, time.Now(), expiresAt, 1)
		v := newTestValidator(repo, DefaultPolicy())
		v.now = func() time.Time { return expiresAt }

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTokenExpired))
	})

	t.Run("reuses a cached result while the token is live", func(t *testing.T) {
		repo := newFakeTokenRepo()
		tokenID, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 5)
		sessionCache := newFakeValidationCache()
		v := NewValidator(signer, repo, sessionCache, audit.NewRecorder(nil, nil), nil, nil, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
		require.Len(t, sessionCache.validations, 1)

		// A second validation is served from the cache without touching the
		// store.
		delete(repo.tokens, tokenID)
		result, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
		assert.Equal(t, tokenID, result.TokenID)
	})

	t.Run("cached result does not outlive expiry", func(t *testing.T) {
		repo := newFakeTokenRepo()
		base := time.Now()
		expiresAt := base.Add(time.Minute)
		_, signed := mintToken(t, signer, repo, base, expiresAt, 5)
		sessionCache := newFakeValidationCache()
		v := NewValidator(signer, repo, sessionCache, audit.NewRecorder(nil, nil), nil, nil, DefaultPolicy())
		v.now = func() time.Time { return base }

		_, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
		require.Len(t, sessionCache.validations, 1)
		assert.LessOrEqual(t, sessionCache.lastTTL, time.Minute)

		v.now = func() time.Time { return expiresAt.Add(30 * time.Second) }
		_, err = v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTokenExpired))
	})

	t.Run("rejects wrong action", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		wrongAction := vctx
		wrongAction.Action = model.TokenTypeCheckOut
		_, err := v.Validate(context.Background(), signed, wrongAction)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTypeMismatch))
	})

	t.Run("rejects wrong hotel", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		otherHotel := vctx
		otherHotel.HotelID = "hotel-2"
		otherHotel.Staff = testStaff(model.RoleFrontDesk, "hotel-2")
		_, err := v.Validate(context.Background(), signed, otherHotel)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeHotelMismatch))
	})

	t.Run("rejects redemption before the early window", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now().Add(26*time.Hour), time.Now().Add(48*time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTooEarly))
	})

	t.Run("allows redemption inside the early window", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now().Add(time.Hour), time.Now().Add(48*time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
	})

	t.Run("late redemption warns by default", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now().Add(-48*time.Hour), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		result, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "late check-in")
	})

	t.Run("late redemption rejects under the reject policy", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now().Add(-48*time.Hour), time.Now().Add(time.Hour), 1)
		policy := DefaultPolicy()
		policy.LateCheckIn = config.PolicyReject
		v := newTestValidator(repo, policy)

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTooLate))
	})

	t.Run("rejects roles that may not redeem", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		housekeeping := vctx
		housekeeping.Staff = testStaff(model.RoleHousekeep, "hotel-1")
		_, err := v.Validate(context.Background(), signed, housekeeping)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("rejects missing staff context", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		anonymous := vctx
		anonymous.Staff = nil
		_, err := v.Validate(context.Background(), signed, anonymous)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("cross-hotel staff warns by default", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		v := newTestValidator(repo, DefaultPolicy())

		crossHotel := vctx
		crossHotel.Staff = testStaff(model.RoleFrontDesk, "hotel-9")
		result, err := v.Validate(context.Background(), signed, crossHotel)
		require.NoError(t, err)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "cross-hotel")
	})

	t.Run("cross-hotel staff rejects under the reject policy", func(t *testing.T) {
		repo := newFakeTokenRepo()
		_, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		policy := DefaultPolicy()
		policy.CrossHotelStaff = config.PolicyReject
		v := newTestValidator(repo, policy)

		crossHotel := vctx
		crossHotel.Staff = testStaff(model.RoleFrontDesk, "hotel-9")
		_, err := v.Validate(context.Background(), signed, crossHotel)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("rejects revoked token", func(t *testing.T) {
		repo := newFakeTokenRepo()
		tokenID, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		repo.tokens[tokenID].Status = model.TokenStatusRevoked
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTokenRevoked))
	})

	t.Run("rejects used token", func(t *testing.T) {
		repo := newFakeTokenRepo()
		tokenID, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		repo.tokens[tokenID].Status = model.TokenStatusUsed
		repo.tokens[tokenID].UsageCount = 1
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTokenUsed))
	})

	t.Run("rejects exhausted multi-use token", func(t *testing.T) {
		repo := newFakeTokenRepo()
		tokenID, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 5)
		repo.tokens[tokenID].UsageCount = 5
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUsageExceeded))
	})

	t.Run("rejects token unknown to the store", func(t *testing.T) {
		repo := newFakeTokenRepo()
		tokenID, signed := mintToken(t, signer, repo, time.Now(), time.Now().Add(time.Hour), 1)
		delete(repo.tokens, tokenID)
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("rejects claims that do not parse", func(t *testing.T) {
		repo := newFakeTokenRepo()
		v := newTestValidator(repo, DefaultPolicy())

		signed, err := signer.Sign(model.TokenPayload{
			TokenID:   "tok-bad-claims",
			Type:      model.TokenTypeCheckIn,
			SubjectID: "guest-1",
			HotelID:   "hotel-1",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
			Claims:    json.RawMessage(`{"bookingId":""}`),
		})
		require.NoError(t, err)

		_, err = v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidPayload))
	})
}

func TestValidatorRoomAccessWindow(t *testing.T) {
	signer := NewSigner("test-signing-secret")

	mintRoomToken := func(t *testing.T, repo *fakeTokenRepo, from, until time.Time) string {
		t.Helper()
		claims := model.RoomAccessClaims{
			BookingID:  "bk-1",
			RoomNumber: "1204",
			ValidFrom:  from,
			ValidUntil: until,
		}
		raw, err := model.EncodeClaims(claims)
		require.NoError(t, err)

		signed, err := signer.Sign(model.TokenPayload{
			TokenID:    "tok-room",
			Type:       model.TokenTypeRoomAccess,
			SubjectID:  "guest-1",
			HotelID:    "hotel-1",
			ExpiresAt:  until.Add(24 * time.Hour).Unix(),
			UsageLimit: 100,
			Claims:     raw,
		})
		require.NoError(t, err)

		repo.tokens["tok-room"] = &model.QRToken{
			ID:         "tok-room",
			Type:       model.TokenTypeRoomAccess,
			HotelID:    "hotel-1",
			Claims:     raw,
			ExpiresAt:  until.Add(24 * time.Hour),
			UsageLimit: 100,
			Status:     model.TokenStatusActive,
		}
		return signed
	}

	vctx := Context{
		Action:  model.TokenTypeRoomAccess,
		HotelID: "hotel-1",
		Staff:   testStaff(model.RoleHousekeep, "hotel-1"),
	}

	t.Run("rejects before validFrom", func(t *testing.T) {
		repo := newFakeTokenRepo()
		signed := mintRoomToken(t, repo, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTooEarly))
	})

	t.Run("rejects after validUntil", func(t *testing.T) {
		repo := newFakeTokenRepo()
		signed := mintRoomToken(t, repo, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
		v := newTestValidator(repo, DefaultPolicy())

		_, err := v.Validate(context.Background(), signed, vctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTooLate))
	})

	t.Run("accepts inside the window", func(t *testing.T) {
		repo := newFakeTokenRepo()
		signed := mintRoomToken(t, repo, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		v := newTestValidator(repo, DefaultPolicy())

		result, err := v.Validate(context.Background(), signed, vctx)
		require.NoError(t, err)
		assert.Equal(t, model.TokenTypeRoomAccess, result.Type)
	})
}
