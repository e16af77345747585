package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Token not found")
		assert.Equal(t, "NOT_FOUND: Token not found", err.Error())
	})

	t.Run("includes cause in message and unwraps it", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)

		assert.Contains(t, err.Error(), "connection refused")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("with cause preserves the code", func(t *testing.T) {
		err := TokenExpired().WithCause(errors.New("clock drift"))
		assert.Equal(t, ErrCodeTokenExpired, err.Code)
	})

	t.Run("survives wrapping with fmt.Errorf", func(t *testing.T) {
		wrapped := fmt.Errorf("redeem: %w", TokenRevoked())

		appErr, ok := AsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeTokenRevoked, appErr.Code)
		assert.True(t, HasCode(wrapped, ErrCodeTokenRevoked))
	})
}

func TestCodeHelpers(t *testing.T) {
	t.Run("GetCode on app errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeUsageExceeded, GetCode(UsageExceeded()))
		assert.Equal(t, ErrCodeTooEarly, GetCode(TooEarly("not yet")))
	})

	t.Run("GetCode falls back to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
	})

	t.Run("HasCode on plain errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), ErrCodeNotFound))
		assert.False(t, HasCode(nil, ErrCodeNotFound))
	})

	t.Run("IsAppError", func(t *testing.T) {
		assert.True(t, IsAppError(HotelMismatch()))
		assert.False(t, IsAppError(errors.New("plain")))
	})
}

func TestConstructors(t *testing.T) {
	t.Run("already in progress carries the token id", func(t *testing.T) {
		err := AlreadyInProgress("tok-1")
		details, ok := err.Details.(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "tok-1", details["tokenId"])
		assert.NotEmpty(t, err.Hint)
	})

	t.Run("type mismatch names both types", func(t *testing.T) {
		err := TypeMismatch("check_in", "payment")
		assert.Contains(t, err.Message, "payment")
		assert.Contains(t, err.Message, "check_in")
	})

	t.Run("missing required names the field", func(t *testing.T) {
		err := MissingRequired("hotelId")
		assert.Equal(t, "hotelId is required", err.Message)
	})
}
