package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/cloudnine/checkin-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Hint    string              `json:"hint,omitempty"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	status := statusFromCode(appErr.Code)
	response := ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Hint:    appErr.Hint,
		Details: appErr.Details,
	}

	WriteJSON(w, status, response)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeMalformedToken,
		apperrors.ErrCodeInvalidPayload,
		apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeAuthRequired:
		return http.StatusUnauthorized

	// 403 Forbidden
	case apperrors.ErrCodeForbidden,
		apperrors.ErrCodeUnauthorized:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeAlreadyInProgress,
		apperrors.ErrCodeAlreadyCheckedIn,
		apperrors.ErrCodeProcessTerminal:
		return http.StatusConflict

	// 422 Unprocessable Entity: token is well-formed but not redeemable
	case apperrors.ErrCodeTokenExpired,
		apperrors.ErrCodeTokenRevoked,
		apperrors.ErrCodeTokenUsed,
		apperrors.ErrCodeTypeMismatch,
		apperrors.ErrCodeHotelMismatch,
		apperrors.ErrCodeUsageExceeded,
		apperrors.ErrCodeTooEarly,
		apperrors.ErrCodeTooLate,
		apperrors.ErrCodeBookingNotEligible,
		apperrors.ErrCodePaymentFailed:
		return http.StatusUnprocessableEntity

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase,
		apperrors.ErrCodeCache,
		apperrors.ErrCodeCommitFailed,
		apperrors.ErrCodeGenerationFailed:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
