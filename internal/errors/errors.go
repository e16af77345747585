package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Token input
	ErrCodeMalformedToken ErrorCode = "MALFORMED_TOKEN"
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// Token policy
	ErrCodeTokenExpired  ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked  ErrorCode = "TOKEN_REVOKED"
	ErrCodeTokenUsed     ErrorCode = "TOKEN_USED"
	ErrCodeTypeMismatch  ErrorCode = "TYPE_MISMATCH"
	ErrCodeHotelMismatch ErrorCode = "HOTEL_MISMATCH"
	ErrCodeUsageExceeded ErrorCode = "USAGE_EXCEEDED"
	ErrCodeTooEarly      ErrorCode = "TOO_EARLY"
	ErrCodeTooLate       ErrorCode = "TOO_LATE"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED_ACTOR"

	// Orchestration preconditions
	ErrCodeAlreadyInProgress  ErrorCode = "ALREADY_IN_PROGRESS"
	ErrCodeBookingNotEligible ErrorCode = "BOOKING_NOT_ELIGIBLE"
	ErrCodeAlreadyCheckedIn   ErrorCode = "ALREADY_CHECKED_IN"
	ErrCodePaymentFailed      ErrorCode = "PAYMENT_FAILED"
	ErrCodeProcessTerminal    ErrorCode = "PROCESS_TERMINAL"

	// Commit
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"

	// Issuance
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"

	// Validation / input
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Auth / rate limiting
	ErrCodeAuthRequired      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeCache    ErrorCode = "CACHE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithHint attaches a troubleshooting hint for staff-facing clients
func (e *AppError) WithHint(hint string) *AppError {
	e.Hint = hint
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func MalformedToken() *AppError {
	return New(ErrCodeMalformedToken, "Token is malformed or its signature is invalid").
		WithHint("Re-scan the QR code; if the problem persists, ask the guest to refresh it")
}

func InvalidPayload(reason string) *AppError {
	return New(ErrCodeInvalidPayload, fmt.Sprintf("Invalid token payload: %s", reason))
}

func TokenExpired() *AppError {
	return New(ErrCodeTokenExpired, "Token has expired").
		WithHint("Issue a fresh token from the booking")
}

func TokenRevoked() *AppError {
	return New(ErrCodeTokenRevoked, "Token has been revoked")
}

func TokenUsed() *AppError {
	return New(ErrCodeTokenUsed, "Token has already been used")
}

func TypeMismatch(want, got string) *AppError {
	return New(ErrCodeTypeMismatch, fmt.Sprintf("Token type %s cannot be used for %s", got, want))
}

func HotelMismatch() *AppError {
	return New(ErrCodeHotelMismatch, "Token is bound to a different hotel")
}

func UsageExceeded() *AppError {
	return New(ErrCodeUsageExceeded, "Token usage limit reached")
}

func TooEarly(message string) *AppError {
	return New(ErrCodeTooEarly, message).
		WithHint("Ask the guest to return closer to the scheduled check-in time")
}

func TooLate(message string) *AppError {
	return New(ErrCodeTooLate, message)
}

func UnauthorizedActor(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func AlreadyInProgress(tokenID string) *AppError {
	return New(ErrCodeAlreadyInProgress, "A check-in for this token is already in progress").
		WithHint("Wait for the current attempt to finish, then poll the process status").
		WithDetails(map[string]string{"tokenId": tokenID})
}

func BookingNotEligible(reason string) *AppError {
	return New(ErrCodeBookingNotEligible, fmt.Sprintf("Booking is not eligible for check-in: %s", reason))
}

func AlreadyCheckedIn() *AppError {
	return New(ErrCodeAlreadyCheckedIn, "Booking is already checked in")
}

func PaymentFailed() *AppError {
	return New(ErrCodePaymentFailed, "Booking payment has failed").
		WithHint("Resolve the payment at the front desk before checking in")
}

func ProcessTerminal(status string) *AppError {
	return New(ErrCodeProcessTerminal, fmt.Sprintf("Process is already %s", status))
}

func CommitFailed(cause error) *AppError {
	return Wrap(ErrCodeCommitFailed, "Failed to commit check-in", cause)
}

func GenerationFailed(cause error) *AppError {
	return Wrap(ErrCodeGenerationFailed, "Failed to generate token", cause)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeAuthRequired, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func Cache(cause error) *AppError {
	return Wrap(ErrCodeCache, "Cache error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
