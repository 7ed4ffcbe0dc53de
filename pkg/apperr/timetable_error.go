package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	// Credential errors (external calendar access)
	CodeReauthRequired = "REAUTH_REQUIRED"
	CodeAuthTransient  = "AUTH_TRANSIENT"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeMissingField     = "MISSING_FIELD"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// External errors
	CodeRemoteNotFound = "REMOTE_NOT_FOUND"
	CodeRemoteConflict = "REMOTE_CONFLICT"
	CodeExternalError  = "EXTERNAL_ERROR"

	// Local store errors
	CodePersistence   = "PERSISTENCE_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeSyncLocked    = "SYNC_IN_PROGRESS"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// ReauthRequired signals a dead refresh token: the user has to run the
// consent flow again. Terminal for any sync batch it surfaces in.
func ReauthRequired(err error) *AppError {
	return &AppError{
		Code:    CodeReauthRequired,
		Message: "calendar authorization expired, re-consent required",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

// AuthTransient signals a refresh failure that is not known to be terminal.
// Callers may retry once after a fresh refresh attempt.
func AuthTransient(err error) *AppError {
	return &AppError{
		Code:    CodeAuthTransient,
		Message: "temporary calendar authorization failure",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func ValidationFailed(message string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// SyncLocked signals that another sync/recovery run holds the per-week lock.
func SyncLocked(userID, week string) *AppError {
	return &AppError{
		Code:    CodeSyncLocked,
		Message: "a sync operation is already running for this week",
		Status:  http.StatusConflict,
		Details: map[string]any{"user_id": userID, "week": week},
	}
}

// External errors
func RemoteNotFound(eventID string) *AppError {
	return &AppError{
		Code:    CodeRemoteNotFound,
		Message: "remote calendar event not found",
		Status:  http.StatusNotFound,
		Details: map[string]any{"event_id": eventID},
	}
}

func RemoteConflict(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeRemoteConflict,
		Message: fmt.Sprintf("remote calendar rejected %s", operation),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func ExternalError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalError,
		Message: fmt.Sprintf("external service error: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Local store errors
func Persistence(operation string, err error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Message: fmt.Sprintf("local store write failed: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsReauthRequired reports whether err carries the terminal credential
// failure signal.
func IsReauthRequired(err error) bool { return HasCode(err, CodeReauthRequired) }

// IsAuthTransient reports whether err is a retryable authorization failure.
func IsAuthTransient(err error) bool { return HasCode(err, CodeAuthTransient) }

// IsRemoteNotFound reports whether err is a remote 404/410.
func IsRemoteNotFound(err error) bool { return HasCode(err, CodeRemoteNotFound) }

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
