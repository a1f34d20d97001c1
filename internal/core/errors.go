package core

import "fmt"

type ErrorCode string

const (
	ErrBadRequest           ErrorCode = "SESS_BAD_REQUEST"
	ErrUnauthorized         ErrorCode = "SESS_UNAUTHORIZED"
	ErrNotFound             ErrorCode = "SESS_NOT_FOUND"
	ErrInvalidPath          ErrorCode = "SESS_INVALID_PATH"
	ErrSecurityViolation    ErrorCode = "SESS_SECURITY_VIOLATION"
	ErrInvalidRepo          ErrorCode = "SESS_INVALID_REPO"
	ErrInvalidCleanupTarget ErrorCode = "SESS_INVALID_CLEANUP_TARGET"
	ErrVersionConflict      ErrorCode = "SESS_VERSION_CONFLICT"
	ErrQuotaExceeded        ErrorCode = "SESS_QUOTA_EXCEEDED"
	ErrSizeLimit            ErrorCode = "SESS_SIZE_LIMIT"
	ErrTimeout              ErrorCode = "SESS_TIMEOUT"
	ErrInternal             ErrorCode = "SESS_INTERNAL"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest, ErrInvalidPath, ErrSecurityViolation, ErrInvalidRepo, ErrInvalidCleanupTarget:
		return 400
	case ErrUnauthorized:
		return 401
	case ErrNotFound:
		return 404
	case ErrVersionConflict:
		return 409
	case ErrSizeLimit:
		return 413
	case ErrQuotaExceeded:
		return 429
	case ErrTimeout:
		return 504
	default:
		return 500
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// VersionConflictError reports that a conditional session update matched the
// id but not the expected version. It is the only error the retry layer
// treats as retryable.
type VersionConflictError struct {
	SessionID       string
	ExpectedVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: session %s is not at version %d", ErrVersionConflict, e.SessionID, e.ExpectedVersion)
}
