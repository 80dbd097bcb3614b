package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/docsync/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// Remote item errors (20-29)
	ExitFileNotFound     = 20
	ExitPermissionDenied = 21
	ExitChecksumMismatch = 22
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument       = 40
	ExitInvalidPath           = 41
	ExitPathCollision         = 42
	ExitDuplicateAccount      = 43
	ExitDuplicateRemoteFolder = 44
	ExitInvalidTransition     = 45
	// Sync errors
	ExitSyncPartialFailure = 60
	ExitSyncBusy           = 61
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired          = "AUTH_REQUIRED"
	ErrCodeAuthExpired           = "AUTH_EXPIRED"
	ErrCodeNoCredential          = "NO_CREDENTIAL"
	ErrCodeFileNotFound          = "FILE_NOT_FOUND"
	ErrCodePermissionDenied      = "PERMISSION_DENIED"
	ErrCodeChecksumMismatch      = "CHECKSUM_MISMATCH"
	ErrCodeNetworkError          = "NETWORK_ERROR"
	ErrCodeTimeout               = "TIMEOUT"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInvalidArgument       = "INVALID_ARGUMENT"
	ErrCodeInvalidPath           = "INVALID_PATH"
	ErrCodePathCollision         = "PATH_COLLISION"
	ErrCodeDuplicateAccount      = "DUPLICATE_ACCOUNT"
	ErrCodeDuplicateRemoteFolder = "DUPLICATE_REMOTE_FOLDER"
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeSyncPartialFailure    = "SYNC_PARTIAL_FAILURE"
	ErrCodeSyncBusy              = "SYNC_BUSY"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeCancelled             = "CANCELLED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeUnknown               = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithReason(reason string) *CLIErrorBuilder {
	b.err.Reason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// Err builds the error and wraps it in an AppError
func (b *CLIErrorBuilder) Err() *AppError {
	return NewAppError(b.err)
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:          ExitAuthRequired,
		ErrCodeAuthExpired:           ExitAuthExpired,
		ErrCodeNoCredential:          ExitAuthRequired,
		ErrCodeFileNotFound:          ExitFileNotFound,
		ErrCodeNotFound:              ExitFileNotFound,
		ErrCodePermissionDenied:      ExitPermissionDenied,
		ErrCodeChecksumMismatch:      ExitChecksumMismatch,
		ErrCodeNetworkError:          ExitNetworkError,
		ErrCodeTimeout:               ExitTimeout,
		ErrCodeRateLimited:           ExitRateLimited,
		ErrCodeInvalidArgument:       ExitInvalidArgument,
		ErrCodeInvalidPath:           ExitInvalidPath,
		ErrCodePathCollision:         ExitPathCollision,
		ErrCodeDuplicateAccount:      ExitDuplicateAccount,
		ErrCodeDuplicateRemoteFolder: ExitDuplicateRemoteFolder,
		ErrCodeInvalidTransition:     ExitInvalidTransition,
		ErrCodeSyncPartialFailure:    ExitSyncPartialFailure,
		ErrCodeSyncBusy:              ExitSyncBusy,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches another AppError with the same code, so codes work as sentinels
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.CLIError.Code == e.CLIError.Code
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps the underlying cause
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// CodeOf returns the error code carried by err, or ErrCodeUnknown
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ErrCodeUnknown
}

// IsCode reports whether err carries the given code
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code == code
	}
	return false
}

// IsRetryable reports whether err was classified as transient
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Retryable
	}
	return false
}

// ToCLIError converts any error into a CLIError for output
func ToCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}
