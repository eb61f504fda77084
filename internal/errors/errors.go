// Package errors provides structured error handling for portsweep operations.
// It defines error codes and typed errors for configuration, scanning,
// report writing and database persistence, so callers can decide whether a
// failure aborts a scan or only degrades its results.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeConflict      ErrorCode = "CONFLICT"

	// Target and scanning errors.
	CodeTargetInvalid     ErrorCode = "TARGET_INVALID"
	CodeResolutionFailed  ErrorCode = "RESOLUTION_FAILED"
	CodeConnRefused       ErrorCode = "CONNECTION_REFUSED"
	CodeConnReset         ErrorCode = "CONNECTION_RESET"
	CodeHostUnreachable   ErrorCode = "HOST_UNREACHABLE"
	CodeScanFailed        ErrorCode = "SCAN_FAILED"
	CodeFingerprintFailed ErrorCode = "FINGERPRINT_FAILED"

	// Report errors.
	CodeReportWrite ErrorCode = "REPORT_WRITE"
	CodeNoResults   ErrorCode = "NO_RESULTS"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	CodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"
	CodeDatabaseDisabled   ErrorCode = "DATABASE_DISABLED"
)

// ConfigError represents an invalid scan request or configuration value.
// It is always returned before any scanning side effect takes place.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ScanError represents an error that occurred during a scan.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Port      int
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	switch {
	case e.Target != "" && e.Port > 0:
		return fmt.Sprintf("[%s] %s (target: %s, port: %d)", e.Code, e.Message, e.Target, e.Port)
	case e.Target != "":
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ReportError represents a failure to render or persist a scan report.
type ReportError struct {
	Code    ErrorCode
	Message string
	Format  string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path: %s)", e.Code, e.Message, e.Path)
	}
	if e.Format != "" {
		return fmt.Sprintf("[%s] %s (format: %s)", e.Code, e.Message, e.Format)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// WrapReportError wraps a write failure for the given format and path.
func WrapReportError(format, path string, err error) *ReportError {
	return &ReportError{
		Code:    CodeReportWrite,
		Message: "Failed to write report",
		Format:  format,
		Path:    path,
		Cause:   err,
	}
}

// DatabaseError represents database-related errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a new database error.
func NewDatabaseError(code ErrorCode, message string) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
	}
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message string, err error) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// GetCode extracts the error code from the first typed error in the chain.
func GetCode(err error) ErrorCode {
	var (
		cfgErr    *ConfigError
		scanErr   *ScanError
		reportErr *ReportError
		dbErr     *DatabaseError
	)
	switch {
	case err == nil:
		return CodeUnknown
	case stderrors.As(err, &cfgErr):
		return cfgErr.Code
	case stderrors.As(err, &scanErr):
		return scanErr.Code
	case stderrors.As(err, &reportErr):
		return reportErr.Code
	case stderrors.As(err, &dbErr):
		return dbErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return stderrors.As(err, &cfgErr)
}

// IsFatal determines if an error should abort the whole operation.
// Only configuration and resolution problems stop a scan; per-port and
// fingerprint failures degrade results instead.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeValidation, CodeConfiguration, CodeTargetInvalid, CodeResolutionFailed, CodePermission:
		return true
	default:
		return false
	}
}

// ErrConfigInvalid creates an error for an invalid configuration value.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for a missing required field.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Required field missing", field, nil)
}

// ErrResolution creates an error for a target that cannot be resolved.
func ErrResolution(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeResolutionFailed, "Unable to resolve target", target, err)
}

// ErrNoResults creates an error for a report request with nothing to report.
func ErrNoResults() *ReportError {
	return &ReportError{Code: CodeNoResults, Message: "No open ports found"}
}

// ErrDatabaseConnection creates an error for database connection failures.
func ErrDatabaseConnection(err error) *DatabaseError {
	return WrapDatabaseError(CodeDatabaseConnection, "Failed to connect to database", err)
}
