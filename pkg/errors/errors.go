// Package errors provides a structured error system for mediacache with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Store errors
	ErrCodeStoreWrite    ErrorCode = "STORE_WRITE"
	ErrCodeStoreQuota    ErrorCode = "STORE_QUOTA"
	ErrCodeEntryCorrupt  ErrorCode = "ENTRY_CORRUPT"
	ErrCodeEntryExpired  ErrorCode = "ENTRY_EXPIRED"
	ErrCodeOwnerMismatch ErrorCode = "OWNER_MISMATCH"

	// Resolution errors
	ErrCodeResolveFailed  ErrorCode = "RESOLVE_FAILED"
	ErrCodeResolveTimeout ErrorCode = "RESOLVE_TIMEOUT"

	// State errors
	ErrCodeAlreadyStarted   ErrorCode = "ALREADY_STARTED"
	ErrCodeComponentStopped ErrorCode = "COMPONENT_STOPPED"

	// Capability errors
	ErrCodeCapabilityMissing ErrorCode = "CAPABILITY_MISSING"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStore         ErrorCategory = "store"
	CategoryResolution    ErrorCategory = "resolution"
	CategoryState         ErrorCategory = "state"
	CategoryCapability    ErrorCategory = "capability"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`

	Cause     error     `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *CacheError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("CacheError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new cache error with default values.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// WrapError creates a new cache error wrapping an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *CacheError {
	err := NewError(code, message)
	err.Cause = cause
	return err
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "STORE_") || strings.HasPrefix(codeStr, "ENTRY_") ||
		strings.HasPrefix(codeStr, "OWNER_"):
		return CategoryStore
	case strings.HasPrefix(codeStr, "RESOLVE_"):
		return CategoryResolution
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "COMPONENT_"):
		return CategoryState
	case strings.HasPrefix(codeStr, "CAPABILITY_"):
		return CategoryCapability
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeResolveFailed:  true,
		ErrCodeResolveTimeout: true,
		ErrCodeStoreQuota:     true,
		ErrCodeInternalError:  true,
	}
	return retryableCodes[code]
}

// WithContext adds contextual information to an error
func (e *CacheError) WithContext(key, value string) *CacheError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}
