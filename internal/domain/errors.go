package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrUnknownIntent      = fmt.Errorf("no handler for intent type")
	ErrMissingEntities    = fmt.Errorf("intent is missing required entities")
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrToolInBackoff      = fmt.Errorf("tool is in its backoff window")
	ErrToolExhausted      = fmt.Errorf("tool retries exceeded")
	ErrNetworkUnavailable = fmt.Errorf("tool requires network while offline")
	ErrToolTimeout        = fmt.Errorf("tool execution timed out")
	ErrToolExecution      = fmt.Errorf("tool execution failed")
	ErrModelUnavailable   = fmt.Errorf("no inference backend reachable")
	ErrMalformedAction    = fmt.Errorf("malformed action payload")
	ErrMaxIterations      = fmt.Errorf("reasoning loop reached max iterations")
	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrCapabilityMissing  = fmt.Errorf("platform capability unavailable")

	// Resilience errors mapped from provider HTTP responses.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Invoke")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is transient and may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrContextOverflow) ||
		errors.Is(err, ErrToolTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeUnknownIntent      ErrorCode = "UNKNOWN_INTENT"
	CodeMissingEntities    ErrorCode = "MISSING_ENTITIES"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeToolInBackoff      ErrorCode = "TOOL_BACKOFF"
	CodeToolExhausted      ErrorCode = "TOOL_RETRIES_EXCEEDED"
	CodeNetworkUnavailable ErrorCode = "NETWORK_UNAVAILABLE"
	CodeToolTimeout        ErrorCode = "TOOL_TIMEOUT"
	CodeToolExecution      ErrorCode = "TOOL_EXEC"
	CodeModelUnavailable   ErrorCode = "MODEL_UNAVAILABLE"
	CodeMalformedAction    ErrorCode = "MALFORMED_ACTION"
	CodeMaxIterations      ErrorCode = "MAX_ITERATIONS"
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeCapabilityMissing  ErrorCode = "CAPABILITY_MISSING"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrUnknownIntent:      CodeUnknownIntent,
	ErrMissingEntities:    CodeMissingEntities,
	ErrToolNotFound:       CodeToolNotFound,
	ErrToolInBackoff:      CodeToolInBackoff,
	ErrToolExhausted:      CodeToolExhausted,
	ErrNetworkUnavailable: CodeNetworkUnavailable,
	ErrToolTimeout:        CodeToolTimeout,
	ErrToolExecution:      CodeToolExecution,
	ErrModelUnavailable:   CodeModelUnavailable,
	ErrMalformedAction:    CodeMalformedAction,
	ErrMaxIterations:      CodeMaxIterations,
	ErrSessionNotFound:    CodeSessionNotFound,
	ErrConfigLoad:         CodeConfigLoad,
	ErrCapabilityMissing:  CodeCapabilityMissing,
	ErrDecryption:         CodeDecryption,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
