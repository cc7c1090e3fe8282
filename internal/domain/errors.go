package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Pair them with NewSubSystemError to get a
// subsystem-specific ErrorCode.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimit    = errors.New("rate limit exceeded")
)

// Sentinels for the fetch path.
var (
	ErrSSRFBlocked      = errors.New("request to private/reserved address blocked")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrFetchExhausted   = errors.New("fetch retries exhausted")
	ErrCircuitOpen      = errors.New("host circuit open")
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrAuditWrite   = errors.New("failed to write audit event")
)

// DomainError wraps a sentinel with the operation that failed.
type DomainError struct {
	Op        string // e.g. "Fetcher.Fetch"
	Err       error
	Detail    string
	SubSystem string // "fetch" or "search"; selects a specific ErrorCode
}

func (e *DomainError) Error() string {
	if e.Detail == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with the subsystem it came from.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// IsRetryableError reports whether err is transient: the same request may
// succeed later without any change.
func IsRetryableError(err error) bool {
	for _, s := range []error{ErrTimeout, ErrRateLimit, ErrFetchExhausted, ErrCircuitOpen} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// ErrorCode is a stable, machine-readable error category used in logs,
// span attributes and audit records.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeSSRFBlocked      ErrorCode = "SSRF_BLOCKED"
	CodeTooManyRedirects ErrorCode = "TOO_MANY_REDIRECTS"
	CodeFetchExhausted   ErrorCode = "FETCH_EXHAUSTED"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeAuditWrite       ErrorCode = "AUDIT_WRITE"

	CodeFetchTimeout    ErrorCode = "FETCH_TIMEOUT"
	CodeURLInvalid      ErrorCode = "URL_INVALID"
	CodeQueryInvalid    ErrorCode = "QUERY_INVALID"
	CodeSearchThrottled ErrorCode = "SEARCH_THROTTLED"
)

var errorCodes = map[error]ErrorCode{
	ErrTimeout:          CodeTimeout,
	ErrInvalidInput:     CodeInvalidInput,
	ErrRateLimit:        CodeRateLimit,
	ErrSSRFBlocked:      CodeSSRFBlocked,
	ErrTooManyRedirects: CodeTooManyRedirects,
	ErrFetchExhausted:   CodeFetchExhausted,
	ErrCircuitOpen:      CodeCircuitOpen,
	ErrToolNotFound:     CodeToolNotFound,
	ErrAuditWrite:       CodeAuditWrite,
}

// subSystemCodes refines a category sentinel per subsystem.
var subSystemCodes = map[error]map[string]ErrorCode{
	ErrTimeout:      {"fetch": CodeFetchTimeout},
	ErrInvalidInput: {"fetch": CodeURLInvalid, "search": CodeQueryInvalid},
	ErrRateLimit:    {"search": CodeSearchThrottled},
}

// ErrorCodeOf returns the code of the first DomainError or sentinel found in
// err's chain, or CodeUnknown.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code maps the wrapped sentinel to an ErrorCode, preferring the
// subsystem-specific one.
func (e *DomainError) Code() ErrorCode {
	if byName, ok := subSystemCodes[e.Err]; ok {
		if code, ok := byName[e.SubSystem]; ok {
			return code
		}
	}
	if code, ok := errorCodes[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
