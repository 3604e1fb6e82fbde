// Package xbuserr is the error taxonomy shared by every xbus-go component:
// Transport, RegistryAPI, WatchTask and ServiceKeeper all report failures
// through *Error so callers can classify a failure without parsing
// strings.
package xbuserr

import (
	crdb "github.com/cockroachdb/errors"
)

// Kind discriminates the error taxonomy.
type Kind int

const (
	// KindOther is the fallback kind for errors that don't fit elsewhere.
	KindOther Kind = iota
	// KindTransport covers local I/O and HTTP client failures.
	KindTransport
	// KindTLS covers handshake, certificate loading, and CN extraction
	// failures.
	KindTLS
	// KindSerialization covers JSON/YAML/form encode-decode failures.
	KindSerialization
	// KindRequest covers server-reported failures carrying a response
	// envelope error code.
	KindRequest
	// KindNotPermitted covers a server refusal of specific named
	// resources.
	KindNotPermitted
)

// retryableCodes are the response envelope error codes classified
// retryable per spec §6/§7.
var retryableCodes = map[string]bool{
	"SYSTEM_ERROR":      true,
	"TOO_MANY_ATTEMPTS": true,
	"DEADLINE_EXCEEDED": true,
	"CANCELLED":         true,
}

// timeoutCodes are the response envelope error codes that represent a
// deadline being exceeded as reported by the server. A local
// (transport-level) timeout is marked by the timeout flag instead.
var timeoutCodes = map[string]bool{
	"DEADLINE_EXCEEDED": true,
}

// Error is the single concrete error type for the xbus-go client. Use the
// constructors below rather than building one by hand.
type Error struct {
	kind    Kind
	msg     string
	code    string   // set for KindRequest
	keys    []string // set for KindNotPermitted
	timeout bool     // set for KindTransport built via Timeout
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Kind reports the taxonomy bucket this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the response envelope error code for a KindRequest error,
// or the empty string otherwise.
func (e *Error) Code() string { return e.code }

// Keys returns the resource names a KindNotPermitted error names.
func (e *Error) Keys() []string { return e.keys }

// CanRetry reports whether the failed operation may be retried as-is,
// per the table in spec §7.
func (e *Error) CanRetry() bool {
	switch e.kind {
	case KindTLS, KindSerialization, KindNotPermitted, KindOther:
		return false
	case KindRequest:
		return retryableCodes[e.code]
	case KindTransport:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether this error represents a deadline being
// exceeded, locally or server-side.
func (e *Error) IsTimeout() bool {
	if e.timeout {
		return true
	}
	if e.kind == KindRequest {
		return timeoutCodes[e.code]
	}
	return false
}

// IsNotFound reports whether this error represents a NOT_FOUND response
// from the registry.
func (e *Error) IsNotFound() bool {
	return e.kind == KindRequest && e.code == "NOT_FOUND"
}

// Transport wraps a local I/O or HTTP client failure.
func Transport(cause error) *Error {
	return &Error{kind: KindTransport, msg: "transport error", cause: crdb.WithStack(cause)}
}

// Timeout builds a transport-level timeout error — the local deadline
// elapsed before the server responded at all.
func Timeout(cause error) *Error {
	return &Error{kind: KindTransport, msg: "timeout", cause: crdb.WithStack(cause), timeout: true}
}

// TLSError wraps a handshake, certificate-loading, or CN-extraction
// failure.
func TLSError(cause error) *Error {
	return &Error{kind: KindTLS, msg: "tls error", cause: crdb.WithStack(cause)}
}

// Serialization wraps a JSON/YAML/form encode or decode failure.
func Serialization(cause error) *Error {
	return &Error{kind: KindSerialization, msg: "serialization error", cause: crdb.WithStack(cause)}
}

// Request builds a server-reported failure carrying a response envelope
// error code and message.
func Request(code, message string) *Error {
	return &Error{kind: KindRequest, msg: message, code: code, cause: crdb.WithStack(crdb.New(message))}
}

// NotPermitted builds a permanent per-resource refusal; keys names the
// service or config-key identifiers the server rejected.
func NotPermitted(message string, keys []string) *Error {
	return &Error{kind: KindNotPermitted, msg: message, keys: keys, cause: crdb.WithStack(crdb.New(message))}
}

// Other wraps an arbitrary non-retryable failure that doesn't fit the
// rest of the taxonomy (duplicate registration, closed keeper, etc).
func Other(message string) *Error {
	return &Error{kind: KindOther, msg: message, cause: crdb.WithStack(crdb.New(message))}
}

// Wrap attaches message as context to cause while keeping cause's kind
// classification. Returns nil if cause is nil.
func Wrap(cause error, message string) error {
	if cause == nil {
		return nil
	}
	var xe *Error
	if crdb.As(cause, &xe) {
		return &Error{kind: xe.kind, msg: message, code: xe.code, keys: xe.keys, timeout: xe.timeout, cause: crdb.Wrap(cause, message)}
	}
	return &Error{kind: KindOther, msg: message, cause: crdb.Wrap(cause, message)}
}

// IsRetryable classifies a raw response envelope error code per the
// table in spec §6/§7, independent of any constructed *Error.
func IsRetryable(code string) bool { return retryableCodes[code] }
