package subwire

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error types carried by ClientError.Type.
const (
	ErrorTypeNetwork            = "Network"
	ErrorTypeTimeout            = "Timeout"
	ErrorTypeServer             = "Server"
	ErrorTypeClient             = "Client"
	ErrorTypeAuthentication     = "Authentication"
	ErrorTypeCacheUnsatisfiable = "CacheUnsatisfiable"
	ErrorTypeMalformedResponse  = "MalformedResponse"
	ErrorTypeUnsupportedVersion = "UnsupportedVersion"
	ErrorTypeValidation         = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrMalformedResponse is returned when a response body is not the expected JSON envelope.
	ErrMalformedResponse = errors.New("subwire: malformed response")

	// ErrAuthenticationRejected is returned when the server refuses the credentials
	// sent with the negotiated auth scheme. The other scheme is never tried automatically.
	ErrAuthenticationRejected = errors.New("subwire: authentication rejected")

	// ErrUnsatisfiableFromCache is returned when a request forced to the cache
	// (offline) has no stored entry within the stale ceiling.
	ErrUnsatisfiableFromCache = errors.New("subwire: unsatisfiable from cache")

	// ErrUnsupportedVersion is returned by exact version parsing for strings outside the known set.
	ErrUnsupportedVersion = errors.New("subwire: unsupported protocol version")

	// ErrReadTimeout is returned when no response bytes arrive within the per-call read timeout.
	ErrReadTimeout = errors.New("subwire: read timeout")
)

// ClientError is the structured error returned by Client operations.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Endpoint   string
	Timestamp  time.Time
	Duration   time.Duration
}

// IsTransient determines if an error represents a transient failure that a host
// retry policy might reasonably retry. The client itself never retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrReadTimeout) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer:
			return true
		case ErrorTypeClient:
			return clientErr.StatusCode == http.StatusTooManyRequests
		default:
			return false
		}
	}

	return false
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
