package subwire

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Envelope status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Server error codes that mean the credentials were refused.
const (
	ErrCodeWrongCredentials      = 40
	ErrCodeTokenAuthNotSupported = 41
)

// APIError is the error object carried by a failed envelope.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Envelope is the common part of every JSON response.
type Envelope struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Error   *APIError `json:"error,omitempty"`
}

// DecodeResponse reads and closes resp.Body, checks the response envelope and,
// when out is non-nil, decodes the envelope's contents into it. Failed
// envelopes with credential codes return ErrAuthenticationRejected; bodies that
// are not a JSON envelope return ErrMalformedResponse.
func DecodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ClientError{Type: ErrorTypeNetwork, Message: "read response body", Cause: err, StatusCode: resp.StatusCode}
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return malformed(resp, err)
	}
	inner, ok := wrapper[envelopeKey]
	if !ok {
		return malformed(resp, fmt.Errorf("missing %q", envelopeKey))
	}

	var env Envelope
	if err := json.Unmarshal(inner, &env); err != nil {
		return malformed(resp, err)
	}

	switch env.Status {
	case StatusOK:
	case StatusFailed:
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Message: "unspecified failure"}
		}
		if apiErr.Code == ErrCodeWrongCredentials || apiErr.Code == ErrCodeTokenAuthNotSupported {
			return &ClientError{
				Type:       ErrorTypeAuthentication,
				Message:    apiErr.Message,
				Cause:      fmt.Errorf("%w: %w", ErrAuthenticationRejected, apiErr),
				StatusCode: resp.StatusCode,
			}
		}
		return &ClientError{Type: ErrorTypeServer, Message: apiErr.Message, Cause: apiErr, StatusCode: resp.StatusCode}
	default:
		return malformed(resp, fmt.Errorf("unknown status %q", env.Status))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(inner, out); err != nil {
		return malformed(resp, err)
	}
	return nil
}

func malformed(resp *http.Response, cause error) error {
	return &ClientError{
		Type:       ErrorTypeMalformedResponse,
		Message:    "response is not a valid envelope",
		Cause:      fmt.Errorf("%w: %w", ErrMalformedResponse, cause),
		StatusCode: resp.StatusCode,
	}
}
