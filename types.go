package subwire

import (
	"net/http"
)

// Middleware represents a middleware function
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)

// NetworkState reports whether the host currently has a network path to the server.
type NetworkState interface {
	IsOnline() bool
}

// NetworkStateFunc adapts a plain function to NetworkState.
type NetworkStateFunc func() bool

func (f NetworkStateFunc) IsOnline() bool {
	return f()
}

// VersionListener is invoked after the tracked protocol version changes.
type VersionListener func(ProtocolVersion)

// chain wraps next with middleware so that middleware[0] runs first.
func chain(next RoundTripper, middleware ...Middleware) RoundTripper {
	current := next
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		inner := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, inner)
		})
	}
	return current
}
