package subwire

import (
	"net/http"
	"strconv"
	"time"
)

// DefaultStaleCeiling is the oldest a stored response may be, past its
// freshness lifetime, and still be served while offline.
const DefaultStaleCeiling = 30 * 24 * time.Hour

// ApplyOfflinePolicy returns req unchanged when the network is reachable (or
// no state provider is configured). Otherwise it returns a clone whose
// Cache-Control additionally carries only-if-cached and max-stale=ceiling.
// Directives already on the request are never removed.
func ApplyOfflinePolicy(req *http.Request, state NetworkState, ceiling time.Duration) (*http.Request, bool) {
	if state == nil || state.IsOnline() {
		return req, false
	}
	if ceiling <= 0 {
		ceiling = DefaultStaleCeiling
	}

	out := req.Clone(req.Context())
	cc := out.Header.Get("Cache-Control")
	cc = appendDirective(cc, directiveOnlyIfCached, "")
	cc = appendDirective(cc, directiveMaxStale, strconv.FormatInt(int64(ceiling/time.Second), 10))
	out.Header.Set("Cache-Control", cc)
	return out, true
}

// OfflineCacheMiddleware forces requests to the cache while state reports offline.
func OfflineCacheMiddleware(state NetworkState, ceiling time.Duration) Middleware {
	return newOfflineMiddleware(state, ceiling, nil)
}

func newOfflineMiddleware(state NetworkState, ceiling time.Duration, metrics *MetricsCollector) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		out, forced := ApplyOfflinePolicy(req, state, ceiling)
		if forced {
			metrics.RecordOfflineRequest(req.Method, getEndpointFromRequest(req))
		}
		return next.RoundTrip(out)
	}
}
