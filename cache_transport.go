package subwire

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// DefaultMaxCacheBodySize caps how much of a response body is buffered for storage.
const DefaultMaxCacheBodySize = 10 * 1024 * 1024

// cacheTransport sits between the request middleware and the network. It
// answers only-if-cached requests from the store, revalidates stale entries,
// and stores storable network responses once their body has been fully read.
// The network round tripper below it is the only place responses get annotated.
type cacheTransport struct {
	cache        Cache
	keyFunc      func(*http.Request) string
	network      RoundTripper
	maxBodySize  int64
	staleCeiling time.Duration
	now          func() time.Time
	metrics      *MetricsCollector
	log          func(msg string, keysAndValues ...interface{})
}

func (t *cacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := getEndpointFromRequest(req)
	reqCC := ParseCacheControl(req.Header.Get("Cache-Control"))

	if req.Method != http.MethodGet || req.Header.Get("Range") != "" {
		if reqCC.OnlyIfCached {
			t.metrics.RecordCacheUnsatisfiable(endpoint)
			return nil, ErrUnsatisfiableFromCache
		}
		return t.network.RoundTrip(req)
	}

	key := t.keyFunc(req)
	entry, found := t.cache.Get(key)
	now := t.now()

	if reqCC.OnlyIfCached {
		if found && t.usableOffline(entry, reqCC, now) {
			t.metrics.RecordCacheHit(req.Method, endpoint)
			t.log("Offline cache hit", "cacheKey", key, "age", now.Sub(entry.StoredAt))
			return createResponseFromEntry(req, entry, "offline"), nil
		}
		t.metrics.RecordCacheUnsatisfiable(endpoint)
		t.log("Offline cache miss", "cacheKey", key, "found", found)
		return nil, ErrUnsatisfiableFromCache
	}

	if found && !reqCC.NoCache && isFresh(entry, reqCC, now) {
		t.metrics.RecordCacheHit(req.Method, endpoint)
		t.log("Cache hit", "cacheKey", key)
		return createResponseFromEntry(req, entry, "hit"), nil
	}
	t.metrics.RecordCacheMiss(req.Method, endpoint)

	netReq := req
	revalidating := found && (entry.ETag != "" || entry.LastModified != nil) &&
		req.Header.Get("If-None-Match") == "" && req.Header.Get("If-Modified-Since") == ""
	if revalidating {
		netReq = req.Clone(req.Context())
		addConditionalHeaders(netReq, entry)
	}

	resp, err := t.network.RoundTrip(netReq)
	if err != nil {
		return nil, err
	}

	if revalidating && isNotModified(resp) {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		refreshed := *entry
		refreshed.Header = entry.Header.Clone()
		for k, v := range resp.Header {
			if k == "Content-Length" {
				continue
			}
			refreshed.Header[k] = v
		}
		// A 304 never passes the annotator, so its caching headers would
		// otherwise replace the ones that keep JSON servable offline.
		annotateHeader(refreshed.Header)
		if etag := refreshed.Header.Get("ETag"); etag != "" {
			refreshed.ETag = etag
		}
		if lm := parseHTTPDate(refreshed.Header.Get("Last-Modified")); lm != nil {
			refreshed.LastModified = lm
		}
		refreshed.StoredAt = now
		t.store(key, &refreshed)
		t.log("Cache revalidated", "cacheKey", key)
		return createResponseFromEntry(req, &refreshed, "revalidated"), nil
	}

	if reqCC.NoStore || !isStorable(resp) {
		return resp, nil
	}
	if resp.ContentLength > t.maxBodySize {
		return resp, nil
	}

	resp.Body = &teeBody{
		rc:    resp.Body,
		limit: t.maxBodySize,
		onComplete: func(body []byte) {
			t.store(key, newCacheEntry(resp, body, now))
			t.log("Response cached", "cacheKey", key, "bytes", len(body))
		},
	}
	return resp, nil
}

func (t *cacheTransport) store(key string, entry *CacheEntry) {
	retention := freshnessLifetime(entry.Header, entry.StoredAt) + t.staleCeiling
	t.cache.Set(key, entry, retention)
	if mc, ok := t.cache.(*InMemoryCache); ok {
		t.metrics.RecordCacheSize("default", mc.Len())
	}
}

// usableOffline allows entries that are fresh, or stale by no more than the
// request's max-stale bound.
func (t *cacheTransport) usableOffline(entry *CacheEntry, reqCC *CacheDirectives, now time.Time) bool {
	age := now.Sub(entry.StoredAt)
	staleness := age - freshnessLifetime(entry.Header, entry.StoredAt)
	if staleness <= 0 {
		return true
	}
	if ParseCacheControl(entry.Header.Get("Cache-Control")).MustRevalidate {
		return false
	}
	if reqCC.MaxStaleAny {
		return true
	}
	return reqCC.MaxStale != nil && staleness <= *reqCC.MaxStale
}

func isFresh(entry *CacheEntry, reqCC *CacheDirectives, now time.Time) bool {
	age := now.Sub(entry.StoredAt)
	if reqCC.MaxAge != nil && age > *reqCC.MaxAge {
		return false
	}
	return age < freshnessLifetime(entry.Header, entry.StoredAt)
}

// isStorable accepts 200 responses that carry explicit caching metadata and
// do not forbid storage. Media streams without such metadata are never kept.
func isStorable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if resp.Header.Get("Vary") == "*" {
		return false
	}
	cc := ParseCacheControl(resp.Header.Get("Cache-Control"))
	if cc.NoStore {
		return false
	}
	return cc.MaxAge != nil ||
		resp.Header.Get("Expires") != "" ||
		resp.Header.Get("ETag") != "" ||
		resp.Header.Get("Last-Modified") != ""
}

// newCacheEntry creates a CacheEntry with HTTP cache metadata.
func newCacheEntry(resp *http.Response, body []byte, storedAt time.Time) *CacheEntry {
	return &CacheEntry{
		Body:         body,
		StatusCode:   resp.StatusCode,
		Header:       resp.Header.Clone(),
		StoredAt:     storedAt,
		ETag:         resp.Header.Get("ETag"),
		LastModified: parseHTTPDate(resp.Header.Get("Last-Modified")),
	}
}

// teeBody copies what the caller reads and hands the full body to onComplete
// at EOF. Bodies larger than limit are passed through without being kept.
type teeBody struct {
	rc         io.ReadCloser
	buf        bytes.Buffer
	limit      int64
	overflow   bool
	done       bool
	onComplete func([]byte)
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 && !b.overflow {
		if int64(b.buf.Len()+n) > b.limit {
			b.overflow = true
			b.buf = bytes.Buffer{}
		} else {
			b.buf.Write(p[:n])
		}
	}
	if err == io.EOF && !b.overflow && !b.done {
		b.done = true
		body := make([]byte, b.buf.Len())
		copy(body, b.buf.Bytes())
		b.onComplete(body)
	}
	return n, err
}

func (b *teeBody) Close() error {
	return b.rc.Close()
}
