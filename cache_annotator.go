package subwire

import (
	"mime"
	"net/http"
	"strings"
)

// annotatedCacheControl marks protocol JSON as storable but immediately
// stale, so it is only ever served again through only-if-cached/max-stale.
const annotatedCacheControl = "private, max-age=0"

const jsonMediaType = "application/json"

func isProtocolJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.EqualFold(mediaType, jsonMediaType)
}

// AnnotateResponse rewrites the cache headers of a successful protocol JSON
// response and reports whether it did. Media streams and error responses are
// left untouched.
func AnnotateResponse(resp *http.Response) bool {
	if resp == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	return annotateHeader(resp.Header)
}

// annotateHeader applies the rewrite to h when it describes protocol JSON.
func annotateHeader(h http.Header) bool {
	if !isProtocolJSON(h.Get("Content-Type")) {
		return false
	}
	h.Del("Pragma")
	h.Set("Cache-Control", annotatedCacheControl)
	return true
}

// CacheAnnotatorMiddleware applies AnnotateResponse. It belongs on the
// network side of the cache so stored entries are never annotated twice.
func CacheAnnotatorMiddleware() Middleware {
	return newCacheAnnotator(nil)
}

func newCacheAnnotator(metrics *MetricsCollector) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		resp, err := next.RoundTrip(req)
		if err != nil {
			return resp, err
		}
		if AnnotateResponse(resp) {
			metrics.RecordCacheAnnotation(getEndpointFromRequest(req))
		}
		return resp, nil
	}
}
