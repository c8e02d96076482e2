package subwire

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cache-Control directive names used by the pipeline.
const (
	directivePrivate      = "private"
	directivePublic       = "public"
	directiveMaxAge       = "max-age"
	directiveOnlyIfCached = "only-if-cached"
	directiveMaxStale     = "max-stale"
	directiveNoStore      = "no-store"
	directiveNoCache      = "no-cache"
)

// CacheDirectives represents parsed Cache-Control directives.
type CacheDirectives struct {
	NoStore              bool
	NoCache              bool
	MaxAge               *time.Duration
	SMaxAge              *time.Duration
	StaleWhileRevalidate *time.Duration
	MustRevalidate       bool
	Public               bool
	Private              bool
	OnlyIfCached         bool
	// MaxStale is set when the directive is present. A nil value with
	// MaxStaleAny set means the directive carried no bound.
	MaxStale    *time.Duration
	MaxStaleAny bool
}

// ParseCacheControl parses a Cache-Control header into structured directives.
func ParseCacheControl(header string) *CacheDirectives {
	directives := &CacheDirectives{}
	if header == "" {
		return directives
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "=") {
			kv := strings.SplitN(part, "=", 2)
			key := strings.ToLower(strings.TrimSpace(kv[0]))
			value := strings.Trim(strings.TrimSpace(kv[1]), "\"")

			seconds, err := strconv.Atoi(value)
			if err != nil || seconds < 0 {
				continue
			}
			d := time.Duration(seconds) * time.Second
			switch key {
			case directiveMaxAge:
				directives.MaxAge = &d
			case "s-maxage":
				directives.SMaxAge = &d
			case "stale-while-revalidate":
				directives.StaleWhileRevalidate = &d
			case directiveMaxStale:
				directives.MaxStale = &d
			}
			continue
		}

		switch strings.ToLower(part) {
		case directiveNoStore:
			directives.NoStore = true
		case directiveNoCache:
			directives.NoCache = true
		case "must-revalidate":
			directives.MustRevalidate = true
		case directivePublic:
			directives.Public = true
		case directivePrivate:
			directives.Private = true
		case directiveOnlyIfCached:
			directives.OnlyIfCached = true
		case directiveMaxStale:
			directives.MaxStaleAny = true
		}
	}

	return directives
}

// hasDirective reports whether header already names directive, with or without a value.
func hasDirective(header, directive string) bool {
	for _, part := range strings.Split(header, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		if strings.EqualFold(strings.TrimSpace(name), directive) {
			return true
		}
	}
	return false
}

// appendDirective adds directive to header unless it is already present.
func appendDirective(header, directive, value string) string {
	if hasDirective(header, directive) {
		return header
	}
	d := directive
	if value != "" {
		d += "=" + value
	}
	if strings.TrimSpace(header) == "" {
		return d
	}
	return header + ", " + d
}

// parseHTTPDate parses Expires / Last-Modified style headers.
func parseHTTPDate(header string) *time.Time {
	if header == "" {
		return nil
	}
	if t, err := http.ParseTime(header); err == nil {
		return &t
	}
	return nil
}

// freshnessLifetime is how long a stored response counts as fresh.
func freshnessLifetime(header http.Header, storedAt time.Time) time.Duration {
	cc := ParseCacheControl(header.Get("Cache-Control"))
	if cc.MaxAge != nil {
		return *cc.MaxAge
	}
	if expires := parseHTTPDate(header.Get("Expires")); expires != nil {
		if d := expires.Sub(storedAt); d > 0 {
			return d
		}
	}
	return 0
}

// addConditionalHeaders adds If-None-Match and If-Modified-Since headers to a request.
func addConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != nil {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}

// isNotModified checks if a response indicates the cached version is still valid.
func isNotModified(resp *http.Response) bool {
	return resp.StatusCode == http.StatusNotModified
}
