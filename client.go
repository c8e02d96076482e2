package subwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultClientID is sent as the c parameter unless overridden.
const DefaultClientID = "subwire"

// Client talks to one server. It negotiates the auth scheme from the protocol
// version it has observed, serves requests from its cache while offline, and
// normalizes range requests for resumable streams. It is safe for concurrent use.
type Client struct {
	httpClient        *http.Client
	serverURL         string
	baseURL           *url.URL
	credentials       Credentials
	clientID          string
	initialVersion    ProtocolVersion
	versions          *VersionTracker
	versionListener   VersionListener
	forcedScheme      AuthScheme
	networkState      NetworkState
	staleCeiling      time.Duration
	timeout           time.Duration
	readTimeout       time.Duration
	perOffsetByte     time.Duration
	cache             Cache
	cacheKeyFunc      func(*http.Request) string
	maxCacheBodySize  int64
	versionPeekLimit  int
	middleware        []Middleware
	networkMiddleware []Middleware
	metrics           *MetricsCollector
	debug             *DebugConfig
	logger            Logger
	newSalt           func() (string, error)
	now               func() time.Time
	pipeline          RoundTripper
	validationError   error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors. Do on an
// invalid client returns the validation error.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:       &http.Client{},
		clientID:         DefaultClientID,
		initialVersion:   DigestAuthMinVersion,
		forcedScheme:     AuthSchemeAuto,
		staleCeiling:     DefaultStaleCeiling,
		readTimeout:      BaseReadTimeout,
		perOffsetByte:    PerOffsetByteTimeout,
		cache:            NewInMemoryCache(),
		cacheKeyFunc:     DefaultCacheKeyFunc,
		maxCacheBodySize: DefaultMaxCacheBodySize,
		versionPeekLimit: DefaultVersionPeekBytes,
		middleware:       []Middleware{},
		debug:            DefaultDebugConfig(),
		newSalt:          NewSalt,
		now:              time.Now,
	}

	for _, option := range options {
		option(client)
	}

	if client.timeout > 0 && client.httpClient != nil {
		hc := *client.httpClient
		hc.Timeout = client.timeout
		client.httpClient = &hc
	}

	if client.serverURL != "" {
		if u, err := url.Parse(strings.TrimRight(client.serverURL, "/")); err == nil {
			client.baseURL = u
		}
	}

	client.versions = NewVersionTracker(client.initialVersion)
	client.versions.OnChange(client.handleVersionChange)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.pipeline = client.buildPipeline()

	return client
}

// buildPipeline composes the fixed middleware order:
// version observer, range, auth, protocol params, offline policy, user
// middleware, read timeout, cache, and on the network side the annotator.
func (c *Client) buildPipeline() RoundTripper {
	network := append([]Middleware{newCacheAnnotator(c.metrics)}, c.networkMiddleware...)
	var base RoundTripper = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return c.httpClient.Do(r)
	})

	transport := &cacheTransport{
		cache:        c.cache,
		keyFunc:      c.cacheKeyFunc,
		network:      chain(base, network...),
		maxBodySize:  c.maxCacheBodySize,
		staleCeiling: c.staleCeiling,
		now:          c.now,
		metrics:      c.metrics,
		log:          c.logCache,
	}

	app := []Middleware{
		VersionObserverMiddleware(c.versions, c.versionPeekLimit),
		RangeMiddleware(c.readTimeout, c.perOffsetByte),
		newAuthMiddleware(c.credentials, c.versions, c.forcedScheme, c.newSalt, c.metrics),
		ProtocolParamsMiddleware(c.clientID, c.versions),
		newOfflineMiddleware(c.networkState, c.staleCeiling, c.metrics),
	}
	app = append(app, c.middleware...)
	app = append(app, readTimeoutMiddleware(c.readTimeout))

	return chain(transport, app...)
}

func (c *Client) handleVersionChange(v ProtocolVersion) {
	c.metrics.RecordVersionChange(v)
	if c.debug != nil && c.debug.Enabled && c.debug.LogVersion && c.logger != nil {
		c.logger.Info("Protocol version changed", "version", v.String(),
			"authScheme", SelectAuthScheme(v, c.forcedScheme).String())
	}
	if c.versionListener != nil {
		c.versionListener(v)
	}
}

func (c *Client) logCache(msg string, keysAndValues ...interface{}) {
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

// ProtocolVersion returns the version currently negotiated with the server.
func (c *Client) ProtocolVersion() ProtocolVersion {
	return c.versions.Current()
}

// NewRequest builds a request for a REST endpoint such as "ping" or "stream".
// Credentials and protocol parameters are added by Do.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	if c.baseURL == nil {
		return nil, c.createClientError(ErrorTypeValidation, "server URL not configured", nil, "", nil, 0)
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/rest/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, method, u.String(), nil)
}

// Get performs a GET against a REST endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Ping checks connectivity and credentials. A successful ping also refreshes
// the negotiated protocol version.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Get(ctx, "ping", nil)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, nil)
}

// Stream opens the media stream for id, resuming at offset when it is positive.
// The returned body must be closed by the caller.
func (c *Client) Stream(ctx context.Context, id string, offset int64) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, "stream", url.Values{"id": {id}})
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", strconv.FormatInt(offset, 10))
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	// Errors on media endpoints come back as a JSON envelope.
	if isProtocolJSON(resp.Header.Get("Content-Type")) {
		if err := DecodeResponse(resp, nil); err != nil {
			return nil, err
		}
		return nil, c.createClientError(ErrorTypeMalformedResponse, "expected media stream, got JSON envelope", ErrMalformedResponse, "", req, 0)
	}
	return resp, nil
}

// Do sends req through the pipeline. Responses with status 401 or 403 are
// returned as ErrAuthenticationRejected; other statuses are returned as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	start := time.Now()
	endpoint := getEndpointFromRequest(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", redactURL(req.URL.String()), "endpoint", endpoint)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	resp, err := c.pipeline.RoundTrip(req)
	c.metrics.RecordRequestEnd(req.Method, endpoint)

	duration := time.Since(start)
	if err != nil {
		cerr := c.classifyError(err, requestID, req, duration)
		c.metrics.RecordError(cerr.Type, req.Method, endpoint)
		c.metrics.RecordRequest(req.Method, endpoint, 0, duration)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
			c.logger.Warn("Request failed", "requestID", requestID, "endpoint", endpoint, "type", cerr.Type, "error", cerr.Message)
		}
		return nil, cerr
	}

	c.metrics.RecordRequest(req.Method, endpoint, resp.StatusCode, duration)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		cerr := c.createClientError(ErrorTypeAuthentication, "server rejected credentials", ErrAuthenticationRejected, requestID, req, duration)
		cerr.StatusCode = resp.StatusCode
		c.metrics.RecordError(cerr.Type, req.Method, endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
			c.logger.Warn("Authentication rejected", "requestID", requestID, "endpoint", endpoint,
				"statusCode", resp.StatusCode, "version", c.versions.Current().String())
		}
		return nil, cerr
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Request completed", "requestID", requestID, "endpoint", endpoint,
			"statusCode", resp.StatusCode, "cache", resp.Header.Get("X-Cache-Status"), "duration", duration)
	}

	return resp, nil
}

func (c *Client) classifyError(err error, requestID string, req *http.Request, duration time.Duration) *ClientError {
	var cerr *ClientError
	if errors.As(err, &cerr) {
		return cerr
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		redacted := *urlErr
		redacted.URL = redactURL(urlErr.URL)
		err = &redacted
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrUnsatisfiableFromCache):
		return c.createClientError(ErrorTypeCacheUnsatisfiable, "offline and no usable cached response", err, requestID, req, duration)
	case errors.Is(err, ErrReadTimeout), errors.Is(err, context.DeadlineExceeded):
		return c.createClientError(ErrorTypeTimeout, "read timed out", err, requestID, req, duration)
	case errors.As(err, &netErr) && netErr.Timeout():
		return c.createClientError(ErrorTypeTimeout, "request timed out", err, requestID, req, duration)
	default:
		return c.createClientError(ErrorTypeNetwork, "network request failed", err, requestID, req, duration)
	}
}

func (c *Client) createClientError(errorType, message string, cause error, requestID string, req *http.Request, duration time.Duration) *ClientError {
	cerr := &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
		Timestamp: time.Now(),
		Duration:  duration,
	}
	if req != nil {
		cerr.Method = req.Method
		cerr.Endpoint = getEndpointFromRequest(req)
		if req.URL != nil {
			cerr.URL = redactURL(req.URL.String())
		}
	}
	return cerr
}

// redactURL masks credential parameters so URLs can be logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	for _, p := range credentialParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}

func getEndpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
