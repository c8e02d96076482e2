package subwire

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// WithServerURL sets the server base URL, e.g. "https://music.example.com".
func WithServerURL(serverURL string) Option {
	return func(c *Client) {
		c.serverURL = serverURL
	}
}

// WithCredentials sets the username and password.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.credentials = Credentials{Username: username, Password: password}
	}
}

// WithClientID sets the c parameter identifying this application.
func WithClientID(id string) Option {
	return func(c *Client) {
		c.clientID = id
	}
}

// WithInitialVersion sets the protocol version assumed until the server reports one.
func WithInitialVersion(v ProtocolVersion) Option {
	return func(c *Client) {
		c.initialVersion = v
	}
}

// WithForcedAuthScheme bypasses version negotiation for servers known to
// reject the scheme their advertised version implies.
func WithForcedAuthScheme(scheme AuthScheme) Option {
	return func(c *Client) {
		c.forcedScheme = scheme
	}
}

// WithVersionListener registers fn to run once per protocol version change.
func WithVersionListener(fn VersionListener) Option {
	return func(c *Client) {
		c.versionListener = fn
	}
}

// WithNetworkState sets the reachability provider consulted before every request.
func WithNetworkState(state NetworkState) Option {
	return func(c *Client) {
		c.networkState = state
	}
}

// WithStaleCeiling sets how stale a stored response may be and still be served offline.
func WithStaleCeiling(d time.Duration) Option {
	return func(c *Client) {
		c.staleCeiling = d
	}
}

// WithReadTimeout sets the default idle read timeout; range requests scale it by offset.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.readTimeout = d
	}
}

// WithPerOffsetByteTimeout sets the extra read timeout granted per byte of range offset.
func WithPerOffsetByteTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.perOffsetByte = d
	}
}

// WithTimeout sets an overall deadline on the client's copy of the http.Client.
// Leave it unset for streaming; the idle read timeout already bounds stalled
// transfers.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithCache sets the response store.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithoutCache disables response storage. Offline requests then always fail
// with ErrUnsatisfiableFromCache.
func WithoutCache() Option {
	return func(c *Client) {
		c.cache = nopCache{}
	}
}

// WithCacheKeyFunc sets a custom cache key function
func WithCacheKeyFunc(fn func(*http.Request) string) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithMaxCacheBodySize caps the size of bodies kept in the cache.
func WithMaxCacheBodySize(n int64) Option {
	return func(c *Client) {
		c.maxCacheBodySize = n
	}
}

// WithVersionPeekLimit sets how many body bytes are scanned for the version field.
func WithVersionPeekLimit(n int) Option {
	return func(c *Client) {
		c.versionPeekLimit = n
	}
}

// WithMiddleware adds middleware after the offline policy and before the cache.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithNetworkMiddleware adds middleware that only sees real network traffic. It
// runs inside the cache annotator, so it sees responses before annotation.
func WithNetworkMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.networkMiddleware = append(c.networkMiddleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client. When WithTimeout is also given,
// the timeout is applied to a copy and client itself is left unchanged.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateServerConfig()...)
	errors = append(errors, c.validateProtocolConfig()...)
	errors = append(errors, c.validateTimeoutConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateServerConfig() []string {
	var errors []string

	if c.serverURL != "" {
		u, err := url.Parse(c.serverURL)
		if err != nil {
			errors = append(errors, fmt.Sprintf("server URL invalid: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, "server URL must use http or https")
		}
	}

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	return errors
}

func (c *Client) validateProtocolConfig() []string {
	var errors []string

	if c.credentials.Username == "" {
		errors = append(errors, "username must be set")
	}
	if c.clientID == "" {
		errors = append(errors, "client ID must be set")
	}
	if _, err := ParseVersion(c.initialVersion.String()); err != nil {
		errors = append(errors, fmt.Sprintf("initial version %s is not a known protocol version", c.initialVersion))
	}
	switch c.forcedScheme {
	case AuthSchemeAuto, AuthLegacyReversible, AuthSaltedDigest:
	default:
		errors = append(errors, "forced auth scheme is not recognised")
	}
	if c.newSalt == nil {
		errors = append(errors, "salt generator cannot be nil")
	}
	if c.versionPeekLimit <= 0 {
		errors = append(errors, "version peek limit must be positive")
	}

	return errors
}

func (c *Client) validateTimeoutConfig() []string {
	var errors []string

	if c.readTimeout <= 0 {
		errors = append(errors, "read timeout must be positive")
	}
	if c.perOffsetByte < 0 {
		errors = append(errors, "per-offset-byte timeout must not be negative")
	}
	if c.timeout < 0 {
		errors = append(errors, "timeout must not be negative")
	}

	return errors
}

func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cache == nil {
		errors = append(errors, "cache cannot be nil; use WithoutCache to disable storage")
	}
	if c.cacheKeyFunc == nil {
		errors = append(errors, "cache key function must be set")
	}
	if c.staleCeiling <= 0 {
		errors = append(errors, "stale ceiling must be positive")
	}
	if c.maxCacheBodySize <= 0 {
		errors = append(errors, "max cache body size must be positive")
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	for i, middleware := range c.networkMiddleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("networkMiddleware[%d] cannot be nil", i))
		}
	}

	return errors
}
