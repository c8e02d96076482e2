package subwire

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func validOptions(extra ...Option) []Option {
	return append([]Option{WithServerURL("http://example.com"), WithCredentials("alice", "sesame")}, extra...)
}

func TestDefaultValuesWithoutOptions(t *testing.T) {
	client := New(validOptions()...)

	if client.initialVersion != DigestAuthMinVersion {
		t.Errorf("Expected initial version %s, got %s", DigestAuthMinVersion, client.initialVersion)
	}
	if client.forcedScheme != AuthSchemeAuto {
		t.Errorf("Expected auto scheme, got %s", client.forcedScheme)
	}
	if client.readTimeout != BaseReadTimeout || client.perOffsetByte != PerOffsetByteTimeout {
		t.Errorf("Unexpected read timeouts %v %v", client.readTimeout, client.perOffsetByte)
	}
	if client.maxCacheBodySize != DefaultMaxCacheBodySize {
		t.Errorf("Expected max body %d, got %d", DefaultMaxCacheBodySize, client.maxCacheBodySize)
	}
	if client.versionPeekLimit != DefaultVersionPeekBytes {
		t.Errorf("Expected peek limit %d, got %d", DefaultVersionPeekBytes, client.versionPeekLimit)
	}
	if _, ok := client.cache.(*InMemoryCache); !ok {
		t.Errorf("Expected in-memory cache, got %T", client.cache)
	}
	if client.networkState != nil {
		t.Error("Expected no network state provider by default")
	}
	if client.metrics != nil {
		t.Error("Expected metrics disabled by default")
	}
	if client.debug == nil || client.debug.Enabled {
		t.Error("Expected debug config present but disabled")
	}
}

func TestProtocolOptions(t *testing.T) {
	listener := func(ProtocolVersion) {}
	client := New(validOptions(
		WithClientID("jukebox"),
		WithInitialVersion(V1_10_2),
		WithForcedAuthScheme(AuthSaltedDigest),
		WithVersionListener(listener),
		WithVersionPeekLimit(256),
	)...)

	if client.clientID != "jukebox" {
		t.Errorf("Expected client ID jukebox, got %q", client.clientID)
	}
	if client.ProtocolVersion() != V1_10_2 {
		t.Errorf("Expected 1.10.2, got %s", client.ProtocolVersion())
	}
	if client.forcedScheme != AuthSaltedDigest {
		t.Errorf("Expected forced digest, got %s", client.forcedScheme)
	}
	if client.versionListener == nil {
		t.Error("Expected version listener to be set")
	}
	if client.versionPeekLimit != 256 {
		t.Errorf("Expected peek limit 256, got %d", client.versionPeekLimit)
	}
	if client.credentials.Username != "alice" || client.credentials.Password != "sesame" {
		t.Error("Expected credentials to be set")
	}
}

func TestCacheOptions(t *testing.T) {
	custom := NewInMemoryCache()
	keyFunc := func(r *http.Request) string { return r.URL.Path }

	client := New(validOptions(
		WithCache(custom),
		WithCacheKeyFunc(keyFunc),
		WithStaleCeiling(time.Hour),
		WithMaxCacheBodySize(1024),
	)...)

	if client.cache != custom {
		t.Error("Expected custom cache to be set")
	}
	if client.cacheKeyFunc == nil {
		t.Error("Expected custom key func to be set")
	}
	if client.staleCeiling != time.Hour || client.maxCacheBodySize != 1024 {
		t.Errorf("Unexpected cache settings %v %d", client.staleCeiling, client.maxCacheBodySize)
	}

	client = New(validOptions(WithoutCache())...)
	if _, ok := client.cache.(nopCache); !ok {
		t.Errorf("Expected nop cache, got %T", client.cache)
	}
}

func TestTimeoutOptions(t *testing.T) {
	client := New(validOptions(
		WithReadTimeout(3*time.Second),
		WithPerOffsetByteTimeout(time.Microsecond),
		WithTimeout(time.Minute),
	)...)

	if client.readTimeout != 3*time.Second || client.perOffsetByte != time.Microsecond {
		t.Errorf("Unexpected read timeouts %v %v", client.readTimeout, client.perOffsetByte)
	}
	if client.httpClient.Timeout != time.Minute {
		t.Errorf("Expected HTTP client timeout=1m, got %v", client.httpClient.Timeout)
	}
}

func TestWithHTTPClientTimeoutUpdate(t *testing.T) {
	transport := &http.Transport{}
	customClient := &http.Client{Timeout: 60 * time.Second, Transport: transport}

	for name, opts := range map[string][]Option{
		"timeout first": {WithTimeout(30 * time.Second), WithHTTPClient(customClient)},
		"client first":  {WithHTTPClient(customClient), WithTimeout(30 * time.Second)},
	} {
		t.Run(name, func(t *testing.T) {
			client := New(validOptions(opts...)...)

			if client.httpClient == customClient {
				t.Error("Expected the timeout to be applied to a copy of the HTTP client")
			}
			if client.httpClient.Transport != transport {
				t.Error("Expected the copy to keep the custom transport")
			}
			if client.httpClient.Timeout != 30*time.Second {
				t.Errorf("Expected HTTP client timeout=30s, got %v", client.httpClient.Timeout)
			}
			if customClient.Timeout != 60*time.Second {
				t.Errorf("Expected caller's HTTP client timeout to stay 60s, got %v", customClient.Timeout)
			}
		})
	}
}

func TestWithHTTPClientWithoutTimeout(t *testing.T) {
	customClient := &http.Client{Timeout: 60 * time.Second}

	client := New(validOptions(WithHTTPClient(customClient))...)

	if client.httpClient != customClient {
		t.Error("Expected custom HTTP client to be used as-is")
	}
}

func TestWithMiddleware(t *testing.T) {
	mw := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		return next.RoundTrip(req)
	}

	client := New(validOptions(WithMiddleware(mw, mw), WithNetworkMiddleware(mw))...)

	if len(client.middleware) != 2 {
		t.Errorf("Expected 2 middleware functions, got %d", len(client.middleware))
	}
	if len(client.networkMiddleware) != 1 {
		t.Errorf("Expected 1 network middleware, got %d", len(client.networkMiddleware))
	}
}

func TestWithMetricsCollector(t *testing.T) {
	customCollector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	client := New(validOptions(WithMetricsCollector(customCollector))...)

	if client.metrics != customCollector {
		t.Error("Expected custom metrics collector to be set")
	}
}

func TestDebugOptions(t *testing.T) {
	logger := &recordingLogger{}
	gen := func() string { return "fixed" }

	client := New(validOptions(WithDebug(), WithLogger(logger), WithRequestIDGenerator(gen))...)
	if !client.IsValid() {
		t.Fatalf("Expected valid client, got %v", client.ValidationError())
	}
	if !client.debug.Enabled || client.logger != logger {
		t.Error("Expected debug logging with custom logger")
	}
	if client.debug.RequestIDGen() != "fixed" {
		t.Error("Expected custom request ID generator")
	}

	client = New(validOptions(WithDebugConfig(&DebugConfig{Enabled: true, LogCache: true}), WithLogger(logger))...)
	if client.IsValid() {
		t.Error("Expected debug config without RequestIDGen to be invalid")
	}

	client = New(validOptions(WithSimpleLogger())...)
	if !client.IsValid() || client.logger == nil {
		t.Errorf("Expected simple logger to produce a valid client, got %v", client.ValidationError())
	}
}

func TestOptionsOrderIndependence(t *testing.T) {
	client1 := New(validOptions(
		WithReadTimeout(5*time.Second),
		WithStaleCeiling(time.Hour),
		WithClientID("a"),
	)...)
	client2 := New(validOptions(
		WithClientID("a"),
		WithStaleCeiling(time.Hour),
		WithReadTimeout(5*time.Second),
	)...)

	if client1.readTimeout != client2.readTimeout {
		t.Error("Option order affected readTimeout")
	}
	if client1.staleCeiling != client2.staleCeiling {
		t.Error("Option order affected staleCeiling")
	}
	if client1.clientID != client2.clientID {
		t.Error("Option order affected clientID")
	}
}
