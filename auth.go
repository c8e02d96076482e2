package subwire

import (
	"net/http"
	"net/url"
)

// Query parameter names understood by the server.
const (
	ParamUsername = "u"
	ParamPassword = "p"
	ParamToken    = "t"
	ParamSalt     = "s"
	ParamVersion  = "v"
	ParamClient   = "c"
	ParamFormat   = "f"
)

// ResponseFormat is the payload format requested from the server.
const ResponseFormat = "json"

// AuthScheme selects how the password travels on the wire.
type AuthScheme int

const (
	// AuthSchemeAuto negotiates the scheme from the tracked protocol version.
	AuthSchemeAuto AuthScheme = iota
	// AuthLegacyReversible sends p=enc:<hex>.
	AuthLegacyReversible
	// AuthSaltedDigest sends t=md5(password+salt) and s=salt.
	AuthSaltedDigest
)

func (s AuthScheme) String() string {
	switch s {
	case AuthSchemeAuto:
		return "auto"
	case AuthLegacyReversible:
		return "legacy"
	case AuthSaltedDigest:
		return "digest"
	default:
		return "unknown"
	}
}

// SelectAuthScheme picks the scheme for a request. A forced scheme other than
// AuthSchemeAuto always wins over negotiation.
func SelectAuthScheme(v ProtocolVersion, forced AuthScheme) AuthScheme {
	if forced == AuthLegacyReversible || forced == AuthSaltedDigest {
		return forced
	}
	if v.Less(DigestAuthMinVersion) {
		return AuthLegacyReversible
	}
	return AuthSaltedDigest
}

// ApplyAuth writes the username and the scheme's credential parameters into q,
// removing parameters that belong to the other scheme.
func ApplyAuth(q url.Values, creds Credentials, scheme AuthScheme, newSalt func() (string, error)) error {
	q.Set(ParamUsername, creds.Username)
	switch scheme {
	case AuthLegacyReversible:
		q.Del(ParamToken)
		q.Del(ParamSalt)
		q.Set(ParamPassword, legacyPasswordPrefix+EncodeReversible(creds.Password))
	default:
		if newSalt == nil {
			newSalt = NewSalt
		}
		salt, err := newSalt()
		if err != nil {
			return err
		}
		q.Del(ParamPassword)
		q.Set(ParamToken, SaltedDigest(creds.Password, salt))
		q.Set(ParamSalt, salt)
	}
	return nil
}

// AuthMiddleware attaches credentials chosen from the version current at the
// time each request is built.
func AuthMiddleware(creds Credentials, versions VersionReader, forced AuthScheme) Middleware {
	return newAuthMiddleware(creds, versions, forced, NewSalt, nil)
}

func newAuthMiddleware(creds Credentials, versions VersionReader, forced AuthScheme, newSalt func() (string, error), metrics *MetricsCollector) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		scheme := SelectAuthScheme(versions.Current(), forced)
		out := req.Clone(req.Context())
		q := out.URL.Query()
		if err := ApplyAuth(q, creds, scheme, newSalt); err != nil {
			return nil, err
		}
		out.URL.RawQuery = q.Encode()
		metrics.RecordAuthScheme(scheme.String())
		return next.RoundTrip(out)
	}
}

// ProtocolParamsMiddleware adds the version, client id and format parameters,
// and a User-Agent when the request has none.
func ProtocolParamsMiddleware(clientID string, versions VersionReader) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		out := req.Clone(req.Context())
		q := out.URL.Query()
		q.Set(ParamVersion, versions.Current().String())
		q.Set(ParamClient, clientID)
		q.Set(ParamFormat, ResponseFormat)
		out.URL.RawQuery = q.Encode()
		if out.Header.Get("User-Agent") == "" {
			out.Header.Set("User-Agent", UserAgent())
		}
		return next.RoundTrip(out)
	}
}
