package subwire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from strings such as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML accepts the same string form as UnmarshalText.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string such as \"30s\"", value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the file form of a client configuration.
type Config struct {
	Server          string      `toml:"server" yaml:"server"`
	Username        string      `toml:"username" yaml:"username"`
	Password        string      `toml:"password" yaml:"password"`
	ClientID        string      `toml:"client_id" yaml:"client_id"`
	InitialVersion  string      `toml:"initial_version" yaml:"initial_version"`
	ForceLegacyAuth bool        `toml:"force_legacy_auth" yaml:"force_legacy_auth"`
	Timeout         Duration    `toml:"timeout" yaml:"timeout"`
	ReadTimeout     Duration    `toml:"read_timeout" yaml:"read_timeout"`
	Cache           CacheConfig `toml:"cache" yaml:"cache"`
	Log             LogConfig   `toml:"log" yaml:"log"`
}

// CacheConfig configures the response store. Codec picks the compression
// used when Compress is set and defaults to zstd.
type CacheConfig struct {
	Disabled     bool     `toml:"disabled" yaml:"disabled"`
	Compress     bool     `toml:"compress" yaml:"compress"`
	Codec        string   `toml:"codec" yaml:"codec"`
	StaleCeiling Duration `toml:"stale_ceiling" yaml:"stale_ceiling"`
	MaxBodyBytes int64    `toml:"max_body_bytes" yaml:"max_body_bytes"`
}

// LogConfig configures debug logging.
type LogConfig struct {
	Debug bool   `toml:"debug" yaml:"debug"`
	Level string `toml:"level" yaml:"level"`
}

// ConfigFormat names a config file syntax.
type ConfigFormat string

const (
	FormatTOML ConfigFormat = "toml"
	FormatYAML ConfigFormat = "yaml"
)

// LoadConfig reads and validates a config file. Files ending in .yaml or
// .yml are read as YAML, everything else as TOML.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	format := FormatTOML
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	cfg, err := ParseConfigFormat(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data, fills defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	return ParseConfigFormat(data, FormatTOML)
}

// ParseConfigFormat is ParseConfig for an explicit syntax.
func ParseConfigFormat(data []byte, format ConfigFormat) (Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unknown config format %q", format)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.InitialVersion == "" {
		cfg.InitialVersion = DigestAuthMinVersion.String()
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig checks the fields a client cannot start without.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Server) == "" {
		return fmt.Errorf("config missing server")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return fmt.Errorf("config missing username")
	}
	if _, err := ParseVersion(cfg.InitialVersion); err != nil {
		return fmt.Errorf("config initial_version: %w", err)
	}
	if cfg.Timeout < 0 || cfg.ReadTimeout < 0 || cfg.Cache.StaleCeiling < 0 {
		return fmt.Errorf("config durations must not be negative")
	}
	if cfg.Cache.Codec != "" {
		if _, err := ParseCacheCodec(cfg.Cache.Codec); err != nil {
			return fmt.Errorf("config cache codec: %w", err)
		}
	}
	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
			return fmt.Errorf("config log level: %w", err)
		}
	}
	return nil
}

// Options converts the config into client options. The returned cleanup
// releases resources such as the compression codec and is never nil.
func (cfg Config) Options() ([]Option, func(), error) {
	cleanup := func() {}

	version, err := ParseVersion(cfg.InitialVersion)
	if err != nil {
		return nil, cleanup, err
	}

	opts := []Option{
		WithServerURL(cfg.Server),
		WithCredentials(cfg.Username, cfg.Password),
		WithClientID(cfg.ClientID),
		WithInitialVersion(version),
	}
	if cfg.ForceLegacyAuth {
		opts = append(opts, WithForcedAuthScheme(AuthLegacyReversible))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.Timeout)))
	}
	if cfg.ReadTimeout > 0 {
		opts = append(opts, WithReadTimeout(time.Duration(cfg.ReadTimeout)))
	}

	switch {
	case cfg.Cache.Disabled:
		opts = append(opts, WithoutCache())
	case cfg.Cache.Compress:
		codec := CodecZstd
		if cfg.Cache.Codec != "" {
			codec, err = ParseCacheCodec(cfg.Cache.Codec)
			if err != nil {
				return nil, cleanup, err
			}
		}
		cc, err := NewCompressedCacheWithCodec(NewInMemoryCache(), codec)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = cc.Close
		opts = append(opts, WithCache(cc))
	}
	if cfg.Cache.StaleCeiling > 0 {
		opts = append(opts, WithStaleCeiling(time.Duration(cfg.Cache.StaleCeiling)))
	}
	if cfg.Cache.MaxBodyBytes > 0 {
		opts = append(opts, WithMaxCacheBodySize(cfg.Cache.MaxBodyBytes))
	}

	if cfg.Log.Debug {
		level := zerolog.DebugLevel
		if cfg.Log.Level != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err == nil {
				level = parsed
			}
		}
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).
			With().Timestamp().Str("component", "subwire").Logger()
		opts = append(opts, WithDebug(), WithLogger(NewZerologLogger(logger)))
	}

	return opts, cleanup, nil
}
