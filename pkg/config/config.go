package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/channelize/channelize-go/pkg/auth"
	"github.com/channelize/channelize-go/pkg/wire"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CHANNELIZE_"

// Defaults.
const (
	DefaultHubPath        = "/hub"
	DefaultCodec          = "json"
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 30 * time.Second
)

// Validation errors.
var (
	ErrNoBaseURL     = errors.New("base URL is required unless discovery is enabled")
	ErrBadBaseURL    = errors.New("base URL must be an absolute http or https URL")
	ErrBadLogLevel   = errors.New("unknown log level")
	ErrBadTimeout    = errors.New("request timeout must be positive")
	ErrTokenConflict = errors.New("token and token file are mutually exclusive")
)

// Config holds client settings.
type Config struct {
	// BaseURL is the HTTP API root, for example https://api.example.com/v1.
	BaseURL string `yaml:"base_url"`

	// HubPath is appended to BaseURL to form the hub websocket URL.
	HubPath string `yaml:"hub_path"`

	// Codec is the hub codec name: json or cbor.
	Codec string `yaml:"codec"`

	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`

	LogLevel string `yaml:"log_level"`

	// CaptureFile receives protocol capture events when set.
	CaptureFile string `yaml:"capture_file"`

	// MetricsAddr serves Prometheus metrics when set, for example :9090.
	MetricsAddr string `yaml:"metrics_addr"`

	// Discover browses mDNS for a backend when BaseURL is empty.
	Discover bool `yaml:"discover"`

	RequestTimeout   time.Duration `yaml:"request_timeout"`
	DisableReconnect bool          `yaml:"disable_reconnect"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HubPath:        DefaultHubPath,
		Codec:          DefaultCodec,
		LogLevel:       DefaultLogLevel,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// LoadFile merges the YAML file at path into cfg.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Decode(f, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Decode merges YAML from r into cfg. Fields absent from the document keep
// their current value.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg from CHANNELIZE_* variables found through lookup.
// A nil lookup uses os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("BASE_URL", &cfg.BaseURL)
	str("HUB_PATH", &cfg.HubPath)
	str("CODEC", &cfg.Codec)
	str("TOKEN", &cfg.Token)
	str("TOKEN_FILE", &cfg.TokenFile)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("CAPTURE_FILE", &cfg.CaptureFile)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	if err := boolean("DISCOVER", &cfg.Discover); err != nil {
		return err
	}
	if err := boolean("DISABLE_RECONNECT", &cfg.DisableReconnect); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

// Validate checks cfg for consistency.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		if !c.Discover {
			errs = append(errs, ErrNoBaseURL)
		}
	} else if u, err := url.Parse(c.BaseURL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ErrBadBaseURL)
	}
	if _, err := wire.CodecByName(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("codec %q: %w", c.Codec, err))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, ErrBadTimeout)
	}
	if c.Token != "" && c.TokenFile != "" {
		errs = append(errs, ErrTokenConflict)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadLogLevel, c.LogLevel)
	}
	return l, nil
}

// WireCodec returns the configured hub codec.
func (c Config) WireCodec() (wire.Codec, error) {
	return wire.CodecByName(c.Codec)
}

// HubURL derives the websocket URL of the hub from BaseURL and HubPath.
func (c Config) HubURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", ErrBadBaseURL
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(c.HubPath, "/")
	u.RawQuery = ""
	return u.String(), nil
}

// Tokens returns the configured token source, or nil when none is set.
func (c Config) Tokens() auth.TokenSource {
	switch {
	case c.Token != "":
		return auth.StaticToken(c.Token)
	case c.TokenFile != "":
		return auth.FileToken(c.TokenFile)
	default:
		return nil
	}
}
