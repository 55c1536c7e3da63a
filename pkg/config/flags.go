package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Flags binds the configuration to a pflag.FlagSet.
type Flags struct {
	set *pflag.FlagSet

	configFile string
	envFile    string
	values     Config
}

// AddFlags registers the configuration flags on set.
func AddFlags(set *pflag.FlagSet) *Flags {
	f := &Flags{set: set}
	d := Default()

	set.StringVarP(&f.configFile, "config", "c", "", "YAML configuration file")
	set.StringVar(&f.envFile, "env-file", ".env", "dotenv file with CHANNELIZE_* variables (missing file is ignored)")

	set.StringVar(&f.values.BaseURL, "base-url", "", "HTTP API base URL")
	set.StringVar(&f.values.HubPath, "hub-path", d.HubPath, "hub websocket path below the base URL")
	set.StringVar(&f.values.Codec, "codec", d.Codec, "hub codec (json, cbor)")
	set.StringVar(&f.values.Token, "token", "", "bearer token")
	set.StringVar(&f.values.TokenFile, "token-file", "", "file holding the bearer token")
	set.StringVar(&f.values.LogLevel, "log-level", d.LogLevel, "log level (debug, info, warn, error)")
	set.StringVar(&f.values.CaptureFile, "capture", "", "write protocol capture events to this file")
	set.StringVar(&f.values.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	set.BoolVar(&f.values.Discover, "discover", false, "find the backend via mDNS when no base URL is set")
	set.DurationVar(&f.values.RequestTimeout, "request-timeout", d.RequestTimeout, "HTTP request timeout")
	set.BoolVar(&f.values.DisableReconnect, "no-reconnect", false, "do not reconnect the hub automatically")
	return f
}

// Load resolves the configuration after the flag set has been parsed.
func (f *Flags) Load() (Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg := Default()
	if f.configFile != "" {
		if err := LoadFile(f.configFile, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}

	changed := func(name string) bool { return f.set.Changed(name) }
	if changed("base-url") {
		cfg.BaseURL = f.values.BaseURL
	}
	if changed("hub-path") {
		cfg.HubPath = f.values.HubPath
	}
	if changed("codec") {
		cfg.Codec = f.values.Codec
	}
	if changed("token") {
		cfg.Token = f.values.Token
	}
	if changed("token-file") {
		cfg.TokenFile = f.values.TokenFile
	}
	if changed("log-level") {
		cfg.LogLevel = f.values.LogLevel
	}
	if changed("capture") {
		cfg.CaptureFile = f.values.CaptureFile
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.values.MetricsAddr
	}
	if changed("discover") {
		cfg.Discover = f.values.Discover
	}
	if changed("request-timeout") {
		cfg.RequestTimeout = f.values.RequestTimeout
	}
	if changed("no-reconnect") {
		cfg.DisableReconnect = f.values.DisableReconnect
	}
	return cfg, cfg.Validate()
}
