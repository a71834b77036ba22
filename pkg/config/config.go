// Package config layers defaults, an optional YAML file, RACEDIRECTOR_*
// environment variables and command line overrides.
package config

import (
	"context"
	"os"
	"strings"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/connection"
	"racedirector/pkg/lmu"
	"racedirector/pkg/poller"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	EnvPrefix = "RACEDIRECTOR_"
	EnvConfig = EnvPrefix + "CONFIG"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

type Config struct {
	// Endpoint is the simulator REST base URL.
	Endpoint     string        `koanf:"endpoint"`
	PollInterval time.Duration `koanf:"poll_interval"`
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// ResetDelay is how long ERROR is held before falling back to DISCONNECTED.
	ResetDelay time.Duration `koanf:"reset_delay"`
	// Schema is lmu, rf2 or auto.
	Schema string `koanf:"schema"`

	// Addr is the control API listen address.
	Addr      string `koanf:"addr"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	SettingsDB      string `koanf:"settings_db"`
	RestoreSettings bool   `koanf:"restore_settings"`

	TelegramToken   string  `koanf:"telegram_token"`
	TelegramChatIDs []int64 `koanf:"telegram_chat_ids"`

	// RefreshInterval paces the watch command's redraws.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

func New() *Config {
	return &Config{
		Endpoint:        lmu.DefaultEndpoint,
		PollInterval:    poller.DefaultInterval,
		ProbeTimeout:    lmu.DefaultProbeTimeout,
		FetchTimeout:    poller.DefaultFetchTimeout,
		ResetDelay:      connection.DefaultResetDelay,
		Schema:          adapter.Auto,
		Addr:            ":8085",
		LogLevel:        "info",
		LogFormat:       "console",
		SettingsDB:      "racedirector.db",
		RestoreSettings: true,
		RefreshInterval: time.Second,
	}
}

// Load builds a Config. Precedence, low to high: defaults, YAML file (path, or
// RACEDIRECTOR_CONFIG when path is empty), environment, overrides.
func Load(_ context.Context, path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(ErrLoadConfig, "%s: %v", path, err)
		}
	}

	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if key == "telegram_chat_ids" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrapf(ErrLoadConfig, "environment: %v", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, errors.Wrapf(ErrLoadConfig, "%s: %v", key, err)
		}
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrapf(ErrLoadConfig, "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := lmu.NormalizeEndpoint(c.Endpoint); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	for name, d := range map[string]time.Duration{
		"poll_interval": c.PollInterval,
		"probe_timeout": c.ProbeTimeout,
		"fetch_timeout": c.FetchTimeout,
		"reset_delay":   c.ResetDelay,
	} {
		if d <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be positive", name)
		}
	}
	if !adapter.Valid(c.Schema) {
		return errors.Wrapf(ErrInvalidConfig, "unknown schema %q", c.Schema)
	}
	if c.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "addr must not be empty")
	}
	return nil
}

// Connection returns the connection manager settings.
func (c *Config) Connection() connection.Config {
	return connection.Config{
		Endpoint:     c.Endpoint,
		PollInterval: c.PollInterval,
		ProbeTimeout: c.ProbeTimeout,
		FetchTimeout: c.FetchTimeout,
		ResetDelay:   c.ResetDelay,
		Schema:       c.Schema,
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
