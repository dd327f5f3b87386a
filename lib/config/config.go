// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "OPENBUG_CONFIG"

// DefaultProjectID is the project a client subscribes to when none is
// configured.
const DefaultProjectID = "openbug-service"

// Config is the master configuration for openbug.
type Config struct {
	// Relay configures the local coordination server and how
	// clients reach it.
	Relay RelayConfig `yaml:"relay" json:"relay"`

	// Backend configures the remote chat backend.
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Client configures the interactive client's connection policy.
	Client ClientConfig `yaml:"client" json:"client"`

	// Path is the file this configuration was loaded from, or empty
	// for defaults. Shown in connection error remediation text.
	Path string `yaml:"-" json:"-"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	// Host is the bind address. Default: 127.0.0.1
	Host string `yaml:"host" json:"host"`

	// Port is the bind port. Default: 4466
	Port int `yaml:"port" json:"port"`

	// URL is where clients dial the relay. Derived from Host and
	// Port when empty.
	URL string `yaml:"url" json:"url"`

	// LogMaxSize caps each service's log buffer, in characters.
	// Default: 10000
	LogMaxSize int `yaml:"log_max_size" json:"log_max_size"`

	// LogTTL is how long an idle log buffer survives. Default: 30m
	LogTTL Duration `yaml:"log_ttl" json:"log_ttl"`

	// SweepInterval is the eviction sweep period. Default: 5m
	SweepInterval Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// BackendConfig configures the remote chat backend.
type BackendConfig struct {
	// WebSocketURL is the persistent chat connection endpoint.
	WebSocketURL string `yaml:"websocket_url" json:"websocket_url"`

	// APIBaseURL prefixes the HTTP endpoints (tool results).
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// APIKey is passed through to the backend as an opaque auth key.
	// Default: ${OPENBUG_API_KEY}
	APIKey string `yaml:"api_key" json:"api_key"`
}

// ClientConfig configures the interactive client.
type ClientConfig struct {
	// ProjectID is the project the client subscribes to.
	// Default: openbug-service
	ProjectID string `yaml:"project_id" json:"project_id"`

	// RetryInterval is the fixed delay between reconnect attempts.
	// Default: 1s
	RetryInterval Duration `yaml:"retry_interval" json:"retry_interval"`

	// MaxRetries is the reconnect budget. Default: 1000
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// Duration is a time.Duration written as a string ("30m", "1s") in
// config files.
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:          "127.0.0.1",
			Port:          4466,
			LogMaxSize:    10000,
			LogTTL:        Duration(30 * time.Minute),
			SweepInterval: Duration(5 * time.Minute),
		},
		Backend: BackendConfig{
			WebSocketURL: "wss://api.oncall.build/v2/ws",
			APIBaseURL:   "https://api.oncall.build/v2/api",
			APIKey:       "${OPENBUG_API_KEY}",
		},
		Client: ClientConfig{
			ProjectID:     DefaultProjectID,
			RetryInterval: Duration(time.Second),
			MaxRetries:    1000,
		},
	}
}

// Load loads configuration from the OPENBUG_CONFIG file, or returns
// the defaults when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		cfg := Default()
		cfg.finish()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, on top of
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.Path = path
	cfg.finish()
	return cfg, nil
}

// finish expands variables and derives the relay URL.
func (c *Config) finish() {
	c.Backend.WebSocketURL = expandVars(c.Backend.WebSocketURL)
	c.Backend.APIBaseURL = strings.TrimRight(expandVars(c.Backend.APIBaseURL), "/")
	c.Backend.APIKey = expandVars(c.Backend.APIKey)
	c.Relay.URL = expandVars(c.Relay.URL)
	if c.Relay.URL == "" {
		c.Relay.URL = "ws://" + c.Relay.Address()
	}
}

// Address returns the relay bind address as host:port.
func (r RelayConfig) Address() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Relay.Host == "" {
		errs = append(errs, errors.New("relay.host is required"))
	}
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		errs = append(errs, fmt.Errorf("relay.port must be in 1-65535, got %d", c.Relay.Port))
	}
	if err := checkURL("relay.url", c.Relay.URL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.LogMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.log_max_size must be positive, got %d", c.Relay.LogMaxSize))
	}
	if c.Relay.LogTTL <= 0 {
		errs = append(errs, errors.New("relay.log_ttl must be positive"))
	}
	if c.Relay.SweepInterval <= 0 {
		errs = append(errs, errors.New("relay.sweep_interval must be positive"))
	}

	if err := checkURL("backend.websocket_url", c.Backend.WebSocketURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("backend.api_base_url", c.Backend.APIBaseURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(c.Client.ProjectID) == "" {
		errs = append(errs, errors.New("client.project_id is required"))
	}
	if c.Client.RetryInterval <= 0 {
		errs = append(errs, errors.New("client.retry_interval must be positive"))
	}
	if c.Client.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("client.max_retries must be positive, got %d", c.Client.MaxRetries))
	}

	return errors.Join(errs...)
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", field, schemes, raw)
}
