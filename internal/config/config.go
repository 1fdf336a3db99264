package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds accepted in the config file.
const (
	TransportEventStream = "event-stream"
	TransportWebSocket   = "websocket"
)

// Config holds client settings. The zero value is not usable; use Load or
// Default.
type Config struct {
	// BaseURL is the backend serving the sandbox and terminal endpoints.
	BaseURL string `yaml:"base_url"`

	// AuthToken is attached as a bearer token to every request, and as a
	// query parameter on stream URLs where headers cannot be set.
	AuthToken string `yaml:"auth_token"`

	// Transport selects the streaming transport: "event-stream" or
	// "websocket".
	Transport string `yaml:"transport"`

	// ListenAddr is where sandboxd listens (dev backend only).
	ListenAddr string `yaml:"listen_addr"`

	// Shell overrides the shell sandboxd spawns for terminal sessions.
	Shell string `yaml:"shell"`

	// RequestTimeout bounds every non-streaming HTTP call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the built-in defaults, before file and env overrides.
func Default() *Config {
	return &Config{
		BaseURL:        "http://127.0.0.1:8787",
		Transport:      TransportEventStream,
		ListenAddr:     "127.0.0.1:8787",
		RequestTimeout: 10 * time.Second,
	}
}

// Load reads the YAML config at path, applies environment overrides, and
// validates the result. A missing file is not an error; env-only setups are
// common in sandboxed deployments.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SANDBOX_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SANDBOX_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("SANDBOX_TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := os.Getenv("SANDBOX_SHELL"); v != "" {
		c.Shell = v
	}
}

// Validate reports configuration errors. This is the only place in the
// client where a bad setting is allowed to surface as an error to the caller.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must be set")
	}
	switch c.Transport {
	case TransportEventStream, TransportWebSocket:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q",
			TransportEventStream, TransportWebSocket, c.Transport)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}
