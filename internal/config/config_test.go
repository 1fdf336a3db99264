package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL == "" {
		t.Error("expected default base_url")
	}
	if cfg.Transport != TransportEventStream {
		t.Errorf("expected default transport event-stream, got %q", cfg.Transport)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("base_url: https://sandbox.example.com\nauth_token: tok-123\ntransport: websocket\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL != "https://sandbox.example.com" {
		t.Errorf("unexpected base_url: %q", cfg.BaseURL)
	}
	if cfg.AuthToken != "tok-123" {
		t.Errorf("unexpected auth_token: %q", cfg.AuthToken)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("unexpected transport: %q", cfg.Transport)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should fall back to defaults, got: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SANDBOX_BASE_URL", "https://env.example.com")
	t.Setenv("SANDBOX_AUTH_TOKEN", "env-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("env base_url not applied: %q", cfg.BaseURL)
	}
	if cfg.AuthToken != "env-token" {
		t.Errorf("env auth_token not applied: %q", cfg.AuthToken)
	}
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := Default()
	cfg.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown transport")
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("base_url: https://one.example.com\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watcher failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("base_url: https://two.example.com\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.BaseURL != "https://two.example.com" {
			t.Errorf("expected reloaded base_url, got %q", cfg.BaseURL)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}
