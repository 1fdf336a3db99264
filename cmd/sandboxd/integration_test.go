package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inkpad-ai/sandbox-client/internal/api"
	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
	"github.com/inkpad-ai/sandbox-client/internal/sessions"
	"github.com/inkpad-ai/sandbox-client/internal/transport"
)

func setupIntegration(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	ts := httptest.NewServer(server.Handler())
	return ts, func() {
		ts.Close()
		sm.Shutdown()
	}
}

// runTerminal drives the full client stack against a live server: open a
// session, run a command, wait for its output, then close.
func runTerminal(t *testing.T, baseURL string, dial func(*api.Client) transport.Dialer) {
	t.Helper()

	apiClient := api.New(baseURL, "")
	orch := health.New(apiClient)
	ctrl := session.New(apiClient, orch, dial(apiClient))
	defer ctrl.Shutdown()

	var mu sync.Mutex
	var buf bytes.Buffer
	outputCh := make(chan struct{}, 64)
	ctrl.OnOutput(func(data []byte) {
		mu.Lock()
		buf.Write(data)
		mu.Unlock()
		select {
		case outputCh <- struct{}{}:
		default:
		}
	})
	seen := func() string {
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctrl.Open(ctx)

	deadline := time.After(5 * time.Second)
	for ctrl.Status() != session.StatusConnected {
		select {
		case <-deadline:
			t.Fatalf("terminal never connected, status %s", ctrl.Status())
		case <-time.After(20 * time.Millisecond):
		}
	}

	info := ctrl.Info()
	if info.SessionID == "" {
		t.Error("expected a session id after connect")
	}
	if info.SandboxID == "" {
		t.Error("expected a sandbox id after connect")
	}

	ctrl.SendInput([]byte("echo roundtrip_ok\n"))

	outputDeadline := time.After(5 * time.Second)
	for !strings.Contains(seen(), "roundtrip_ok") {
		select {
		case <-outputDeadline:
			t.Fatalf("never saw command output, got %q", seen())
		case <-outputCh:
		}
	}

	ctrl.Close()
}

func TestTerminalOverEventStream(t *testing.T) {
	ts, cleanup := setupIntegration(t)
	defer cleanup()

	runTerminal(t, ts.URL, func(c *api.Client) transport.Dialer {
		return transport.NewSSEDialer(c)
	})
}

func TestTerminalOverWebSocket(t *testing.T) {
	ts, cleanup := setupIntegration(t)
	defer cleanup()

	runTerminal(t, ts.URL, func(c *api.Client) transport.Dialer {
		return transport.NewWSDialer(c)
	})
}

func TestHealthProbeAgainstServer(t *testing.T) {
	ts, cleanup := setupIntegration(t)
	defer cleanup()

	apiClient := api.New(ts.URL, "")
	orch := health.New(apiClient)

	if !orch.CheckHealth(context.Background()) {
		t.Error("expected healthy sandbox")
	}
	if orch.Status() != health.StatusHealthy {
		t.Errorf("expected status healthy, got %s", orch.Status())
	}
}
