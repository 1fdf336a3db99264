package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inkpad-ai/sandbox-client/internal/sessions"
)

func setupTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	return server, sm.Shutdown
}

func TestHealthEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/sandbox/health", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Health struct {
			IsHealthy bool   `json:"isHealthy"`
			SandboxID string `json:"sandboxId"`
		} `json:"health"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Health.IsHealthy {
		t.Error("expected healthy")
	}
	if resp.Health.SandboxID != server.SandboxID() {
		t.Errorf("expected sandbox %s, got %s", server.SandboxID(), resp.Health.SandboxID)
	}
}

func TestRecreateRotatesSandbox(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	before := server.SandboxID()

	req := httptest.NewRequest("POST", "/sandbox/recreate", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["sandboxId"] == "" || resp["sandboxId"] == before {
		t.Errorf("expected a fresh sandbox id, got %q", resp["sandboxId"])
	}
	if server.SandboxID() == before {
		t.Error("expected server sandbox id to rotate")
	}
}

func TestRecreateClosesSessions(t *testing.T) {
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	defer sm.Shutdown()

	session, err := sm.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	req := httptest.NewRequest("POST", "/sandbox/recreate", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if _, err := sm.Get(session.ID); err == nil {
		t.Error("expected sessions to be closed on recreate")
	}
}

func TestCreateSession(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/terminal/sessions", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["sessionId"] == "" {
		t.Error("expected non-empty session id")
	}
}

func TestDeleteSession(t *testing.T) {
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	defer sm.Shutdown()

	session, err := sm.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/terminal/sessions/"+session.ID, nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}

	if _, err := sm.Get(session.ID); err == nil {
		t.Error("expected session to be deleted")
	}
}

func TestDeleteNonExistentSession(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("DELETE", "/terminal/sessions/nonexistent", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestInputEndpoint(t *testing.T) {
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	defer sm.Shutdown()

	session, err := sm.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	body := strings.NewReader(`{"data":"echo hi\n"}`)
	req := httptest.NewRequest("POST", "/terminal/"+session.ID+"/input", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInputNonExistentSession(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	body := strings.NewReader(`{"data":"ls\n"}`)
	req := httptest.NewRequest("POST", "/terminal/nonexistent/input", body)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestResizeEndpoint(t *testing.T) {
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	defer sm.Shutdown()

	session, err := sm.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	body := strings.NewReader(`{"cols":120,"rows":40}`)
	req := httptest.NewRequest("POST", "/terminal/"+session.ID+"/resize", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestResizeRejectsZeroGeometry(t *testing.T) {
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "")
	defer sm.Shutdown()

	session, err := sm.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	body := strings.NewReader(`{"cols":0,"rows":0}`)
	req := httptest.NewRequest("POST", "/terminal/"+session.ID+"/resize", body)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	sm := sessions.NewManager("/bin/sh")
	server := NewServer(sm, "secret")
	defer sm.Shutdown()

	req := httptest.NewRequest("GET", "/sandbox/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/sandbox/health", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}
