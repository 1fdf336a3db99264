package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.URL.Path != "/sandbox/health" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing or invalid auth header")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"health":{"isHealthy":true,"sandboxId":"sbx-1"}}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	result, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if !result.Healthy {
		t.Error("expected healthy")
	}
	if result.SandboxID != "sbx-1" {
		t.Errorf("expected sandbox id sbx-1, got %s", result.SandboxID)
	}
	if result.CheckedAt.IsZero() {
		t.Error("expected checked-at timestamp")
	}
}

func TestRecreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/sandbox/recreate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sandboxId":"sbx-2"}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	id, err := client.Recreate(context.Background())
	if err != nil {
		t.Fatalf("recreate failed: %v", err)
	}
	if id != "sbx-2" {
		t.Errorf("expected sbx-2, got %s", id)
	}
}

func TestRecreateUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.URL, "bad-token")

	_, err := client.Recreate(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRecreateFailureKeepsBodyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("circuit breaker open, try later"))
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	_, err := client.Recreate(context.Background())
	if !errors.Is(err, ErrAPIError) {
		t.Fatalf("expected ErrAPIError, got %v", err)
	}
	if !strings.Contains(err.Error(), "circuit breaker") {
		t.Errorf("expected body text in error, got: %v", err)
	}
}

func TestCreateAndDeleteSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/terminal/sessions":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"sessionId":"sess-1"}`))
		case r.Method == "DELETE" && r.URL.Path == "/terminal/sessions/sess-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	session, err := client.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if session.ID != "sess-1" {
		t.Errorf("expected sess-1, got %s", session.ID)
	}

	if err := client.DeleteSession(context.Background(), session.ID); err != nil {
		t.Errorf("delete failed: %v", err)
	}

	err = client.DeleteSession(context.Background(), "sess-unknown")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSendInputPassesBytesThrough(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/terminal/sess-1/input" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad input body: %v", err)
		}
		got = body["data"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	// Control bytes must survive the round trip untouched.
	input := "ls -la\r\x7f\x1b[A\x03"
	if err := client.SendInput(context.Background(), "sess-1", []byte(input)); err != nil {
		t.Fatalf("send input failed: %v", err)
	}
	if got != input {
		t.Errorf("input modified in flight: %q != %q", got, input)
	}
}

func TestResize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/terminal/sess-1/resize" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		if body["cols"] != 120 || body["rows"] != 40 {
			t.Errorf("unexpected geometry: %v", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	if err := client.Resize(context.Background(), "sess-1", 120, 40); err != nil {
		t.Fatalf("resize failed: %v", err)
	}
}

func TestStreamURLCarriesToken(t *testing.T) {
	client := New("https://backend.example.com", "tok")

	u := client.StreamURL("sess-1")
	if u != "https://backend.example.com/terminal/sess-1/stream?token=tok" {
		t.Errorf("unexpected stream url: %s", u)
	}

	ws := client.SocketURL("sess-1")
	if ws != "wss://backend.example.com/terminal/sess-1/ws?token=tok" {
		t.Errorf("unexpected socket url: %s", ws)
	}
}
