package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkpad-ai/sandbox-client/internal/api"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEchoServer upgrades, announces itself, then echoes binary input back and
// answers pings with pongs.
func wsEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/terminal/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, _ := json.Marshal(wsControlMessage{
			Type: "connected", SandboxID: "sbx-1", Shell: "/bin/bash", WorkingDir: "/workspace",
		})
		conn.WriteMessage(websocket.TextMessage, hello)

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch messageType {
			case websocket.BinaryMessage:
				conn.WriteMessage(websocket.BinaryMessage, data)
			case websocket.TextMessage:
				var msg wsControlMessage
				if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
					pong, _ := json.Marshal(wsControlMessage{Type: "pong", T: msg.T})
					conn.WriteMessage(websocket.TextMessage, pong)
				}
			}
		}
	}))
}

func TestWSDialRoundTrip(t *testing.T) {
	server := wsEchoServer(t)
	defer server.Close()

	dialer := NewWSDialer(api.New(server.URL, "test-token"))
	sink := newRecordingSink()

	conn, err := dialer.Dial(context.Background(), "sess-1", sink)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the connected frame.
	deadline := time.Now().Add(3 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.connected)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for connected frame")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sink.mu.Lock()
	info := sink.connected[0]
	sink.mu.Unlock()
	if info.SandboxID != "sbx-1" || info.Kind != KindWebSocket {
		t.Errorf("unexpected connected info: %+v", info)
	}

	// Raw bytes echo back as output, unmodified.
	payload := []byte("stty -a\r\x03")
	if err := conn.SendInput(payload); err != nil {
		t.Fatalf("send input failed: %v", err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for {
		sink.mu.Lock()
		got := string(sink.output)
		sink.mu.Unlock()
		if got == string(payload) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for echo, got %q", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	dialer := NewWSDialer(api.New(url, "test-token"))

	if _, err := dialer.Dial(context.Background(), "sess-1", newRecordingSink()); err == nil {
		t.Fatal("expected dial to fail")
	}
}

func TestWSCloseSignalsSink(t *testing.T) {
	server := wsEchoServer(t)
	defer server.Close()

	dialer := NewWSDialer(api.New(server.URL, "test-token"))
	sink := newRecordingSink()

	conn, err := dialer.Dial(context.Background(), "sess-1", sink)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	conn.Close()

	select {
	case <-sink.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close notification")
	}
}
