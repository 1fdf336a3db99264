// Package ws bridges terminal sessions onto WebSocket connections.
package ws

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"

	"github.com/inkpad-ai/sandbox-client/internal/sessions"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: implement proper origin checking
		return true
	},
}

// Router handles WebSocket connections to terminal sessions.
type Router struct {
	sessions  *sessions.Manager
	sandboxID func() string
}

// NewRouter creates a WebSocket router. sandboxID reports the current
// sandbox identity for the connect handshake.
func NewRouter(sm *sessions.Manager, sandboxID func() string) *Router {
	return &Router{
		sessions:  sm,
		sandboxID: sandboxID,
	}
}

// HandleTerminalSocket upgrades HTTP to WebSocket and attaches to a session.
func (r *Router) HandleTerminalSocket(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	session, err := r.sessions.Get(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, session)
	if client == nil {
		// Hub already stopped
		return
	}

	cwd, _ := os.Getwd()
	client.SendControl(ControlMessage{
		Type:       "connected",
		SandboxID:  r.sandboxID(),
		Shell:      session.Shell,
		WorkingDir: cwd,
	})

	go client.ReadPump()
	go client.WritePump()
}
