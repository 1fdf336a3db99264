// Command sandboxd is a local sandbox backend. It serves the sandbox
// lifecycle and terminal session API over plain HTTP so the client can be
// developed and tested without a remote sandbox provider.
package main

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkpad-ai/sandbox-client/internal/auth"
	"github.com/inkpad-ai/sandbox-client/internal/sessions"
	"github.com/inkpad-ai/sandbox-client/internal/ws"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	sessionManager := sessions.NewManager(os.Getenv("SANDBOXD_SHELL"))
	server := NewServer(sessionManager, os.Getenv("SANDBOXD_TOKEN"))

	log.Printf("[sandboxd] starting on :%s (sandbox %s)", port, server.SandboxID())
	if err := http.ListenAndServe(":"+port, server.Handler()); err != nil {
		log.Fatal(err)
	}
}

type Server struct {
	sessions *sessions.Manager
	wsRouter *ws.Router
	auth     *auth.Middleware

	mu        sync.RWMutex
	sandboxID string
}

func NewServer(sm *sessions.Manager, token string) *Server {
	s := &Server{
		sessions:  sm,
		auth:      auth.NewMiddleware(token),
		sandboxID: uuid.New().String(),
	}
	s.wsRouter = ws.NewRouter(sm, s.SandboxID)
	return s
}

// SandboxID reports the current sandbox identity. It changes on recreate.
func (s *Server) SandboxID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sandboxID
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sandbox lifecycle
	mux.HandleFunc("GET /sandbox/health", s.auth.RequireAuthFunc(s.handleHealth))
	mux.HandleFunc("POST /sandbox/recreate", s.auth.RequireAuthFunc(s.handleRecreate))

	// Terminal sessions
	mux.HandleFunc("POST /terminal/sessions", s.auth.RequireAuthFunc(s.handleCreateSession))
	mux.HandleFunc("DELETE /terminal/sessions/{id}", s.auth.RequireAuthFunc(s.handleDeleteSession))

	// Terminal streaming and control
	mux.HandleFunc("GET /terminal/{id}/stream", s.auth.RequireAuthFunc(s.handleStream))
	mux.HandleFunc("GET /terminal/{id}/ws", s.auth.RequireAuthFunc(s.wsRouter.HandleTerminalSocket))
	mux.HandleFunc("POST /terminal/{id}/input", s.auth.RequireAuthFunc(s.handleInput))
	mux.HandleFunc("POST /terminal/{id}/resize", s.auth.RequireAuthFunc(s.handleResize))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"health": map[string]any{
			"isHealthy": true,
			"sandboxId": s.SandboxID(),
		},
	})
}

func (s *Server) handleRecreate(w http.ResponseWriter, r *http.Request) {
	// A new sandbox invalidates every terminal session the old one hosted.
	s.sessions.Shutdown()

	s.mu.Lock()
	s.sandboxID = uuid.New().String()
	id := s.sandboxID
	s.mu.Unlock()

	log.Printf("[sandboxd] recreated sandbox %s", id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sandboxId": id})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Create()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"sessionId": session.ID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var body struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := session.Write([]byte(body.Data)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var body struct {
		Cols uint16 `json:"cols"`
		Rows uint16 `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Cols == 0 || body.Rows == 0 {
		http.Error(w, "cols and rows must be positive", http.StatusBadRequest)
		return
	}

	if err := session.Resize(body.Cols, body.Rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const streamKeepaliveInterval = 15 * time.Second

// handleStream serves terminal output as server-sent events. Output bytes
// are base64 encoded because raw PTY chunks can split multibyte runes,
// which JSON string encoding would mangle.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	output := make(chan []byte, 256)
	if !session.Hub().Register(output) {
		http.Error(w, "session closed", http.StatusGone)
		return
	}
	defer session.Hub().Unregister(output)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	cwd, _ := os.Getwd()
	writeEvent(w, "connected", map[string]string{
		"sandboxId": s.SandboxID(),
		"shell":     session.Shell,
		"cwd":       cwd,
	})
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case data, ok := <-output:
			if !ok {
				return
			}
			writeEvent(w, "output", map[string]string{
				"data": base64.StdEncoding.EncodeToString(data),
			})
			flusher.Flush()

		case <-keepalive.C:
			w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\n"))
	w.Write([]byte("data: " + string(data) + "\n\n"))
}
