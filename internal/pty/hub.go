package pty

import (
	"sync"
)

// Hub fans PTY output out to attached clients. Clients that cannot keep up
// have chunks skipped rather than blocking the read loop.
type Hub struct {
	pty *PTY

	mu      sync.RWMutex
	clients map[chan []byte]struct{}

	register   chan chan []byte
	unregister chan chan []byte
	stop       chan struct{}
	stopped    bool
}

// NewHub creates a Hub for the given PTY.
func NewHub(p *PTY) *Hub {
	return &Hub{
		pty:        p,
		clients:    make(map[chan []byte]struct{}),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	go h.readLoop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				close(client)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// readLoop reads from the PTY and broadcasts to all clients.
func (h *Hub) readLoop() {
	buf := make([]byte, 32*1024)

	for {
		n, err := h.pty.Read(buf)
		if err != nil {
			return
		}

		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			h.broadcast(data)
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client <- data:
		default:
			// Client buffer full, skip.
		}
	}
}

// Register attaches a client channel to receive PTY output. Returns false
// if the hub is already stopped.
func (h *Hub) Register(client chan []byte) bool {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return false
	}

	select {
	case h.register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// Unregister detaches a client channel.
func (h *Hub) Unregister(client chan []byte) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Stop shuts down the hub and closes all client channels.
func (h *Hub) Stop() {
	close(h.stop)
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Write sends input to the PTY.
func (h *Hub) Write(data []byte) (int, error) {
	return h.pty.Write(data)
}

// Resize changes the PTY window size.
func (h *Hub) Resize(cols, rows uint16) error {
	return h.pty.Resize(cols, rows)
}
