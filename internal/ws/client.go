package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkpad-ai/sandbox-client/internal/sessions"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// ControlMessage is a JSON frame on the terminal socket. Binary frames
// carry raw terminal bytes; text frames carry these.
type ControlMessage struct {
	Type       string `json:"type"`
	SandboxID  string `json:"sandboxId,omitempty"`
	Shell      string `json:"shell,omitempty"`
	WorkingDir string `json:"cwd,omitempty"`
	Text       string `json:"text,omitempty"`
	Cols       uint16 `json:"cols,omitempty"`
	Rows       uint16 `json:"rows,omitempty"`
	T          int64  `json:"t,omitempty"`
}

// Client pumps one WebSocket connection against a terminal session.
type Client struct {
	conn    *websocket.Conn
	session *sessions.Session
	output  chan []byte
	control chan []byte
}

// NewClient registers a client on the session's hub. Returns nil if the
// hub is already stopped.
func NewClient(conn *websocket.Conn, session *sessions.Session) *Client {
	c := &Client{
		conn:    conn,
		session: session,
		output:  make(chan []byte, 256),
		control: make(chan []byte, 16),
	}
	if !session.Hub().Register(c.output) {
		conn.Close()
		return nil
	}
	return c
}

// SendControl queues a JSON control frame for the write pump. Frames are
// dropped if the queue is full.
func (c *Client) SendControl(msg ControlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.control <- data:
	default:
	}
}

// ReadPump reads input and control frames from the WebSocket.
func (c *Client) ReadPump() {
	defer func() {
		c.session.Hub().Unregister(c.output)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			// Binary = raw terminal input, forwarded byte for byte.
			c.session.Write(data)

		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("[ws] invalid control message: %v", err)
				continue
			}
			c.handleControl(msg)
		}
	}
}

func (c *Client) handleControl(msg ControlMessage) {
	switch msg.Type {
	case "resize":
		if msg.Cols > 0 && msg.Rows > 0 {
			c.session.Resize(msg.Cols, msg.Rows)
		}

	case "ping":
		// Echo the caller's timestamp so it can measure round trips.
		c.SendControl(ControlMessage{Type: "pong", T: msg.T})

	default:
		log.Printf("[ws] unknown control message type: %s", msg.Type)
	}
}

// WritePump writes terminal output and control frames to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.output:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}

		case data := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
