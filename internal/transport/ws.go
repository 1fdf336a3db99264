package transport

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkpad-ai/sandbox-client/internal/api"
)

const (
	wsWriteWait        = 10 * time.Second
	wsHandshakeTimeout = 10 * time.Second
	wsPingPeriod       = 15 * time.Second
	wsMaxMessageSize   = 256 * 1024
)

// WSDialer opens websocket connections. Output, input, resize and latency
// pings all share the one socket.
type WSDialer struct {
	api *api.Client
}

// NewWSDialer creates a websocket dialer.
func NewWSDialer(apiClient *api.Client) *WSDialer {
	return &WSDialer{api: apiClient}
}

// Kind returns KindWebSocket.
func (d *WSDialer) Kind() Kind {
	return KindWebSocket
}

// Dial connects the session socket and starts the read and ping loops.
func (d *WSDialer) Dial(ctx context.Context, sessionID string, sink EventSink) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, d.api.SocketURL(sessionID), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	ws := &wsConn{
		conn: conn,
		stop: make(chan struct{}),
	}
	go ws.readPump(sink)
	go ws.pingLoop()

	return ws, nil
}

// wsControlMessage is the JSON frame exchanged alongside raw binary output.
type wsControlMessage struct {
	Type       string `json:"type"`
	SandboxID  string `json:"sandboxId,omitempty"`
	Shell      string `json:"shell,omitempty"`
	WorkingDir string `json:"cwd,omitempty"`
	Text       string `json:"text,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	T          int64  `json:"t,omitempty"` // ping/pong timestamp, unix nanos
}

type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	stop    chan struct{}

	closeOnce sync.Once
}

func (c *wsConn) Kind() Kind {
	return KindWebSocket
}

func (c *wsConn) SendInput(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) Resize(cols, rows int) error {
	data, err := json.Marshal(wsControlMessage{Type: "resize", Cols: cols, Rows: rows})
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// readPump delivers frames to the sink until the socket dies. Binary frames
// are raw terminal output; text frames are JSON control messages.
func (c *wsConn) readPump(sink EventSink) {
	c.conn.SetReadLimit(wsMaxMessageSize)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sink.Closed(nil)
			} else {
				sink.Closed(err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			sink.Output(data)

		case websocket.TextMessage:
			var msg wsControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("[transport] dropping malformed control frame: %v", err)
				continue
			}
			c.handleControl(msg, sink)
		}
	}
}

func (c *wsConn) handleControl(msg wsControlMessage, sink EventSink) {
	switch msg.Type {
	case "connected":
		sink.Connected(ConnectedInfo{
			SandboxID:  msg.SandboxID,
			Shell:      msg.Shell,
			WorkingDir: msg.WorkingDir,
			Kind:       KindWebSocket,
		})

	case "pong":
		if msg.T > 0 {
			sink.Latency(time.Since(time.Unix(0, msg.T)))
		}

	case "terminal_message":
		sink.Message(msg.Text)

	default:
		log.Printf("[transport] unknown control frame type: %s", msg.Type)
	}
}

// pingLoop sends timestamped pings so the matching pongs yield round-trip
// latency. Failures here are left to the read pump to notice.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			data, err := json.Marshal(wsControlMessage{Type: "ping", T: time.Now().UnixNano()})
			if err != nil {
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}
