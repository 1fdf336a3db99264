package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/inkpad-ai/sandbox-client/internal/api"
)

// SSEDialer opens server-sent-event streams. Output arrives on the stream;
// input and resize travel back over plain HTTP posts through the api client.
type SSEDialer struct {
	api    *api.Client
	client *http.Client
}

// NewSSEDialer creates an event-stream dialer. The stream uses its own HTTP
// client without a timeout; the api client's request timeout would kill a
// long-lived stream.
func NewSSEDialer(apiClient *api.Client) *SSEDialer {
	return &SSEDialer{
		api:    apiClient,
		client: &http.Client{},
	}
}

// Kind returns KindEventStream.
func (d *SSEDialer) Kind() Kind {
	return KindEventStream
}

// Dial opens the stream and starts delivering events to sink. The returned
// Conn sends input through the api client.
func (d *SSEDialer) Dial(ctx context.Context, sessionID string, sink EventSink) (Conn, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, "GET", d.api.StreamURL(sessionID), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token := d.api.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// The dial itself is bounded by the caller's ctx; the stream is not.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	resp, err := d.client.Do(req)
	close(done)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream status %d", api.ErrAPIError, resp.StatusCode)
	}

	conn := &sseConn{
		api:       d.api,
		sessionID: sessionID,
		cancel:    cancel,
	}
	go conn.readLoop(resp, sink)

	return conn, nil
}

type sseConn struct {
	api       *api.Client
	sessionID string
	cancel    context.CancelFunc
}

func (c *sseConn) Kind() Kind {
	return KindEventStream
}

func (c *sseConn) SendInput(data []byte) error {
	return c.api.SendInput(context.Background(), c.sessionID, data)
}

func (c *sseConn) Resize(cols, rows int) error {
	return c.api.Resize(context.Background(), c.sessionID, cols, rows)
}

func (c *sseConn) Close() error {
	c.cancel()
	return nil
}

// readLoop parses the SSE framing and dispatches events. A malformed event
// is dropped; the stream stays open.
func (c *sseConn) readLoop(resp *http.Response, sink EventSink) {
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var event, data string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			sink.Closed(err)
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if event != "" || data != "" {
				c.dispatch(event, data, sink)
			}
			event, data = "", ""

		case strings.HasPrefix(line, ":"):
			// Comment/keepalive.

		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(line, "data:")
			chunk = strings.TrimPrefix(chunk, " ")
			if data != "" {
				data += "\n"
			}
			data += chunk
		}
	}
}

type sseConnectedPayload struct {
	SandboxID  string `json:"sandboxId"`
	Shell      string `json:"shell"`
	WorkingDir string `json:"cwd"`
}

type sseOutputPayload struct {
	Data   string `json:"data,omitempty"` // base64 raw terminal bytes
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

type sseMessagePayload struct {
	Text string `json:"text"`
}

func (c *sseConn) dispatch(event, data string, sink EventSink) {
	switch event {
	case "connected":
		var p sseConnectedPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Printf("[transport] dropping malformed connected event: %v", err)
			return
		}
		sink.Connected(ConnectedInfo{
			SandboxID:  p.SandboxID,
			Shell:      p.Shell,
			WorkingDir: p.WorkingDir,
			Kind:       KindEventStream,
		})

	case "output":
		var p sseOutputPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Printf("[transport] dropping malformed output event: %v", err)
			return
		}
		if p.Data != "" {
			raw, err := base64.StdEncoding.DecodeString(p.Data)
			if err != nil {
				log.Printf("[transport] dropping undecodable output event: %v", err)
				return
			}
			sink.Output(raw)
			return
		}
		if p.Stdout != "" {
			sink.Output([]byte(p.Stdout))
		}
		if p.Stderr != "" {
			sink.Output([]byte(p.Stderr))
		}

	case "terminal_message":
		var p sseMessagePayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Printf("[transport] dropping malformed terminal_message event: %v", err)
			return
		}
		sink.Message(p.Text)

	default:
		// Unknown event types are ignored for forward compatibility.
	}
}
