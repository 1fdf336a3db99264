package transport

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultReconnectDelay is the fixed delay before the single reconnect
	// attempt scheduled per transport failure. Backoff lives in the health
	// orchestrator, not here.
	DefaultReconnectDelay = 2 * time.Second

	// DefaultResizeDebounce coalesces bursts of resize events.
	DefaultResizeDebounce = 100 * time.Millisecond
)

// Client keeps exactly one live connection for a session and reconnects it
// on failure. Subscribers receive status transitions, output in arrival
// order, negotiated connection info, backend notices, latency samples and
// non-fatal errors. Subscriptions are stable across reconnects; callers
// never re-register.
type Client struct {
	dialer         Dialer
	reconnectDelay time.Duration
	resizeDebounce time.Duration

	mu             sync.Mutex
	state          State
	conn           Conn
	sessionID      string
	gen            uint64
	closed         bool
	reconnectTimer *time.Timer
	resizeTimer    *time.Timer
	pendingCols    int
	pendingRows    int

	subMu         sync.Mutex
	subSeq        int
	statusSubs    map[int]func(State)
	outputSubs    map[int]func([]byte)
	connectedSubs map[int]func(ConnectedInfo)
	messageSubs   map[int]func(string)
	latencySubs   map[int]func(time.Duration)
	errorSubs     map[int]func(error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

// WithResizeDebounce overrides the resize debounce window.
func WithResizeDebounce(d time.Duration) ClientOption {
	return func(c *Client) {
		c.resizeDebounce = d
	}
}

// NewClient creates a transport client over the given dialer.
func NewClient(dialer Dialer, opts ...ClientOption) *Client {
	c := &Client{
		dialer:         dialer,
		reconnectDelay: DefaultReconnectDelay,
		resizeDebounce: DefaultResizeDebounce,
		state:          StateIdle,
		statusSubs:     make(map[int]func(State)),
		outputSubs:     make(map[int]func([]byte)),
		connectedSubs:  make(map[int]func(ConnectedInfo)),
		messageSubs:    make(map[int]func(string)),
		latencySubs:    make(map[int]func(time.Duration)),
		errorSubs:      make(map[int]func(error)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Kind returns the dialer's transport kind.
func (c *Client) Kind() Kind {
	return c.dialer.Kind()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens a connection for the session. The connecting state is
// emitted immediately; connected follows once the transport confirms. A
// dial failure emits error and schedules the reconnect.
func (c *Client) Connect(ctx context.Context, sessionID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.sessionID = sessionID
	c.gen++
	gen := c.gen
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	go c.dial(ctx, sessionID, gen)
}

func (c *Client) dial(ctx context.Context, sessionID string, gen uint64) {
	conn, err := c.dialer.Dial(ctx, sessionID, &connSink{c: c, gen: gen})

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		log.Printf("[transport] dial failed: %v", err)
		c.setState(StateError)
		c.scheduleReconnect()
		return
	}
	c.conn = conn
	c.mu.Unlock()
}

// SendInput forwards raw bytes to the sandbox. A failure surfaces as an
// error event; the connection is left alone, its own read loop decides
// whether it is actually dead.
func (c *Client) SendInput(data []byte) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.SendInput(data); err != nil {
		log.Printf("[transport] send input failed: %v", err)
		c.fanoutError(err)
	}
}

// Resize schedules a debounced geometry update. Failures are logged only.
func (c *Client) Resize(cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.pendingCols, c.pendingRows = cols, rows
	if c.resizeTimer != nil {
		c.resizeTimer.Stop()
	}
	c.resizeTimer = time.AfterFunc(c.resizeDebounce, c.flushResize)
}

func (c *Client) flushResize() {
	c.mu.Lock()
	conn := c.conn
	cols, rows := c.pendingCols, c.pendingRows
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Resize(cols, rows); err != nil {
		log.Printf("[transport] resize failed: %v", err)
	}
}

// Close tears the client down for good. No reconnect fires afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.resizeTimer != nil {
		c.resizeTimer.Stop()
		c.resizeTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.setState(StateClosed)
}

// scheduleReconnect arms exactly one reconnect attempt. Repeated failures
// keep rescheduling single attempts until Close.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.setState(StateConnecting)
	go c.dial(context.Background(), sessionID, gen)
}

// Subscriptions. Each returns an unsubscribe func. Callbacks run on
// transport goroutines and must not block.

func (c *Client) OnStatus(fn func(State)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.statusSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.statusSubs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) OnOutput(fn func([]byte)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.outputSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.outputSubs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) OnConnected(fn func(ConnectedInfo)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.connectedSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.connectedSubs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) OnMessage(fn func(string)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.messageSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.messageSubs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) OnLatency(fn func(time.Duration)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.latencySubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.latencySubs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) OnError(fn func(error)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.errorSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.errorSubs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (c *Client) fanoutOutput(data []byte) {
	c.subMu.Lock()
	fns := make([]func([]byte), 0, len(c.outputSubs))
	for _, fn := range c.outputSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	// No subscriber means the render surface has not attached yet; the
	// bytes are dropped rather than buffered.
	for _, fn := range fns {
		fn(data)
	}
}

func (c *Client) fanoutConnected(info ConnectedInfo) {
	c.subMu.Lock()
	fns := make([]func(ConnectedInfo), 0, len(c.connectedSubs))
	for _, fn := range c.connectedSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(info)
	}
}

func (c *Client) fanoutMessage(text string) {
	c.subMu.Lock()
	fns := make([]func(string), 0, len(c.messageSubs))
	for _, fn := range c.messageSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(text)
	}
}

func (c *Client) fanoutLatency(rtt time.Duration) {
	c.subMu.Lock()
	fns := make([]func(time.Duration), 0, len(c.latencySubs))
	for _, fn := range c.latencySubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(rtt)
	}
}

func (c *Client) fanoutError(err error) {
	c.subMu.Lock()
	fns := make([]func(error), 0, len(c.errorSubs))
	for _, fn := range c.errorSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// connSink routes events from one connection generation into the client.
// Events from a superseded connection are discarded, which guarantees two
// live connections never both feed the subscribers.
type connSink struct {
	c   *Client
	gen uint64
}

func (s *connSink) live() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return !s.c.closed && s.gen == s.c.gen
}

func (s *connSink) Connected(info ConnectedInfo) {
	if !s.live() {
		return
	}
	s.c.setState(StateConnected)
	s.c.fanoutConnected(info)
}

func (s *connSink) Output(data []byte) {
	if !s.live() {
		return
	}
	s.c.fanoutOutput(data)
}

func (s *connSink) Message(text string) {
	if !s.live() {
		return
	}
	s.c.fanoutMessage(text)
}

func (s *connSink) Latency(rtt time.Duration) {
	if !s.live() {
		return
	}
	s.c.fanoutLatency(rtt)
}

func (s *connSink) Closed(err error) {
	s.c.mu.Lock()
	if s.c.closed || s.gen != s.c.gen {
		s.c.mu.Unlock()
		return
	}
	if s.c.conn != nil {
		s.c.conn.Close()
		s.c.conn = nil
	}
	s.c.mu.Unlock()

	if err != nil {
		log.Printf("[transport] connection lost: %v", err)
	} else {
		log.Printf("[transport] connection closed by remote")
	}
	s.c.setState(StateError)
	s.c.scheduleReconnect()
}
