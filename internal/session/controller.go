package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/inkpad-ai/sandbox-client/internal/api"
	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/shellmark"
	"github.com/inkpad-ai/sandbox-client/internal/transport"
)

// Status is the terminal connection state shown to the UI.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

const (
	// DefaultCloseDelay lets the UI play its close animation before the
	// transport is detached.
	DefaultCloseDelay = 300 * time.Millisecond

	// DefaultLivenessInterval is the UI-driven sandbox liveness poll. It
	// shares the orchestrator's check cache, so only polls that land
	// outside the throttle window actually probe.
	DefaultLivenessInterval = 30 * time.Second

	// createRetryDelay paces session-creation retries while the panel
	// stays open.
	createRetryDelay = 2 * time.Second
)

// Info is what the sandbox negotiated for the current session.
type Info struct {
	SessionID  string
	SandboxID  string
	Shell      string
	WorkingDir string
	Transport  transport.Kind
}

// Controller is the only component allowed to decide whether a session
// exists. It owns the single current session, maps transport events to
// TerminalStatus, and replaces the session when the orchestrator recreates
// the sandbox underneath it.
type Controller struct {
	api    *api.Client
	orch   *health.Orchestrator
	dialer transport.Dialer

	closeDelay       time.Duration
	livenessInterval time.Duration

	mu            sync.Mutex
	session       *api.Session
	client        *transport.Client
	opening       bool
	reopenWanted  bool
	status        Status
	info          Info
	lastSandboxID string

	subMu      sync.Mutex
	subSeq     int
	statusSubs map[int]func(Status)
	outputSubs map[int]func([]byte)
	noticeSubs map[int]func(string)
	latencySub map[int]func(time.Duration)
	infoSubs   map[int]func(Info)

	unsubOrch func()
}

// Option configures the Controller.
type Option func(*Controller)

// WithCloseDelay overrides the detach delay on close.
func WithCloseDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.closeDelay = d
	}
}

// WithLivenessInterval overrides the liveness poll cadence.
func WithLivenessInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.livenessInterval = d
	}
}

// New creates a controller. It subscribes to orchestrator status so sandbox
// recreation invalidates the current session.
func New(apiClient *api.Client, orch *health.Orchestrator, dialer transport.Dialer, opts ...Option) *Controller {
	c := &Controller{
		api:              apiClient,
		orch:             orch,
		dialer:           dialer,
		closeDelay:       DefaultCloseDelay,
		livenessInterval: DefaultLivenessInterval,
		status:           StatusDisconnected,
		statusSubs:       make(map[int]func(Status)),
		outputSubs:       make(map[int]func([]byte)),
		noticeSubs:       make(map[int]func(string)),
		latencySub:       make(map[int]func(time.Duration)),
		infoSubs:         make(map[int]func(Info)),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.unsubOrch = orch.Subscribe(c.handleSandboxStatus)
	return c
}

// Status returns the current terminal status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Info returns the negotiated session info. Zero value until connected.
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Open ensures a session exists and its transport is connecting. Calling it
// while a session is pending or live is a no-op.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	if c.opening || c.session != nil {
		c.mu.Unlock()
		return
	}
	c.opening = true
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	go c.openLoop(ctx)
}

// openLoop creates the session, retrying quietly until it succeeds or the
// panel closes. Creation failures also nudge the orchestrator, since a dead
// sandbox is the usual cause.
func (c *Controller) openLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		if !c.opening {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		sess, err := c.api.CreateSession(ctx)
		if err == nil {
			c.adoptSession(ctx, sess)
			return
		}

		log.Printf("[session] create failed, retrying: %v", err)
		c.orch.AutoHeal(ctx, "session-create-failed", false)

		select {
		case <-time.After(createRetryDelay):
		case <-ctx.Done():
			c.mu.Lock()
			c.opening = false
			c.mu.Unlock()
			return
		}
	}
}

// adoptSession wires a transport client for the new session and connects.
func (c *Controller) adoptSession(ctx context.Context, sess *api.Session) {
	client := transport.NewClient(c.dialer)

	client.OnStatus(c.handleTransportState)
	client.OnOutput(c.fanoutOutput)
	client.OnMessage(c.fanoutNotice)
	client.OnLatency(c.fanoutLatency)
	client.OnConnected(func(info transport.ConnectedInfo) {
		c.mu.Lock()
		c.info = Info{
			SessionID:  sess.ID,
			SandboxID:  info.SandboxID,
			Shell:      info.Shell,
			WorkingDir: info.WorkingDir,
			Transport:  info.Kind,
		}
		snapshot := c.info
		c.mu.Unlock()
		c.fanoutInfo(snapshot)
	})

	// Working-directory tracking rides on the output stream as a
	// best-effort observer.
	observer := shellmark.NewObserver(func(dir string) {
		c.mu.Lock()
		c.info.WorkingDir = dir
		snapshot := c.info
		c.mu.Unlock()
		c.fanoutInfo(snapshot)
	}, nil)
	client.OnOutput(observer.Feed)

	c.mu.Lock()
	if !c.opening {
		// Panel closed while the session was being created.
		c.mu.Unlock()
		go c.deleteSession(sess.ID)
		return
	}
	c.opening = false
	c.session = sess
	c.client = client
	c.mu.Unlock()

	log.Printf("[session] created %s", sess.ID)
	client.Connect(ctx, sess.ID)
}

// Close detaches the transport after the UI delay and discards the session.
// Remote cleanup is fire-and-forget.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.session == nil && !c.opening {
		c.mu.Unlock()
		return
	}
	c.opening = false
	c.reopenWanted = false
	sess := c.session
	client := c.client
	c.session = nil
	c.client = nil
	c.info = Info{}
	c.mu.Unlock()

	c.setStatus(StatusDisconnected)

	time.AfterFunc(c.closeDelay, func() {
		if client != nil {
			client.Close()
		}
		if sess != nil {
			c.deleteSession(sess.ID)
		}
	})
}

// Shutdown tears everything down, including the orchestrator subscription.
func (c *Controller) Shutdown() {
	c.Close()
	if c.unsubOrch != nil {
		c.unsubOrch()
		c.unsubOrch = nil
	}
}

// SendInput forwards raw bytes to the current session's transport. Input
// while no transport is live is dropped; the remote side owns echo, so
// there is nothing sensible to buffer.
func (c *Controller) SendInput(data []byte) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client != nil {
		client.SendInput(data)
	}
}

// Resize forwards terminal geometry to the transport (debounced there).
func (c *Controller) Resize(cols, rows int) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client != nil {
		client.Resize(cols, rows)
	}
}

// Run drives the liveness poll until ctx is cancelled. It shares the
// orchestrator's throttle cache; most ticks are cache hits.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.orch.AutoHeal(ctx, "liveness", false)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) deleteSession(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.api.DeleteSession(ctx, id); err != nil {
		log.Printf("[session] cleanup of %s failed: %v", id, err)
	}
}

// handleTransportState maps transport states onto terminal status.
func (c *Controller) handleTransportState(s transport.State) {
	switch s {
	case transport.StateConnecting:
		c.setStatus(StatusConnecting)
	case transport.StateConnected:
		c.setStatus(StatusConnected)
	case transport.StateError:
		c.setStatus(StatusError)
	case transport.StateClosed:
		// Deliberate teardown; Close already set disconnected.
	}
}

// handleSandboxStatus reacts to orchestrator transitions. Recreation makes
// the current session id meaningless: the transport is torn down before any
// new connection opens, and a fresh session is created once the sandbox is
// healthy again.
func (c *Controller) handleSandboxStatus(s health.Status) {
	switch s {
	case health.StatusCreating:
		c.mu.Lock()
		sess := c.session
		client := c.client
		c.session = nil
		c.client = nil
		if sess != nil || c.opening {
			c.opening = false
			c.reopenWanted = true
		}
		c.mu.Unlock()

		if client != nil {
			log.Printf("[session] sandbox recreating, discarding session %s", sess.ID)
			client.Close()
		}
		if sess != nil {
			c.setStatus(StatusConnecting)
		}

	case health.StatusHealthy:
		c.mu.Lock()
		id := c.orch.SandboxID()
		changed := c.lastSandboxID != "" && id != c.lastSandboxID
		c.lastSandboxID = id
		reopen := c.reopenWanted
		if reopen {
			c.reopenWanted = false
			c.opening = true
		}
		stale := changed && c.session != nil
		var sess *api.Session
		var client *transport.Client
		if stale {
			sess = c.session
			client = c.client
			c.session = nil
			c.client = nil
			c.opening = true
		}
		c.mu.Unlock()

		if stale {
			log.Printf("[session] sandbox replaced (%s), rotating session", id)
			client.Close()
			go c.deleteSession(sess.ID)
		}
		if reopen || stale {
			c.setStatus(StatusConnecting)
			go c.openLoop(context.Background())
		}
	}
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()

	c.subMu.Lock()
	fns := make([]func(Status), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Subscriptions mirror the transport client's stable-handle pattern: the UI
// registers once and never re-registers across session replacement.

func (c *Controller) OnStatus(fn func(Status)) func() {
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

func (c *Controller) OnOutput(fn func([]byte)) func() {
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

func (c *Controller) OnNotice(fn func(string)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.noticeSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.noticeSubs, id)
		c.subMu.Unlock()
	}
}

// Notify pushes a user-facing notice to OnNotice subscribers. The health
// orchestrator's circuit-breaker messages arrive through here.
func (c *Controller) Notify(text string) {
	c.fanoutNotice(text)
}

func (c *Controller) OnLatency(fn func(time.Duration)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.latencySub[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.latencySub, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) OnInfo(fn func(Info)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.infoSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.infoSubs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) fanoutOutput(data []byte) {
	c.subMu.Lock()
	fns := make([]func([]byte), 0, len(c.outputSubs))
	for _, fn := range c.outputSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (c *Controller) fanoutNotice(text string) {
	c.subMu.Lock()
	fns := make([]func(string), 0, len(c.noticeSubs))
	for _, fn := range c.noticeSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(text)
	}
}

func (c *Controller) fanoutLatency(rtt time.Duration) {
	c.subMu.Lock()
	fns := make([]func(time.Duration), 0, len(c.latencySub))
	for _, fn := range c.latencySub {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(rtt)
	}
}

func (c *Controller) fanoutInfo(info Info) {
	c.subMu.Lock()
	fns := make([]func(Info), 0, len(c.infoSubs))
	for _, fn := range c.infoSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(info)
	}
}
