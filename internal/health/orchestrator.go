package health

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/inkpad-ai/sandbox-client/internal/api"
)

// Status is the orchestrator's view of the remote sandbox.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusCreating  Status = "creating"
)

const (
	// DefaultThrottle is how recent a check must be to be reused instead
	// of probing again.
	DefaultThrottle = 60 * time.Second

	// DefaultHealInterval is the background heal cadence.
	DefaultHealInterval = 10 * time.Minute
)

// Orchestrator owns sandbox status. It throttles health probes, escalates
// failed probes into recreation, and never touches the terminal transport;
// interested parties subscribe to status transitions instead.
type Orchestrator struct {
	client       *api.Client
	throttle     time.Duration
	healInterval time.Duration
	notify       func(text string)

	mu           sync.Mutex
	status       Status
	sandboxID    string
	lastCheckAt  time.Time
	lastHealthy  bool
	healing      bool
	failureCount int

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Status)
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithThrottle overrides the probe throttle window.
func WithThrottle(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.throttle = d
	}
}

// WithHealInterval overrides the background heal cadence.
func WithHealInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.healInterval = d
	}
}

// WithNotify sets the callback for user-visible notices. Only
// circuit-breaker conditions produce one.
func WithNotify(fn func(text string)) Option {
	return func(o *Orchestrator) {
		o.notify = fn
	}
}

// New creates an orchestrator over the given backend client.
func New(client *api.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		throttle:     DefaultThrottle,
		healInterval: DefaultHealInterval,
		status:       StatusUnknown,
		subs:         make(map[int]func(Status)),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Status returns the current sandbox status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SandboxID returns the id of the sandbox last seen healthy, or empty.
func (o *Orchestrator) SandboxID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sandboxID
}

// LastCheckedAt returns when the last probe completed.
func (o *Orchestrator) LastCheckedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCheckAt
}

// Subscribe registers a status-transition callback and returns an
// unsubscribe function. Callbacks run on the goroutine that caused the
// transition and must not block.
func (o *Orchestrator) Subscribe(fn func(Status)) func() {
	o.subMu.Lock()
	o.subSeq++
	id := o.subSeq
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// CheckHealth issues exactly one probe and updates status. Network and
// decode failures collapse to status unknown and false; nothing propagates
// to the caller as an error.
func (o *Orchestrator) CheckHealth(ctx context.Context) bool {
	result, err := o.client.Health(ctx)
	if err != nil {
		log.Printf("[health] probe failed: %v", err)
		o.setStatus(StatusUnknown)
		return false
	}

	o.mu.Lock()
	o.lastCheckAt = result.CheckedAt
	o.lastHealthy = result.Healthy
	if result.SandboxID != "" {
		o.sandboxID = result.SandboxID
	}
	o.mu.Unlock()

	if result.Healthy {
		o.setStatus(StatusHealthy)
	} else {
		o.setStatus(StatusUnhealthy)
	}
	return result.Healthy
}

// AutoHeal is the primary entry point: probe, and recreate the sandbox if
// the probe says it is unusable. Calls overlapping an in-flight heal return
// the cached result immediately, as do unforced calls inside the throttle
// window. The boolean means "sandbox usable right now".
func (o *Orchestrator) AutoHeal(ctx context.Context, reason string, force bool) bool {
	o.mu.Lock()
	if o.healing {
		cached := o.lastHealthy
		o.mu.Unlock()
		return cached
	}
	if !force && !o.lastCheckAt.IsZero() && time.Since(o.lastCheckAt) < o.throttle {
		cached := o.lastHealthy
		o.mu.Unlock()
		return cached
	}
	o.healing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.healing = false
		o.mu.Unlock()
	}()

	log.Printf("[health] heal: reason=%s force=%v", reason, force)

	result, err := o.client.Health(ctx)
	now := time.Now()

	o.mu.Lock()
	o.lastCheckAt = now
	o.mu.Unlock()

	if err == nil && result.Healthy {
		o.mu.Lock()
		o.lastHealthy = true
		o.failureCount = 0
		if result.SandboxID != "" {
			o.sandboxID = result.SandboxID
		}
		o.mu.Unlock()
		o.setStatus(StatusHealthy)
		return true
	}

	if err != nil {
		log.Printf("[health] probe failed, escalating to recreate: %v", err)
	} else {
		log.Printf("[health] sandbox unhealthy, escalating to recreate")
	}

	return o.recreate(ctx)
}

// recreate replaces the sandbox. Auth failures are terminal for this cycle:
// retrying with the same credentials cannot succeed.
func (o *Orchestrator) recreate(ctx context.Context) bool {
	o.setStatus(StatusCreating)

	sandboxID, err := o.client.Recreate(ctx)
	if err != nil {
		o.mu.Lock()
		o.lastHealthy = false
		o.failureCount++
		failures := o.failureCount
		o.mu.Unlock()
		o.setStatus(StatusUnhealthy)

		if errors.Is(err, api.ErrUnauthorized) {
			log.Printf("[health] recreate unauthorized, not retrying")
			return false
		}

		log.Printf("[health] recreate failed (%d consecutive): %v", failures, err)
		if isCircuitBreaker(err) && o.notify != nil {
			o.notify("Sandbox is overloaded; execution is temporarily paused.")
		}
		return false
	}

	o.mu.Lock()
	o.sandboxID = sandboxID
	o.lastHealthy = true
	o.failureCount = 0
	o.mu.Unlock()
	o.setStatus(StatusHealthy)

	log.Printf("[health] sandbox recreated: %s", sandboxID)
	return true
}

// Run drives the background heal loop until ctx is cancelled. The first
// heal is forced; app start must always probe.
func (o *Orchestrator) Run(ctx context.Context) {
	o.AutoHeal(ctx, "startup", true)

	ticker := time.NewTicker(o.healInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.AutoHeal(ctx, "interval", false)
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	if o.status == s {
		o.mu.Unlock()
		return
	}
	o.status = s
	o.mu.Unlock()

	o.subMu.Lock()
	fns := make([]func(Status), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func isCircuitBreaker(err error) bool {
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "circuit breaker") || strings.Contains(text, "circuit_breaker")
}
