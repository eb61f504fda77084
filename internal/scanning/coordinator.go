package scanning

import (
	"context"
	"sync"
	"time"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/osdetect"
	"github.com/anstrom/portsweep/internal/resolver"
)

// OSFingerprinter guesses the OS family of an IP. It must not fail.
type OSFingerprinter interface {
	Fingerprint(ctx context.Context, ip string) osdetect.OSGuess
}

// PortProber probes a single port.
type PortProber interface {
	Probe(ctx context.Context, ip string, port int, timeout time.Duration) ProbeResult
}

// SessionHook is called with every newly installed session before its
// control goroutine starts.
type SessionHook func(*Session)

// Coordinator validates scan requests, resolves targets and runs at most
// one session at a time. A new valid request cancels and replaces the
// running session.
type Coordinator struct {
	resolver      resolver.Resolver
	fingerprinter OSFingerprinter
	prober        PortProber
	metrics       metrics.Recorder
	maxWorkers    int
	hooks         []SessionHook

	startMu sync.Mutex
	mu      sync.RWMutex
	current *Session
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithResolver sets the target resolver.
func WithResolver(r resolver.Resolver) CoordinatorOption {
	return func(c *Coordinator) {
		c.resolver = r
	}
}

// WithFingerprinter sets the OS fingerprinter.
func WithFingerprinter(f OSFingerprinter) CoordinatorOption {
	return func(c *Coordinator) {
		c.fingerprinter = f
	}
}

// WithProber sets the port prober.
func WithProber(p PortProber) CoordinatorOption {
	return func(c *Coordinator) {
		c.prober = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithMaxWorkers bounds the worker count of a request.
func WithMaxWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithSessionHook registers a hook run for every new session.
func WithSessionHook(h SessionHook) CoordinatorOption {
	return func(c *Coordinator) {
		c.hooks = append(c.hooks, h)
	}
}

// NewCoordinator creates a Coordinator. Unset collaborators default to the
// system resolver, ping based fingerprinting, a default Prober and the
// global metrics.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{maxWorkers: DefaultMaxWorkers}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = resolver.NewSystem()
	}
	if c.fingerprinter == nil {
		c.fingerprinter = osdetect.New(nil, osdetect.DefaultTimeout)
	}
	if c.prober == nil {
		c.prober = NewProber()
	}
	if c.metrics == nil {
		c.metrics = metrics.GetGlobalMetrics()
	}
	return c
}

// StartScan validates and resolves req, then cancels any running session,
// waits for its workers to exit and starts a new one. Validation and
// resolution errors are returned synchronously and leave the current
// session untouched. ctx bounds resolution only; use Session.Cancel to
// stop the scan.
func (c *Coordinator) StartScan(ctx context.Context, req ScanRequest) (*Session, error) {
	cfg, err := req.Validate(c.maxWorkers)
	if err != nil {
		c.metrics.IncrementScansTotal(string(StateAborted))
		logging.Warn("Scan request rejected", "target", req.Target, "error", err)
		return nil, err
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	ip, err := c.resolver.Resolve(ctx, req.Target)
	if err != nil {
		if !errors.IsCode(err, errors.CodeResolutionFailed) {
			err = errors.ErrResolution(req.Target, err)
		}
		c.metrics.IncrementScansTotal(string(StateAborted))
		logging.ErrorScan("Target resolution failed", req.Target, err)
		return nil, err
	}

	c.mu.RLock()
	prev := c.current
	c.mu.RUnlock()
	if prev != nil {
		prev.Cancel()
		prev.Wait()
	}

	s := newSession(context.WithoutCancel(ctx), ScanTarget{IP: ip, Input: req.Target}, cfg)
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	for _, h := range c.hooks {
		h(s)
	}

	go s.run(engine{
		fingerprinter: c.fingerprinter,
		prober:        c.prober,
		metrics:       c.metrics,
	})
	return s, nil
}

// Current returns the most recent session, or nil.
func (c *Coordinator) Current() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// OpenPorts returns the current session's records, or nil without a session.
func (c *Coordinator) OpenPorts() []OpenPortRecord {
	if s := c.Current(); s != nil {
		return s.OpenPorts()
	}
	return nil
}

// Cancel cancels the current session. It reports false when there is no
// running session.
func (c *Coordinator) Cancel() bool {
	s := c.Current()
	if s == nil || s.State().Terminal() {
		return false
	}
	s.Cancel()
	return true
}

// Shutdown cancels the current session and waits for it to finish or for
// ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	s := c.Current()
	if s == nil {
		return nil
	}
	s.Cancel()
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
