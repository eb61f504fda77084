package scanning

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/osdetect"
)

// Session is one scan of one target. It owns the work queue, the result
// aggregator and the progress counter, and is replaced wholesale by the
// next scan.
type Session struct {
	ID        string
	Target    ScanTarget
	Config    ScanConfig
	StartedAt time.Time

	mu         sync.RWMutex
	state      State
	osGuess    osdetect.OSGuess
	finishedAt time.Time

	queue     *WorkQueue
	results   *Aggregator
	completed atomic.Int64
	emitMu    sync.Mutex
	events    chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// Status is a point-in-time view of a session.
type Status struct {
	ID         string           `json:"id"`
	Target     string           `json:"target"`
	IP         string           `json:"ip"`
	State      State            `json:"state"`
	OSGuess    osdetect.OSGuess `json:"os_guess"`
	StartPort  int              `json:"start_port"`
	EndPort    int              `json:"end_port"`
	Workers    int              `json:"workers"`
	Completed  int              `json:"completed"`
	Total      int              `json:"total"`
	OpenPorts  int              `json:"open_ports"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

func newSession(parent context.Context, target ScanTarget, cfg ScanConfig) *Session {
	ctx, cancel := context.WithCancel(parent)
	total := cfg.Total()
	return &Session{
		ID:        uuid.New().String(),
		Target:    target,
		Config:    cfg,
		StartedAt: time.Now(),
		state:     StateResolving,
		osGuess:   osdetect.OSUnknown,
		queue:     NewWorkQueue(cfg.StartPort, cfg.EndPort),
		results:   NewAggregator(),
		events:    make(chan Event, eventCapacity(total)),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OSGuess returns the OS family guess, Unknown until fingerprinting ends.
func (s *Session) OSGuess() osdetect.OSGuess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.osGuess
}

// Progress returns completed probes and the range size.
func (s *Session) Progress() (completed, total int) {
	return int(s.completed.Load()), s.Config.Total()
}

// OpenPorts returns the ordered open-port records found so far.
func (s *Session) OpenPorts() []OpenPortRecord {
	return s.results.Snapshot()
}

// Events returns the session's event stream. It has a single consumer and
// is closed after the scan_complete event.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Cancel requests cooperative cancellation.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session reaches a terminal state.
func (s *Session) Wait() {
	<-s.done
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	state, guess, finished := s.state, s.osGuess, s.finishedAt
	s.mu.RUnlock()

	completed, total := s.Progress()
	st := Status{
		ID:        s.ID,
		Target:    s.Target.Input,
		IP:        s.Target.IP,
		State:     state,
		OSGuess:   guess,
		StartPort: s.Config.StartPort,
		EndPort:   s.Config.EndPort,
		Workers:   s.Config.Workers,
		Completed: completed,
		Total:     total,
		OpenPorts: s.results.Len(),
		StartedAt: s.StartedAt,
	}
	if !finished.IsZero() {
		st.FinishedAt = &finished
	}
	return st
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	if state.Terminal() {
		s.finishedAt = time.Now()
	}
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	ev.SessionID = s.ID
	s.events <- ev
}

// engine bundles the collaborators a session runs with.
type engine struct {
	fingerprinter OSFingerprinter
	prober        PortProber
	metrics       metrics.Recorder
}

// run is the session's control goroutine.
func (s *Session) run(e engine) {
	defer close(s.done)
	defer s.cancel()

	e.metrics.IncActiveScans()
	defer e.metrics.DecActiveScans()

	s.setState(StateFingerprinting)
	guess := e.fingerprinter.Fingerprint(s.ctx, s.Target.IP)
	s.mu.Lock()
	s.osGuess = guess
	s.mu.Unlock()
	e.metrics.IncrementOSGuesses(string(guess))
	s.emit(Event{Kind: EventOSGuessed, OSGuess: guess})

	logging.InfoScan("Scan started", s.Target.Input,
		"session_id", s.ID,
		"ip", s.Target.IP,
		"os_guess", string(guess),
		"start_port", s.Config.StartPort,
		"end_port", s.Config.EndPort,
		"workers", s.Config.Workers,
		"timeout", s.Config.Timeout)

	if s.ctx.Err() != nil {
		s.queue.Drain()
		s.finish(e, StateCanceled)
		return
	}

	s.setState(StateScanning)
	s.results.Clear()
	for i := 0; i < s.Config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(e)
	}
	s.wg.Wait()

	final := StateCompleted
	if completed, total := s.Progress(); completed < total {
		final = StateCanceled
	}
	s.finish(e, final)
}

func (s *Session) finish(e engine, state State) {
	s.setState(state)
	elapsed := time.Since(s.StartedAt)
	e.metrics.IncrementScansTotal(string(state))
	e.metrics.RecordScanDuration(string(state), elapsed)

	completed, total := s.Progress()
	logging.InfoScan("Scan finished", s.Target.Input,
		"session_id", s.ID,
		"state", string(state),
		"completed", completed,
		"total", total,
		"open_ports", s.results.Len(),
		"duration", elapsed)

	s.emit(Event{Kind: EventScanComplete, State: state})
	close(s.events)
}

func (s *Session) worker(e engine) {
	defer s.wg.Done()

	total := s.Config.Total()
	for {
		port, ok := s.queue.Take()
		if !ok {
			return
		}
		if s.ctx.Err() != nil {
			s.queue.Drain()
			return
		}

		res := e.prober.Probe(s.ctx, s.Target.IP, port, s.Config.Timeout)
		if res.Open {
			e.metrics.IncrementPortsProbed("open")
			if res.BannerFailure != BannerOK {
				logging.DebugProbe("No banner from open port", s.Target.IP, port,
					"reason", string(res.BannerFailure))
			}
		} else {
			e.metrics.IncrementPortsProbed("closed")
			e.metrics.IncrementProbeFailures(string(res.Failure))
			logging.DebugProbe("Probe failed", s.Target.IP, port,
				"failure", string(res.Failure), "error", res.Err)
		}

		s.emitMu.Lock()
		if res.Open {
			record := OpenPortRecord{Port: port, Banner: res.Banner}
			s.results.Append(record)
			s.emit(Event{Kind: EventOpenPort, Record: &record})
		}
		completed := s.completed.Add(1)
		s.emit(Event{Kind: EventProgress, Completed: int(completed), Total: total})
		s.emitMu.Unlock()
	}
}
