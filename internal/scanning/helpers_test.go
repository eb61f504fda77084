package scanning

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/osdetect"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeDialer routes selected ports to real loopback listeners and fails
// everything else without touching the network.
type fakeDialer struct {
	mu      sync.Mutex
	open    map[int]string
	hangIPs map[string]bool
	timeout bool
	dials   map[int]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		open:    make(map[int]string),
		hangIPs: make(map[string]bool),
		dials:   make(map[int]int),
	}
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)

	d.mu.Lock()
	d.dials[port]++
	target, isOpen := d.open[port]
	hang := d.hangIPs[host]
	timeout := d.timeout
	d.mu.Unlock()

	switch {
	case hang:
		<-ctx.Done()
		return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
	case isOpen:
		var nd net.Dialer
		return nd.DialContext(ctx, "tcp", target)
	case timeout:
		return nil, &net.OpError{Op: "dial", Net: network, Err: timeoutError{}}
	default:
		return nil, &net.OpError{Op: "dial", Net: network, Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	}
}

func (d *fakeDialer) dialCounts() map[int]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int]int, len(d.dials))
	for k, v := range d.dials {
		out[k] = v
	}
	return out
}

// startServer accepts connections, reads the client greeting, optionally
// writes banner, and closes. Greetings are reported on the returned channel.
func startServer(t *testing.T, banner []byte) (string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	greetings := make(chan string, 64)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_ = c.SetDeadline(time.Now().Add(2 * time.Second))
				buf := make([]byte, 64)
				n, _ := c.Read(buf)
				select {
				case greetings <- string(buf[:n]):
				default:
				}
				if banner != nil {
					_, _ = c.Write(banner)
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), greetings
}

// fixedFingerprinter returns the same guess and counts calls.
type fixedFingerprinter struct {
	guess osdetect.OSGuess
	calls atomic.Int32
}

func (f *fixedFingerprinter) Fingerprint(context.Context, string) osdetect.OSGuess {
	f.calls.Add(1)
	return f.guess
}

// mapResolver resolves from a fixed table.
type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, host string) (string, error) {
	if ip, ok := m[host]; ok {
		return ip, nil
	}
	return "", &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

// countingRecorder implements metrics.Recorder for assertions.
type countingRecorder struct {
	mu       sync.Mutex
	scans    map[string]int
	probed   map[string]int
	failures map[string]int
	guesses  map[string]int
	active   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		scans:    make(map[string]int),
		probed:   make(map[string]int),
		failures: make(map[string]int),
		guesses:  make(map[string]int),
	}
}

func (r *countingRecorder) IncrementScansTotal(state string) {
	r.mu.Lock()
	r.scans[state]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordScanDuration(string, time.Duration) {}

func (r *countingRecorder) IncActiveScans() {
	r.mu.Lock()
	r.active++
	r.mu.Unlock()
}

func (r *countingRecorder) DecActiveScans() {
	r.mu.Lock()
	r.active--
	r.mu.Unlock()
}

func (r *countingRecorder) IncrementOSGuesses(family string) {
	r.mu.Lock()
	r.guesses[family]++
	r.mu.Unlock()
}

func (r *countingRecorder) IncrementPortsProbed(result string) {
	r.mu.Lock()
	r.probed[result]++
	r.mu.Unlock()
}

func (r *countingRecorder) IncrementProbeFailures(kind string) {
	r.mu.Lock()
	r.failures[kind]++
	r.mu.Unlock()
}

func (r *countingRecorder) snapshot() (scans, probed, failures map[string]int, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := func(m map[string]int) map[string]int {
		out := make(map[string]int, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return cp(r.scans), cp(r.probed), cp(r.failures), r.active
}

// collectEvents reads the session's events until the channel closes.
func collectEvents(t *testing.T, s *Session) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(20 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("session %s did not finish; %d events so far", s.ID, len(events))
		}
	}
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
