package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/osdetect"
	"github.com/anstrom/portsweep/internal/scanning"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, host string) (string, error) {
	if host == "nowhere.test" {
		return "", errors.ErrResolution(host, fmt.Errorf("no such host"))
	}
	return "192.0.2.10", nil
}

type linuxOS struct{}

func (linuxOS) Fingerprint(context.Context, string) osdetect.OSGuess { return osdetect.OSLinuxUnix }

// stubProber reports ports 22 and 80 open. With hold set it blocks every
// probe until the session is canceled.
type stubProber struct {
	hold bool
}

func (p stubProber) Probe(ctx context.Context, _ string, port int, _ time.Duration) scanning.ProbeResult {
	if p.hold {
		<-ctx.Done()
		return scanning.ProbeResult{Port: port, Failure: scanning.FailureCanceled}
	}
	switch port {
	case 22:
		return scanning.ProbeResult{Port: port, Open: true, Banner: "SSH-2.0-test"}
	case 80:
		return scanning.ProbeResult{Port: port, Open: true, Banner: scanning.NoBanner}
	}
	return scanning.ProbeResult{Port: port, Failure: scanning.FailureRefused}
}

type nopRecorder struct{}

func (nopRecorder) IncrementScansTotal(string)                {}
func (nopRecorder) RecordScanDuration(string, time.Duration) {}
func (nopRecorder) IncActiveScans()                          {}
func (nopRecorder) DecActiveScans()                          {}
func (nopRecorder) IncrementOSGuesses(string)                {}
func (nopRecorder) IncrementPortsProbed(string)              {}
func (nopRecorder) IncrementProbeFailures(string)            {}

func newCoordinator(p stubProber, opts ...scanning.CoordinatorOption) *scanning.Coordinator {
	base := []scanning.CoordinatorOption{
		scanning.WithResolver(stubResolver{}),
		scanning.WithFingerprinter(linuxOS{}),
		scanning.WithProber(p),
		scanning.WithMetrics(nopRecorder{}),
		scanning.WithMaxWorkers(128),
	}
	return scanning.NewCoordinator(append(base, opts...)...)
}

func testDefaults() config.ScanningConfig {
	return config.Default().Scanning
}

type memoryStore struct {
	mu      sync.Mutex
	reports []*db.ScanReport
	ports   [][]db.OpenPort
	err     error
}

func (m *memoryStore) Save(_ context.Context, r *db.ScanReport, ports []db.OpenPort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	m.ports = append(m.ports, ports)
	return nil
}
