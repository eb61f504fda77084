package cli

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/osdetect"
	"github.com/anstrom/portsweep/internal/scanning"
)

// resetViper gives a test a fresh viper with the built-in defaults,
// reading file when non-empty.
func resetViper(t *testing.T, file string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfgFile = file
	t.Cleanup(func() { cfgFile = "" })
	initConfig()
}

type staticResolver struct{}

func (staticResolver) Resolve(context.Context, string) (string, error) { return "203.0.113.7", nil }

type unixOS struct{}

func (unixOS) Fingerprint(context.Context, string) osdetect.OSGuess { return osdetect.OSLinuxUnix }

// twoOpenPorts reports 22 and 80 open; everything else is refused.
type twoOpenPorts struct{}

func (twoOpenPorts) Probe(_ context.Context, _ string, port int, _ time.Duration) scanning.ProbeResult {
	switch port {
	case 22:
		return scanning.ProbeResult{Port: port, Open: true, Banner: "SSH-2.0-OpenSSH_9.6"}
	case 80:
		return scanning.ProbeResult{Port: port, Open: true, Banner: scanning.NoBanner}
	}
	return scanning.ProbeResult{Port: port, Failure: scanning.FailureRefused}
}

// cancelingProber calls cancel on its first probe and then waits for the
// session to be canceled.
type cancelingProber struct {
	cancel context.CancelFunc
}

func (p cancelingProber) Probe(ctx context.Context, _ string, port int, _ time.Duration) scanning.ProbeResult {
	p.cancel()
	<-ctx.Done()
	return scanning.ProbeResult{Port: port, Failure: scanning.FailureCanceled}
}

func stubCoordinator(prober scanning.PortProber, opts ...scanning.CoordinatorOption) *scanning.Coordinator {
	return scanning.NewCoordinator(append([]scanning.CoordinatorOption{
		scanning.WithResolver(staticResolver{}),
		scanning.WithFingerprinter(unixOS{}),
		scanning.WithProber(prober),
		scanning.WithMetrics(metrics.NewPrometheusMetrics()),
	}, opts...)...)
}

// useStubCoordinator swaps the coordinator factory for the test.
func useStubCoordinator(t *testing.T, prober scanning.PortProber) {
	t.Helper()
	orig := newCoordinator
	newCoordinator = func(_ *config.Config, opts ...scanning.CoordinatorOption) *scanning.Coordinator {
		return stubCoordinator(prober, opts...)
	}
	t.Cleanup(func() { newCoordinator = orig })
}
