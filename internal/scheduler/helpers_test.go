package scheduler

import (
	"context"
	"time"

	"github.com/anstrom/portsweep/internal/osdetect"
	"github.com/anstrom/portsweep/internal/scanning"
)

type literalResolver struct{}

func (literalResolver) Resolve(_ context.Context, host string) (string, error) { return host, nil }

type unknownOS struct{}

func (unknownOS) Fingerprint(context.Context, string) osdetect.OSGuess { return osdetect.OSUnknown }

type closedPorts struct{}

func (closedPorts) Probe(_ context.Context, _ string, port int, _ time.Duration) scanning.ProbeResult {
	return scanning.ProbeResult{Port: port, Failure: scanning.FailureRefused}
}
