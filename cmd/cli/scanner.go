package cli

import (
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/osdetect"
	"github.com/anstrom/portsweep/internal/resolver"
	"github.com/anstrom/portsweep/internal/scanning"
)

// newCoordinator builds the scan coordinator from configuration. Tests
// replace it to scan without touching the network.
var newCoordinator = func(cfg *config.Config, opts ...scanning.CoordinatorOption) *scanning.Coordinator {
	base := []scanning.CoordinatorOption{
		scanning.WithResolver(resolver.FromConfig(cfg.Resolver)),
		scanning.WithFingerprinter(osdetect.New(nil, cfg.Scanning.PingTimeout)),
		scanning.WithProber(scanning.NewProber(
			scanning.WithGreeting(cfg.Scanning.Greeting),
			scanning.WithBannerBufferSize(cfg.Scanning.BannerBufferSize),
		)),
		scanning.WithMaxWorkers(cfg.Scanning.MaxWorkers),
	}
	return scanning.NewCoordinator(append(base, opts...)...)
}
