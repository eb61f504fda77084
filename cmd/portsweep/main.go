// Command portsweep is a concurrent TCP port scanner with banner grabbing,
// TTL based OS guessing and an optional HTTP API.
package main

import "github.com/anstrom/portsweep/cmd/cli"

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
