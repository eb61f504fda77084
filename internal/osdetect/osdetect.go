// Package osdetect guesses a target's operating system family from the TTL
// of a single ICMP echo reply obtained through the platform ping utility.
package osdetect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/anstrom/portsweep/internal/logging"
)

//go:generate mockgen -destination=../mocks/mock_pinger.go -package=mocks github.com/anstrom/portsweep/internal/osdetect Pinger

// OSGuess is the coarse operating system family of a target.
type OSGuess string

const (
	OSLinuxUnix OSGuess = "Linux/Unix"
	OSWindows   OSGuess = "Windows"
	OSUnknown   OSGuess = "Unknown"
)

// Failure describes why a fingerprint produced Unknown.
type Failure string

const (
	FailureNone    Failure = ""
	FailureNoReply Failure = "no_reply"
	FailureParse   Failure = "parse"
	FailureExec    Failure = "exec"
)

const (
	// DefaultTimeout bounds the single echo request.
	DefaultTimeout = 2 * time.Second

	linuxMaxTTL   = 64
	windowsMaxTTL = 128
)

var ttlPattern = regexp.MustCompile(`(?i)ttl[=:]\s*(\d+)`)

// Detection is the full outcome of one fingerprint attempt.
type Detection struct {
	Guess   OSGuess
	TTL     int
	Failure Failure
	Err     error
}

// Pinger sends one echo request and returns the utility's raw output.
type Pinger interface {
	Ping(ctx context.Context, ip string, timeout time.Duration) (string, error)
}

// ExecPinger runs the platform ping binary.
type ExecPinger struct {
	// Binary defaults to "ping".
	Binary string
	// GOOS selects the flag dialect; defaults to runtime.GOOS.
	GOOS string
}

// Args returns the command line arguments for one echo request.
// Windows takes the wait in milliseconds. The BSD family reads -W as
// milliseconds too, so there the overall -t (or -w) limit in seconds is
// used instead.
func (p ExecPinger) Args(ip string, timeout time.Duration) []string {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), ip}
	}

	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	wait := strconv.Itoa(secs)
	switch goos {
	case "darwin", "ios", "freebsd", "dragonfly":
		return []string{"-c", "1", "-t", wait, ip}
	case "openbsd", "netbsd":
		return []string{"-c", "1", "-w", wait, ip}
	default:
		return []string{"-c", "1", "-W", wait, ip}
	}
}

// Ping implements Pinger.
func (p ExecPinger) Ping(ctx context.Context, ip string, timeout time.Duration) (string, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ping"
	}

	// Leave the utility a little room to report its own timeout.
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, p.Args(ip, timeout)...).CombinedOutput()
	return string(out), err
}

// Fingerprinter derives an OS guess from a ping reply TTL.
type Fingerprinter struct {
	pinger  Pinger
	timeout time.Duration
}

// New creates a Fingerprinter. A nil pinger uses ExecPinger and a
// non-positive timeout uses DefaultTimeout.
func New(pinger Pinger, timeout time.Duration) *Fingerprinter {
	if pinger == nil {
		pinger = ExecPinger{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fingerprinter{pinger: pinger, timeout: timeout}
}

// Fingerprint returns the OS guess for ip. It never fails; any problem
// yields OSUnknown.
func (f *Fingerprinter) Fingerprint(ctx context.Context, ip string) OSGuess {
	return f.Detect(ctx, ip).Guess
}

// Detect runs one echo request and reports the guess with its cause.
func (f *Fingerprinter) Detect(ctx context.Context, ip string) Detection {
	out, err := f.pinger.Ping(ctx, ip, f.timeout)

	ttl, parseErr := ParseTTL(out)
	if parseErr == nil {
		// Some ping builds exit non-zero even when a reply was printed.
		return Detection{Guess: Classify(ttl), TTL: ttl}
	}

	d := Detection{Guess: OSUnknown}
	switch {
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			d.Failure = FailureNoReply
		} else {
			d.Failure = FailureExec
		}
		d.Err = err
	default:
		d.Failure = FailureParse
		d.Err = parseErr
	}

	logging.Debug("OS fingerprint failed", "ip", ip, "failure", string(d.Failure), "error", d.Err)
	return d
}

// ParseTTL extracts the reply TTL from ping output.
func ParseTTL(output string) (int, error) {
	m := ttlPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("no ttl in ping output")
	}
	ttl, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", m[1], err)
	}
	return ttl, nil
}

// Classify maps a reply TTL to an OS family.
func Classify(ttl int) OSGuess {
	switch {
	case ttl <= 0:
		return OSUnknown
	case ttl <= linuxMaxTTL:
		return OSLinuxUnix
	case ttl <= windowsMaxTTL:
		return OSWindows
	default:
		return OSUnknown
	}
}
