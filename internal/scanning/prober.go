package scanning

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/text/encoding/unicode"
)

const (
	// DefaultGreeting is written after connect to coax a banner out of
	// services that wait for the client to speak first.
	DefaultGreeting = "Hello\r\n"

	// DefaultBannerBufferSize is the maximum number of banner bytes read.
	DefaultBannerBufferSize = 1024
)

// ProbeFailure classifies a failed connection attempt.
type ProbeFailure string

const (
	FailureNone        ProbeFailure = ""
	FailureTimeout     ProbeFailure = "timeout"
	FailureRefused     ProbeFailure = "refused"
	FailureReset       ProbeFailure = "reset"
	FailureUnreachable ProbeFailure = "unreachable"
	FailureCanceled    ProbeFailure = "canceled"
	FailureOther       ProbeFailure = "other"
)

// BannerFailure classifies why an open port produced NoBanner.
type BannerFailure string

const (
	BannerOK      BannerFailure = ""
	BannerWrite   BannerFailure = "write"
	BannerRead    BannerFailure = "read"
	BannerTimeout BannerFailure = "timeout"
	BannerEmpty   BannerFailure = "empty"
)

// ProbeResult is the outcome of probing one port.
type ProbeResult struct {
	Port          int
	Open          bool
	Banner        string
	Failure       ProbeFailure
	BannerFailure BannerFailure
	Err           error
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober performs a TCP connect and banner grab against one port.
type Prober struct {
	dialer     Dialer
	greeting   []byte
	bufferSize int
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) ProberOption {
	return func(p *Prober) {
		p.dialer = d
	}
}

// WithGreeting sets the payload sent before reading the banner.
// An empty greeting skips the write.
func WithGreeting(greeting string) ProberOption {
	return func(p *Prober) {
		p.greeting = []byte(greeting)
	}
}

// WithBannerBufferSize sets the maximum banner size.
func WithBannerBufferSize(n int) ProberOption {
	return func(p *Prober) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

// NewProber creates a Prober with the default greeting and buffer size.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		dialer:     &net.Dialer{},
		greeting:   []byte(DefaultGreeting),
		bufferSize: DefaultBannerBufferSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe connects to ip:port within timeout. Failures are reported on the
// result rather than as errors and are never retried.
func (p *Prober) Probe(ctx context.Context, ip string, port int, timeout time.Duration) ProbeResult {
	result := ProbeResult{Port: port}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		result.Failure = classifyDialError(ctx, err)
		result.Err = err
		return result
	}
	defer conn.Close()

	result.Open = true
	result.Banner, result.BannerFailure = p.grabBanner(ctx, conn, timeout)
	return result
}

// grabBanner writes the greeting and reads one chunk. Write and read share
// a single deadline of timeout from now.
func (p *Prober) grabBanner(ctx context.Context, conn net.Conn, timeout time.Duration) (string, BannerFailure) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return NoBanner, BannerRead
	}

	// Unblock the read as soon as the scan is canceled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if len(p.greeting) > 0 {
		if _, err := conn.Write(p.greeting); err != nil {
			return NoBanner, BannerWrite
		}
	}

	buf := make([]byte, p.bufferSize)
	n, err := conn.Read(buf)
	if n == 0 {
		switch {
		case err == nil, stderrors.Is(err, io.EOF):
			return NoBanner, BannerEmpty
		case isTimeout(err):
			return NoBanner, BannerTimeout
		default:
			return NoBanner, BannerRead
		}
	}

	banner := decodeBanner(buf[:n])
	if banner == "" {
		return NoBanner, BannerEmpty
	}
	return banner, BannerOK
}

// decodeBanner decodes raw bytes as UTF-8, replacing invalid sequences with
// U+FFFD, and trims surrounding whitespace.
func decodeBanner(raw []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		out = []byte(strings.ToValidUTF8(string(raw), "\uFFFD"))
	}
	return strings.TrimSpace(string(out))
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// classifyDialError maps a dial error to a ProbeFailure. parent is the
// scan context, used to tell cancellation apart from the probe timeout.
func classifyDialError(parent context.Context, err error) ProbeFailure {
	switch {
	case parent.Err() != nil || stderrors.Is(err, context.Canceled):
		return FailureCanceled
	case isTimeout(err):
		return FailureTimeout
	case stderrors.Is(err, syscall.ECONNREFUSED):
		return FailureRefused
	case stderrors.Is(err, syscall.ECONNRESET):
		return FailureReset
	case stderrors.Is(err, syscall.EHOSTUNREACH), stderrors.Is(err, syscall.ENETUNREACH):
		return FailureUnreachable
	default:
		return FailureOther
	}
}
