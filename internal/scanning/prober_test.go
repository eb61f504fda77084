package scanning

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestProbeOpenWithBanner(t *testing.T) {
	addr, greetings := startServer(t, []byte("  SSH-2.0-OpenSSH_9.6\r\n"))
	host, port := splitAddr(t, addr)

	res := NewProber().Probe(context.Background(), host, port, 2*time.Second)

	assert.True(t, res.Open)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", res.Banner)
	assert.Equal(t, BannerOK, res.BannerFailure)
	assert.Equal(t, FailureNone, res.Failure)
	assert.Equal(t, DefaultGreeting, <-greetings)
}

func TestProbeOpenWithoutBanner(t *testing.T) {
	addr, _ := startServer(t, nil)
	host, port := splitAddr(t, addr)

	res := NewProber().Probe(context.Background(), host, port, 2*time.Second)

	assert.True(t, res.Open)
	assert.Equal(t, NoBanner, res.Banner)
	assert.NotEqual(t, BannerOK, res.BannerFailure)
}

func TestProbeWhitespaceBannerIsNoBanner(t *testing.T) {
	addr, _ := startServer(t, []byte(" \r\n\t "))
	host, port := splitAddr(t, addr)

	res := NewProber().Probe(context.Background(), host, port, 2*time.Second)

	assert.True(t, res.Open)
	assert.Equal(t, NoBanner, res.Banner)
	assert.Equal(t, BannerEmpty, res.BannerFailure)
}

func TestProbeSilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	host, port := splitAddr(t, ln.Addr().String())
	start := time.Now()
	res := NewProber().Probe(context.Background(), host, port, 200*time.Millisecond)

	assert.True(t, res.Open)
	assert.Equal(t, NoBanner, res.Banner)
	assert.Equal(t, BannerTimeout, res.BannerFailure)
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(time.Second):
	}
}

func TestProbeCustomGreetingAndBufferSize(t *testing.T) {
	addr, greetings := startServer(t, []byte("0123456789ABCDEF"))
	host, port := splitAddr(t, addr)

	p := NewProber(WithGreeting("PING\n"), WithBannerBufferSize(4))
	res := p.Probe(context.Background(), host, port, 2*time.Second)

	assert.True(t, res.Open)
	assert.Equal(t, "0123", res.Banner)
	assert.Equal(t, "PING\n", <-greetings)
}

func TestProbeRefused(t *testing.T) {
	d := newFakeDialer()
	res := NewProber(WithDialer(d)).Probe(context.Background(), "10.0.0.1", 81, time.Second)

	assert.False(t, res.Open)
	assert.Equal(t, FailureRefused, res.Failure)
	assert.Error(t, res.Err)
	assert.Equal(t, map[int]int{81: 1}, d.dialCounts(), "never retried")
}

func TestDecodeBanner(t *testing.T) {
	assert.Equal(t, "hello", decodeBanner([]byte("\r\n hello \n")))
	assert.Equal(t, "", decodeBanner([]byte("   ")))

	got := decodeBanner([]byte{'o', 'k', 0xff, 0xfe, '!'})
	assert.True(t, strings.HasPrefix(got, "ok"))
	assert.Contains(t, got, "�")
	assert.True(t, strings.HasSuffix(got, "!"))
}

func TestClassifyDialError(t *testing.T) {
	live := context.Background()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	opErr := func(err error) error {
		return &net.OpError{Op: "dial", Net: "tcp", Err: err}
	}

	tests := []struct {
		name   string
		parent context.Context
		err    error
		want   ProbeFailure
	}{
		{"refused", live, opErr(os.NewSyscallError("connect", syscall.ECONNREFUSED)), FailureRefused},
		{"reset", live, opErr(os.NewSyscallError("read", syscall.ECONNRESET)), FailureReset},
		{"host unreachable", live, opErr(os.NewSyscallError("connect", syscall.EHOSTUNREACH)), FailureUnreachable},
		{"net unreachable", live, opErr(os.NewSyscallError("connect", syscall.ENETUNREACH)), FailureUnreachable},
		{"net timeout", live, opErr(timeoutError{}), FailureTimeout},
		{"deadline", live, opErr(context.DeadlineExceeded), FailureTimeout},
		{"parent canceled", canceled, opErr(context.DeadlineExceeded), FailureCanceled},
		{"canceled error", live, opErr(context.Canceled), FailureCanceled},
		{"other", live, errors.New("weird"), FailureOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDialError(tt.parent, tt.err))
		})
	}
}
