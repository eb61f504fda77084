package helpers

import (
	"context"
	"net"
	"testing"
	"time"
)

const defaultTestTimeout = 30 * time.Second

// BannerServer is a loopback TCP listener that writes a fixed banner to
// every connection. An empty banner accepts and stays silent.
type BannerServer struct {
	Port     int
	listener net.Listener
}

// StartBannerServer listens on a free loopback port until the test ends.
func StartBannerServer(t testing.TB, banner string) *BannerServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &BannerServer{Port: l.Addr().(*net.TCPAddr).Port, listener: l}
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if banner != "" {
					_, _ = c.Write([]byte(banner))
				}
				// hold the connection until the client gives up
				_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
				buf := make([]byte, 64)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return s
}

// GetAvailablePort returns a loopback port with nothing listening on it.
func GetAvailablePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()

	return l.Addr().(*net.TCPAddr).Port, nil
}

// TestContext provides a context with reasonable timeout for tests
func TestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTestTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// SkipIfShort skips a test if running with -short flag
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
