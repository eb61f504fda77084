package resolver

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
)

// startDNSServer serves a tiny fixed zone on a loopback UDP port.
func startDNSServer(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch {
		case q.Name == "scanme.test." && q.Qtype == dns.TypeA:
			rr, _ := dns.NewRR("scanme.test. 60 IN A 192.0.2.10")
			m.Answer = append(m.Answer, rr)
		case q.Name == "v6only.test." && q.Qtype == dns.TypeAAAA:
			rr, _ := dns.NewRR("v6only.test. 60 IN AAAA 2001:db8::1")
			m.Answer = append(m.Answer, rr)
		case q.Name == "missing.test.":
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSResolve(t *testing.T) {
	addr := startDNSServer(t)
	r := NewDNS(addr, time.Second)

	tests := []struct {
		name    string
		host    string
		want    string
		wantErr bool
	}{
		{"a record", "scanme.test", "192.0.2.10", false},
		{"aaaa fallback", "v6only.test", "2001:db8::1", false},
		{"nxdomain", "missing.test", "", true},
		{"no records", "empty.test", "", true},
		{"ipv4 literal", "10.1.2.3", "10.1.2.3", false},
		{"bracketed ipv6 literal", "[::1]", "::1", false},
		{"empty", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.host)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeResolutionFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDNSDefaultPort(t *testing.T) {
	r := NewDNS("9.9.9.9", time.Second)
	assert.Equal(t, "9.9.9.9:53", r.server)
}

func TestSystemResolve(t *testing.T) {
	tests := []struct {
		name    string
		ips     []net.IP
		err     error
		want    string
		wantErr bool
	}{
		{"prefers ipv4", []net.IP{net.ParseIP("2001:db8::5"), net.ParseIP("198.51.100.7")}, nil, "198.51.100.7", false},
		{"ipv6 only", []net.IP{net.ParseIP("2001:db8::5")}, nil, "2001:db8::5", false},
		{"lookup error", nil, fmt.Errorf("no such host"), "", true},
		{"no addresses", nil, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &System{lookup: func(context.Context, string, string) ([]net.IP, error) {
				return tt.ips, tt.err
			}}
			got, err := s.Resolve(context.Background(), "host.example")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeResolutionFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSystemResolveLiteralSkipsLookup(t *testing.T) {
	s := &System{lookup: func(context.Context, string, string) ([]net.IP, error) {
		t.Fatal("lookup should not be called for literals")
		return nil, nil
	}}
	got, err := s.Resolve(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", got)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Resolver
	assert.IsType(t, &System{}, FromConfig(cfg))

	cfg.Mode = "dns"
	assert.IsType(t, &DNS{}, FromConfig(cfg))
}
