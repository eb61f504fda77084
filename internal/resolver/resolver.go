// Package resolver turns a scan target (hostname or IP literal) into the
// single IP address the scanner probes.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
)

//go:generate mockgen -destination=../mocks/mock_resolver.go -package=mocks github.com/anstrom/portsweep/internal/resolver Resolver

// Resolver resolves a target to one IP address. IPv4 is preferred.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// FromConfig builds the resolver selected by cfg.Mode.
func FromConfig(cfg config.ResolverConfig) Resolver {
	if cfg.Mode == "dns" {
		return NewDNS(cfg.Nameserver, cfg.Timeout)
	}
	return NewSystem()
}

// literal returns the normalized form of host if it is an IP literal.
func literal(host string) (string, bool) {
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil {
		return "", false
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String(), true
	}
	return ip.String(), true
}

// pick returns the first IPv4 address, or the first address when the host
// only has IPv6 records.
func pick(ips []net.IP) (string, bool) {
	var firstV6 net.IP
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), true
		}
		if firstV6 == nil {
			firstV6 = ip
		}
	}
	if firstV6 != nil {
		return firstV6.String(), true
	}
	return "", false
}

// System resolves through the host's configured resolver.
type System struct {
	lookup func(ctx context.Context, network, host string) ([]net.IP, error)
}

// NewSystem creates a resolver backed by net.DefaultResolver.
func NewSystem() *System {
	return &System{lookup: net.DefaultResolver.LookupIP}
}

// Resolve implements Resolver.
func (s *System) Resolve(ctx context.Context, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.ErrResolution(host, fmt.Errorf("empty host"))
	}
	if ip, ok := literal(host); ok {
		return ip, nil
	}

	ips, err := s.lookup(ctx, "ip", host)
	if err != nil {
		return "", errors.ErrResolution(host, err)
	}
	ip, ok := pick(ips)
	if !ok {
		return "", errors.ErrResolution(host, fmt.Errorf("no addresses found"))
	}
	return ip, nil
}

// DNS queries one nameserver directly for A and then AAAA records.
type DNS struct {
	server string
	client *dns.Client
}

// NewDNS creates a resolver querying server ("host:port", port 53 assumed
// when omitted).
func NewDNS(server string, timeout time.Duration) *DNS {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNS{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Resolve implements Resolver.
func (d *DNS) Resolve(ctx context.Context, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.ErrResolution(host, fmt.Errorf("empty host"))
	}
	if ip, ok := literal(host); ok {
		return ip, nil
	}

	var ips []net.IP
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := d.query(ctx, host, qtype)
		if err != nil {
			return "", errors.ErrResolution(host, err)
		}
		ips = append(ips, found...)
		if len(ips) > 0 {
			break
		}
	}

	ip, ok := pick(ips)
	if !ok {
		return "", errors.ErrResolution(host, fmt.Errorf("no A or AAAA records"))
	}
	return ip, nil
}

func (d *DNS) query(ctx context.Context, host string, qtype uint16) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := d.client.ExchangeContext(ctx, msg, d.server)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dns.TypeToString[qtype], err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s: %s", dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}

	var ips []net.IP
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			ips = append(ips, rec.A)
		case *dns.AAAA:
			ips = append(ips, rec.AAAA)
		}
	}
	return ips, nil
}
