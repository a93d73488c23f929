// Package security builds the HTTP client used for calls to the payment and
// image analysis providers.
//
// Both provider base URLs are configurable (STRIPE_BASE_URL, GEMINI_ENDPOINT),
// so outside local mode every connection is checked at dial time: a host that
// resolves into a private, loopback, link-local or metadata range is refused.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const dnsTimeout = 2 * time.Second

var (
	// ErrBlockedAddress is returned when a provider host resolves into a
	// blocked range.
	ErrBlockedAddress = errors.New("security: provider address is blocked")
	// ErrTooManyRedirects is returned once the redirect limit is reached.
	ErrTooManyRedirects = errors.New("security: too many redirects")
)

var blockedNets = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16", // includes the instance metadata service
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("security: bad CIDR %q: %v", c, err))
		}
		out = append(out, n)
	}
	return out
}

// IsBlockedIP reports whether ip falls in a blocked range.
func IsBlockedIP(ip net.IP) bool {
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard resolves and checks provider hosts before a connection is made.
type Guard struct {
	Resolver Resolver
	Dialer   *net.Dialer
}

func (g *Guard) resolver() Resolver {
	if g.Resolver != nil {
		return g.Resolver
	}
	return net.DefaultResolver
}

// CheckHost resolves host and fails if any of its addresses is blocked.
// It returns the first address on success.
func (g *Guard) CheckHost(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
		}
		return ip, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	addrs, err := g.resolver().LookupIPAddr(dnsCtx, host)
	if err != nil {
		return nil, fmt.Errorf("security: resolving %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("security: %q resolved to no addresses", host)
	}
	// All addresses are checked so a rebinding answer cannot mix in a private one.
	for _, a := range addrs {
		if IsBlockedIP(a.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlockedAddress, a.IP, host)
		}
	}
	return addrs[0].IP, nil
}

// DialContext dials the checked address rather than re-resolving the name.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("security: invalid address %q: %w", addr, err)
	}
	ip, err := g.CheckHost(ctx, host)
	if err != nil {
		return nil, err
	}
	d := g.Dialer
	if d == nil {
		d = &net.Dialer{Timeout: 10 * time.Second}
	}
	return d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
}

// CheckRedirect returns an http.Client CheckRedirect hook that limits the
// redirect count and applies the same host check to each hop.
func (g *Guard) CheckRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		_, err := g.CheckHost(req.Context(), req.URL.Hostname())
		return err
	}
}

// NewOutboundClient returns an http.Client whose connections pass through g.
func NewOutboundClient(g *Guard, timeout time.Duration, maxRedirects int) *http.Client {
	if g == nil {
		g = &Guard{}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.DialContext
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}
