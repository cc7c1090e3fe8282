package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"webscout/internal/domain"
)

// reservedPrefixes are the address blocks a fetch must never reach:
// RFC 1918, loopback, link-local, "this network" and IPv6 ULA.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Dotted hosts that net.ParseIP rejects, such as "127.1", are still caught
// by their textual prefix.
var (
	privateHostPrefixes = []string{"127.", "10.", "192.168."}
	private172Host      = regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[01])\.`)
)

func blocked(reason string) error {
	return domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked, reason)
}

// ValidateURL reports whether rawURL is an http(s) URL whose host is not
// loopback or on a private network. It never performs network I/O.
func ValidateURL(rawURL string) error {
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return blocked("only http and https URLs are allowed")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return blocked(fmt.Sprintf("unparseable URL: %v", err))
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "":
		return blocked("URL has no host")
	case IsBlockedHost(host):
		return blocked(fmt.Sprintf("host %s is loopback or private", host))
	}
	if addr, err := netip.ParseAddr(host); err == nil && IsPrivateAddr(addr) {
		return blocked(fmt.Sprintf("address %s is in a reserved range", addr))
	}
	return nil
}

// IsBlockedHost applies the textual host rules: localhost and the
// 127/8, 10/8, 192.168/16 and 172.16/12 prefixes.
func IsBlockedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	for _, p := range privateHostPrefixes {
		if strings.HasPrefix(host, p) {
			return true
		}
	}
	return private172Host.MatchString(host)
}

// IsPrivateAddr reports whether addr lies in a reserved block. IPv4-mapped
// IPv6 addresses are checked as IPv4.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPrivateIP is IsPrivateAddr for net.IP values.
func IsPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	return ok && IsPrivateAddr(addr)
}

// safeDialer resolves a host once, refuses it if any address is reserved and
// then dials the first address directly so no second lookup can rebind it.
type safeDialer struct {
	resolver *net.Resolver
	dialer   *net.Dialer
}

func (d *safeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	const op = "SSRFSafeTransport.Dial"

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("split dial address %q: %w", address, err)
	}
	addrs, err := d.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, domain.NewDomainError(op, err, "resolve "+host)
	}
	if len(addrs) == 0 {
		return nil, domain.NewDomainError(op, fmt.Errorf("no addresses for %s", host), host)
	}
	for _, a := range addrs {
		if IsPrivateAddr(a) {
			return nil, domain.NewDomainError(op, domain.ErrSSRFBlocked,
				fmt.Sprintf("%s resolves to reserved address %s", host, a))
		}
	}
	return d.dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].Unmap().String(), port))
}

// NewSSRFSafeTransport returns a transport whose dials re-check every
// resolved address, closing the gap between URL validation and DNS
// resolution. It never uses a proxy, so the dialed address is always the
// target's own.
func NewSSRFSafeTransport() *http.Transport {
	d := &safeDialer{
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
	}
	return &http.Transport{
		DialContext:           d.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
