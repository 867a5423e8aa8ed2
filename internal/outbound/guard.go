// Package outbound provides the shared HTTP transport for every feed adapter
// and the TAXII client: bounded retries with exponential backoff, manual
// redirect following, and an SSRF guard applied to every hop.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Guard errors. A guard rejection is a security-policy violation: it is never
// retried and never downgraded to a warning.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrCredentialsInURL = errors.New("credentials in URL are not allowed")
	ErrSchemeNotAllowed = errors.New("only http(s) URLs are allowed")
	ErrInsecureHTTP     = errors.New("insecure http:// URLs are not allowed")
	ErrHostNotAllowed   = errors.New("hostname is not in the allowed list")
	ErrLocalHostname    = errors.New("local/internal hostnames are not allowed")
	ErrPrivateAddress   = errors.New("private or local IP addresses are not allowed")
	ErrUnresolvable     = errors.New("hostname could not be resolved")
)

// GuardPolicy configures the outbound-URL safety check.
type GuardPolicy struct {
	// AllowInsecureHTTP permits http:// targets. Development only.
	AllowInsecureHTTP bool

	// AllowedHosts, when non-empty, restricts targets to these hostnames
	// and their subdomains.
	AllowedHosts []string

	// ResolveDNS resolves hostnames and checks every returned address, not
	// just the literal string, to defeat DNS rebinding. Defaults to true;
	// only tests disable it.
	ResolveDNS *bool

	// Resolver overrides the system resolver in tests.
	Resolver interface {
		LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	}
}

func (p GuardPolicy) resolveDNS() bool {
	return p.ResolveDNS == nil || *p.ResolveDNS
}

func (p GuardPolicy) resolver() interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
} {
	if p.Resolver != nil {
		return p.Resolver
	}
	return net.DefaultResolver
}

var privateV4Blocks = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

var privateV6Blocks = mustParseCIDRs(
	"::1/128",
	"::/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("bad builtin CIDR %q: %v", cidr, err))
		}
		nets = append(nets, block)
	}
	return nets
}

// isPrivateIP reports whether ip falls in a loopback, link-local, private,
// reserved, multicast, or documentation range. Unparseable addresses count
// as private.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}

	if v4 := ip.To4(); v4 != nil {
		if v4.Equal(net.IPv4bcast) {
			return true
		}
		for _, block := range privateV4Blocks {
			if block.Contains(v4) {
				return true
			}
		}
		return false
	}

	for _, block := range privateV6Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func matchesAllowedHosts(hostname string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if hostname == entry || strings.HasSuffix(hostname, "."+entry) {
			return true
		}
	}
	return false
}

// ValidateOutboundURL runs the full outbound-safety check against rawURL and
// returns the parsed URL when it passes. The check rejects credentials in the
// URL, non-http(s) schemes, plain http without the insecure override,
// localhost-style hostnames, hosts outside the allow-list, and any target
// whose literal or DNS-resolved address is private, loopback, or link-local.
func ValidateOutboundURL(ctx context.Context, rawURL string, policy GuardPolicy) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if parsed.User != nil {
		return nil, ErrCredentialsInURL
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !policy.AllowInsecureHTTP {
			return nil, ErrInsecureHTTP
		}
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrSchemeNotAllowed, parsed.Scheme)
	}

	hostname := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if hostname == "" {
		return nil, fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	if hostname == "localhost" ||
		strings.HasSuffix(hostname, ".localhost") ||
		strings.HasSuffix(hostname, ".local") ||
		strings.HasSuffix(hostname, ".internal") {
		return nil, fmt.Errorf("%w: %s", ErrLocalHostname, hostname)
	}

	if !matchesAllowedHosts(hostname, policy.AllowedHosts) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, hostname)
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, hostname)
		}
		return parsed, nil
	}

	if policy.resolveDNS() {
		addrs, err := policy.resolver().LookupIPAddr(ctx, hostname)
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvable, hostname)
		}
		for _, addr := range addrs {
			if isPrivateIP(addr.IP) {
				return nil, fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, hostname, addr.IP)
			}
		}
	}

	return parsed, nil
}

// IsGuardError reports whether err was raised by the outbound-safety check.
// Guard errors are terminal: the transport never retries them.
func IsGuardError(err error) bool {
	for _, guardErr := range []error{
		ErrInvalidURL,
		ErrCredentialsInURL,
		ErrSchemeNotAllowed,
		ErrInsecureHTTP,
		ErrHostNotAllowed,
		ErrLocalHostname,
		ErrPrivateAddress,
		ErrUnresolvable,
	} {
		if errors.Is(err, guardErr) {
			return true
		}
	}
	return false
}
