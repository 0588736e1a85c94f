// Package network vets operator-configured upstream base URLs before the
// relay sends bearer-carrying requests to them.
package network

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"
)

// NormalizeUpstreamBase structurally validates one configured upstream base
// URL and returns it in canonical form with any trailing slash trimmed. The
// check is offline; ResolveHostIPs and FirstForbiddenIP cover DNS.
func NormalizeUpstreamBase(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("upstream base url is empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "parse upstream base url")
	}

	// every upstream call carries an account bearer token, so plaintext
	// transports are not an option
	if !strings.EqualFold(parsed.Scheme, "https") {
		return nil, errors.Errorf("upstream base url must use https, got %q", parsed.Scheme)
	}
	if parsed.User != nil {
		return nil, errors.New("upstream base url must not embed credentials")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return nil, errors.New("upstream base url must not carry a query or fragment")
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, errors.New("upstream base url has no host")
	}
	if isLocalHostname(host) {
		return nil, errors.Errorf("upstream host is not allowed: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil && isForbiddenIP(ip) {
		return nil, errors.Errorf("upstream host is a private or local address: %s", host)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed, nil
}

// ResolveHostIPs resolves the upstream host. Literal IP hosts skip DNS and
// come back as-is, so a failing resolver never masks a structural problem.
func ResolveHostIPs(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve upstream host: %s", host)
	}
	if len(addrs) == 0 {
		return nil, errors.Errorf("no addresses found for upstream host: %s", host)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// FirstForbiddenIP returns the first resolved address that is not publicly
// routable, or nil when every answer is public.
func FirstForbiddenIP(ips []net.IP) net.IP {
	for _, ip := range ips {
		if isForbiddenIP(ip) {
			return ip
		}
	}
	return nil
}

// isForbiddenIP reports whether ip is loopback, private, link-local,
// multicast, carrier-grade NAT, or otherwise non-public.
func isForbiddenIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsInterfaceLocalMulticast() {
		return true
	}
	return isCarrierGradeNAT(ip)
}

// isLocalHostname reports whether the host is a localhost-style name.
func isLocalHostname(host string) bool {
	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if lower == "localhost" {
		return true
	}
	return strings.HasSuffix(lower, ".localhost")
}

// isCarrierGradeNAT reports whether ip falls within 100.64.0.0/10.
func isCarrierGradeNAT(ip net.IP) bool {
	ipv4 := ip.To4()
	if ipv4 == nil {
		return false
	}
	return ipv4[0] == 100 && (ipv4[1]&0xC0) == 0x40
}
