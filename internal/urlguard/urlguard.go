// Package urlguard decides which URLs a browser session may load: http and
// https only, and, unless private networks are allowed, no host that is or
// resolves to a loopback, link-local or private address.
package urlguard

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrScheme is returned for a URL that is not http or https.
	ErrScheme = errors.New("urlguard: only http and https URLs may be loaded")

	// ErrPrivate is returned when a URL targets a private or loopback address.
	ErrPrivate = errors.New("urlguard: URL targets a private or loopback address")
)

var privateRanges = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"fc00::/7",
)

func mustCIDRs(specs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(specs))
	for _, s := range specs {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// Guard checks URLs before navigation.
type Guard struct {
	// AllowPrivate lets sessions load loopback and private hosts.
	AllowPrivate bool

	// Lookup resolves host names. Default: net.LookupHost.
	Lookup func(host string) ([]string, error)
}

// Check returns nil when rawURL may be loaded.
func (g Guard) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("urlguard: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("urlguard: URL has no host")
	}
	if g.AllowPrivate {
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return ErrPrivate
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivate(ip) {
			return ErrPrivate
		}
		return nil
	}

	lookup := g.Lookup
	if lookup == nil {
		lookup = net.LookupHost
	}
	addrs, err := lookup(host)
	if err != nil {
		// Unresolvable here means unresolvable for Chrome too; the
		// navigation fails on its own.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && IsPrivate(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivate, host, a)
		}
	}
	return nil
}

// IsPrivate reports loopback, link-local, unspecified and private addresses.
func IsPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
