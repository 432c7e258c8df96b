package scope

import (
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Guard evaluates targets against a Scope. It has no state beyond the Scope and no
// side effects.
type Guard struct {
	scope Scope
}

// NewGuard returns a Guard for s.
func NewGuard(s Scope) Guard { return Guard{scope: s} }

// Scope returns the scope the guard enforces.
func (g Guard) Scope() Scope { return g.scope }

// IsInScope reports whether target may be scanned.
//
// An IP address inside a configured range is always in scope. Otherwise a target
// containing "." is in scope only when an authorized domain is a substring of it.
// Targets without "." are in scope unless the scope was built WithStrictHosts.
func (g Guard) IsInScope(target string) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return false
	}

	if addr, ok := hostAddr(target); ok && g.inRanges(addr) {
		return true
	}

	if strings.Contains(target, ".") {
		for _, d := range g.scope.domains {
			if strings.Contains(target, d) {
				return true
			}
		}
		return false
	}

	return !g.scope.strictHosts
}

func (g Guard) inRanges(addr netip.Addr) bool {
	for _, p := range g.scope.ipRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// hostAddr extracts an IP address from a bare address, host:port, or URL target.
func hostAddr(target string) (netip.Addr, bool) {
	host := target
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return netip.Addr{}, false
		}
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
