// Package scope decides whether a scan target falls within the set of domains and
// address ranges a run is authorized to touch.
package scope

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Scope is the authorized target set for a run. It is immutable once built; callers
// only get copies of its contents.
type Scope struct {
	domains     []string
	ipRanges    []netip.Prefix
	strictHosts bool
}

// Option configures a Scope.
type Option func(*Scope)

// WithStrictHosts rejects targets that have no domain separator and are not covered by
// an IP range. Without it such targets (bare hostnames) are allowed.
func WithStrictHosts() Option { return func(s *Scope) { s.strictHosts = true } }

// New builds a Scope from authorized domain substrings and CIDR ranges. A bare IP in
// ipRanges is treated as a single-address prefix.
func New(domains, ipRanges []string, opts ...Option) (Scope, error) {
	s := Scope{domains: make([]string, 0, len(domains))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			s.domains = append(s.domains, d)
		}
	}

	for _, raw := range ipRanges {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := parsePrefix(raw)
		if err != nil {
			return Scope{}, fmt.Errorf("invalid ip range %q: %w", raw, err)
		}
		s.ipRanges = append(s.ipRanges, prefix)
	}

	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}

// MustNew is New for static scopes in tests and examples; it panics on bad ranges.
func MustNew(domains, ipRanges []string, opts ...Option) Scope {
	s, err := New(domains, ipRanges, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Domains returns a copy of the authorized domain substrings.
func (s Scope) Domains() []string { return slices.Clone(s.domains) }

// IPRanges returns the authorized ranges in CIDR notation.
func (s Scope) IPRanges() []string {
	out := make([]string, len(s.ipRanges))
	for i, p := range s.ipRanges {
		out[i] = p.String()
	}
	return out
}

// StrictHosts reports whether dotless targets are rejected.
func (s Scope) StrictHosts() bool { return s.strictHosts }

// String summarizes the scope for logs.
func (s Scope) String() string {
	return fmt.Sprintf("domains=%v ip_ranges=%v strict=%t", s.domains, s.IPRanges(), s.strictHosts)
}
