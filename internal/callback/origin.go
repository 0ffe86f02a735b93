package callback

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// OriginPolicy is the fixed set of addresses the provider sends callbacks from
type OriginPolicy struct {
	prefixes []netip.Prefix
}

// NewOriginPolicy parses single addresses and CIDR ranges. An empty policy
// admits nobody.
func NewOriginPolicy(entries []string) (*OriginPolicy, error) {
	p := &OriginPolicy{}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("callback: invalid origin range %q: %w", entry, err)
			}
			p.prefixes = append(p.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("callback: invalid origin address %q: %w", entry, err)
		}
		addr = addr.Unmap()
		p.prefixes = append(p.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return p, nil
}

// Allowed reports whether remote, an address with or without a port, is on the list
func (p *OriginPolicy) Allowed(remote string) bool {
	if p == nil {
		return false
	}
	host := strings.TrimSpace(remote)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Len reports the number of configured entries
func (p *OriginPolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.prefixes)
}
