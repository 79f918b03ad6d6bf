package ddns

import (
	"fmt"
	"net/netip"
)

// IPVersion selects an address family.
type IPVersion int

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

func (v IPVersion) String() string {
	return fmt.Sprintf("IPv%d", int(v))
}

func (v IPVersion) matches(a netip.Addr) bool {
	a = a.Unmap()
	switch v {
	case IPv4:
		return a.Is4()
	case IPv6:
		return a.Is6()
	}
	return false
}

func recordType(a netip.Addr) string {
	a = a.Unmap()
	if a.Is4() {
		return TypeA
	}
	if a.Is6() {
		return TypeAAAA
	}
	panic("unknown ip configuration")
}

// exploded returns the canonical textual form used for record content,
// e.g. "0000:0000:0000:0000:0000:0000:0000:0001" for ::1.
func exploded(a netip.Addr) string {
	return a.Unmap().StringExpanded()
}

// sameContent reports whether record content denotes a.
func sameContent(content string, a netip.Addr) bool {
	if content == exploded(a) {
		return true
	}
	c, err := netip.ParseAddr(content)
	if err != nil {
		return false
	}
	return c.Unmap() == a.Unmap()
}

// parseAddr parses a discovery result or a static address.
func parseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w %q: %w", ErrInvalidAddress, s, err)
	}
	return a.Unmap(), nil
}

// dedupe removes duplicates and unspecified addresses, keeping the first occurrence order.
func dedupe(addrs []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]bool, len(addrs))
	var out []netip.Addr
	for _, a := range addrs {
		a = a.Unmap()
		if !a.IsValid() || a.IsUnspecified() || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
