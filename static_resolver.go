package ddns

import (
	"context"
	"net/netip"
)

// StaticResolver constructs a resolver that always returns the given addresses.
// The addresses are trusted verbatim; a literal that does not parse fails with ErrInvalidAddress.
func StaticResolver(addrs ...string) (Resolver, error) {
	var parsed []netip.Addr
	for _, s := range addrs {
		a, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, a)
	}
	return staticResolver(parsed), nil
}

type staticResolver []netip.Addr

func (s staticResolver) Resolve(context.Context) ([]netip.Addr, error) {
	out := make([]netip.Addr, len(s))
	copy(out, s)
	return out, nil
}
