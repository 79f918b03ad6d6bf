package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first public address of the given family
// assigned to the named interfaces.
// If no interfaces are named then all interfaces are searched.
// Loopback, link-local and private addresses are skipped.
func InterfaceResolver(version IPVersion, iface ...string) Resolver {
	return interfaceResolver{version: version, ifaces: iface, addrs: interfaceAddrs}
}

type interfaceResolver struct {
	version IPVersion
	ifaces  []string
	addrs   func(name string) ([]net.Addr, error)
}

// interfaceAddrs lists the addresses of the named interface, or of all interfaces for an empty name.
func interfaceAddrs(name string) ([]net.Addr, error) {
	if name == "" {
		return net.InterfaceAddrs()
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("error getting interface %s by name: %w", name, err)
	}
	return iface.Addrs()
}

func (r interfaceResolver) Resolve(ctx context.Context) ([]netip.Addr, error) {
	names := r.ifaces
	if len(names) == 0 {
		names = []string{""}
	}
	var errs []error
	for _, name := range names {
		a, err := r.addrs(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %q: %w", name, err))
			continue
		}
		// addr: ip+net:192.168.86.253/24
		// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
		// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
		for _, addr := range a {
			prefix, err := netip.ParsePrefix(addr.String())
			if err != nil {
				errs = append(errs, fmt.Errorf("error parsing local ip %s for interface %q: %w", addr.String(), name, err))
				continue
			}
			ip := prefix.Addr().Unmap()
			if !isPublic(ip) || !r.version.matches(ip) {
				continue
			}
			return []netip.Addr{ip}, nil
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no public %s address found on local interfaces", r.version)
	}
	return nil, fmt.Errorf("no public %s address found on local interfaces: %w", r.version, errors.Join(errs...))
}

func isPublic(ip netip.Addr) bool {
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}
