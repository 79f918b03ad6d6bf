package ddns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
)

// ResolverConfig selects where the desired addresses come from.
// The first configured source wins: Static, then Router, then Interfaces, then public echo services.
type ResolverConfig struct {
	// Static addresses are used verbatim and disable discovery.
	Static []string
	// Router is the host of a FRITZ!Box to query for its external addresses.
	Router string
	// Interfaces are local interfaces whose public addresses are used.
	Interfaces []string
	// IPv4 and IPv6 select the address families to discover. At least one is required unless Static is set.
	IPv4, IPv6 bool
	// IPv4Services and IPv6Services override DefaultIPv4Services and DefaultIPv6Services.
	IPv4Services, IPv6Services []string

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// NewResolver builds the resolver described by cfg.
// The returned resolver never returns duplicates or unspecified addresses,
// and fails with ErrNoAddressFound rather than returning an empty result.
func NewResolver(cfg ResolverConfig) (Resolver, error) {
	var members []Resolver
	if len(cfg.Static) > 0 {
		r, err := StaticResolver(cfg.Static...)
		if err != nil {
			return nil, err
		}
		members = append(members, r)
	} else {
		var versions []IPVersion
		if cfg.IPv4 {
			versions = append(versions, IPv4)
		}
		if cfg.IPv6 {
			versions = append(versions, IPv6)
		}
		if len(versions) == 0 {
			return nil, errors.New("at least one of IPv4 and IPv6 must be enabled")
		}
		for _, v := range versions {
			switch {
			case cfg.Router != "":
				members = append(members, RouterResolver(cfg.Router, v))
			case len(cfg.Interfaces) > 0:
				members = append(members, InterfaceResolver(v, cfg.Interfaces...))
			default:
				services := cfg.IPv4Services
				if v == IPv6 {
					services = cfg.IPv6Services
				}
				if services == nil {
					services = DefaultIPv4Services
					if v == IPv6 {
						services = DefaultIPv6Services
					}
				}
				r, err := familyWebResolver(v, services...)
				if err != nil {
					return nil, fmt.Errorf("%s services: %w", v, err)
				}
				members = append(members, r)
			}
		}
	}

	j := &joinResolver{members: members, logger: discard}
	if cfg.Logger != nil {
		j.SetLogger(cfg.Logger)
	}
	if cfg.HTTPClient != nil {
		j.SetHTTPClient(cfg.HTTPClient)
	}
	return j, nil
}

// Join combines the addresses of several resolvers.
//
// The resolvers are queried one after another.
// A failing resolver contributes no addresses; Join only fails,
// with ErrNoAddressFound, when no resolver produced an address.
// Duplicate and unspecified addresses are dropped.
func Join(resolvers ...Resolver) Resolver {
	return &joinResolver{members: resolvers, logger: discard}
}

type joinResolver struct {
	members []Resolver
	logger  *slog.Logger
}

func (j *joinResolver) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = discard
	}
	j.logger = logger
	type setLogger interface {
		SetLogger(*slog.Logger)
	}
	for _, m := range j.members {
		if s, ok := m.(setLogger); ok {
			s.SetLogger(logger)
		}
	}
}

func (j *joinResolver) SetHTTPClient(c *http.Client) {
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	for _, m := range j.members {
		if s, ok := m.(setHTTPClient); ok {
			s.SetHTTPClient(c)
		}
	}
}

// Resolve implements ddns.Resolver.
func (j *joinResolver) Resolve(ctx context.Context) ([]netip.Addr, error) {
	var all []netip.Addr
	var errs []error
	for _, m := range j.members {
		addrs, err := m.Resolve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			j.logger.Warn("address lookup failed", "error", err)
			errs = append(errs, err)
			continue
		}
		all = append(all, addrs...)
	}
	addrs := dedupe(all)
	if len(addrs) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoAddressFound, errors.Join(errs...))
		}
		return nil, ErrNoAddressFound
	}
	j.logger.Debug("resolved addresses", "addresses", addrs)
	return addrs, nil
}
