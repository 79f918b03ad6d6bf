package ddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Public echo services, in the order they are tried.
var (
	DefaultIPv4Services = []string{
		"https://v4.ident.me",
		"https://api.ipify.org",
		"https://ipv4.icanhazip.com",
	}
	DefaultIPv6Services = []string{
		"https://v6.ident.me",
		"https://api6.ipify.org",
		"https://ipv6.icanhazip.com",
	}
)

// lookupTimeout bounds a single echo service request.
const lookupTimeout = 10 * time.Second

// WebResolver constructs a resolver which uses external web services to look up a "public" IP address.
//
// Each serviceURL must speak http and return status "200 OK",
// with a valid IPv4 or IPv6 address as the first line of the response body.
//
// The services are tried in order and the first valid response wins.
// Failed services are logged as warnings and skipped.
// Use one resolver per address family with family-specific services, e.g. https://v4.ident.me,
// and combine them with ddns.Join.
func WebResolver(serviceURL ...string) (Resolver, error) {
	var URLs []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		URLs = append(URLs, pu)
	}
	return &webResolver{serviceURLs: URLs, logger: discard}, nil
}

// familyWebResolver is WebResolver restricted to one address family.
// A service answering with an address of the other family counts as a failed service.
func familyWebResolver(version IPVersion, serviceURL ...string) (Resolver, error) {
	r, err := WebResolver(serviceURL...)
	if err != nil {
		return nil, err
	}
	wr := r.(*webResolver)
	wr.version = version
	return wr, nil
}

type webResolver struct {
	httpClient  *http.Client
	logger      *slog.Logger
	serviceURLs []*url.URL
	// version is zero when any family is accepted
	version IPVersion
}

func (wr *webResolver) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = discard
	}
	wr.logger = logger
}

func (wr *webResolver) SetHTTPClient(c *http.Client) {
	wr.httpClient = c
}

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) ([]netip.Addr, error) {
	if len(wr.serviceURLs) == 0 {
		return nil, errors.New("no external IP lookup services were provided")
	}

	var errs []error
	for _, u := range wr.serviceURLs {
		ip, err := wr.lookup(ctx, u)
		if err == nil {
			return []netip.Addr{ip}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		wr.logger.Warn("failed to retrieve IP address", "service", u.String(), "error", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no IP lookup service responded: %w", errors.Join(errs...))
}

func (wr *webResolver) lookup(ctx context.Context, url *url.URL) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error reaching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	scanner := bufio.NewReader(resp.Body)
	ipstring, _ := scanner.ReadString('\n')
	ip, err := parseAddr(strings.TrimSpace(ipstring))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	if wr.version != 0 && !wr.version.matches(ip) {
		return netip.Addr{}, fmt.Errorf("%w: %s is not an %s address", ErrInvalidAddress, ip, wr.version)
	}
	return ip, nil
}
