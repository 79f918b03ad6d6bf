package ddns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// MinInterval is the shortest pause RunDaemon makes between passes.
const MinInterval = 1 * time.Minute

// New returns a DDNSClient that keeps the records of domain pointed at the resolved addresses.
//
// A record service must be registered with UsingPorkbun or UsingRecordService.
// Without UsingResolver the client discovers IPv4 and IPv6 addresses with public echo services.
// Without WithSubdomains only the bare domain is updated.
func New(domain string, options ...clientOption) (DDNSClient, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("ddns.New: domain cannot be empty")
	}
	c := &client{
		domain:     domain,
		subdomains: []string{Root},
		ttl:        DefaultTTL,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %w", i, err)
		}
	}

	if c.RecordService == nil {
		return nil, fmt.Errorf("ddns.New: no record service was registered and there is no default option - use ddns.UsingPorkbun or similar")
	}
	if c.Resolver == nil {
		r, err := NewResolver(ResolverConfig{IPv4: true, IPv6: true})
		if err != nil {
			return nil, fmt.Errorf("ddns.New: default resolver: %w", err)
		}
		c.Resolver = r
	}
	c.reconciler = NewReconciler(c.RecordService, nil)
	c.reconciler.SetTTL(c.ttl)

	// this lets us propagate the logger and http client to dependencies regardless of option order
	withLogger(c.logger)(c)
	withHTTPClient(c.httpClient)(c)
	if c.rateLimit > 0 {
		if p, ok := c.RecordService.(interface{ SetRateLimit(float64) }); ok {
			p.SetRateLimit(c.rateLimit)
		}
	}
	return c, nil
}

type clientOption func(*client) error

// UsingPorkbun registers the Porkbun API as the record service.
func UsingPorkbun(creds Credentials) clientOption {
	return func(c *client) (err error) {
		if c.RecordService, err = NewPorkbunClient(creds); err != nil {
			return fmt.Errorf("ddns.UsingPorkbun: error creating porkbun client: %w", err)
		}
		return nil
	}
}

// UsingRecordService registers a custom record service.
func UsingRecordService(svc RecordService) clientOption {
	return func(c *client) error {
		if svc == nil {
			return errors.New("record service cannot be nil")
		}
		c.RecordService = svc
		return nil
	}
}

// UsingResolver sets the resolver. A nil resolver selects the default.
func UsingResolver(resolver Resolver) clientOption {
	return func(c *client) error {
		c.Resolver = resolver
		return nil
	}
}

// UsingResolverConfig builds the resolver with NewResolver.
func UsingResolverConfig(cfg ResolverConfig) clientOption {
	return func(c *client) (err error) {
		if c.Resolver, err = NewResolver(cfg); err != nil {
			return fmt.Errorf("ddns.UsingResolverConfig: %w", err)
		}
		return nil
	}
}

// WithSubdomains sets the subdomains updated on every pass, in order.
// Use ddns.Root ("@") for the bare domain.
func WithSubdomains(subdomains ...string) clientOption {
	return func(c *client) error {
		if len(subdomains) == 0 {
			subdomains = []string{Root}
		}
		c.subdomains = subdomains
		return nil
	}
}

// WithTTL sets the TTL of created records.
func WithTTL(ttl int) clientOption {
	return func(c *client) error {
		if ttl < 0 {
			return fmt.Errorf("invalid TTL %d", ttl)
		}
		c.ttl = ttl
		return nil
	}
}

// WithRateLimit limits provider calls to perSecond requests per second, if the record service supports it.
func WithRateLimit(perSecond float64) clientOption {
	return func(c *client) error {
		c.rateLimit = perSecond
		return nil
	}
}

// WithLogger sets the logger of the client and its dependencies.
// The default is to discard log messages.
func WithLogger(logger *slog.Logger) clientOption {
	return func(c *client) error {
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient sets the HTTP client used by the resolver and the record service.
func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(c *client) error {
		c.httpClient = httpclient
		return nil
	}
}

func withLogger(logger *slog.Logger) clientOption {
	return func(c *client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		type setLogger interface {
			SetLogger(*slog.Logger)
		}
		if p, ok := c.RecordService.(setLogger); ok {
			p.SetLogger(logger)
		}
		if r, ok := c.Resolver.(setLogger); ok {
			r.SetLogger(logger)
		}
		c.reconciler.SetLogger(logger)
		return nil
	}
}

func withHTTPClient(httpclient *http.Client) clientOption {
	return func(c *client) error {
		if httpclient == nil {
			return nil
		}
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if p, ok := c.RecordService.(setHTTPClient); ok {
			p.SetHTTPClient(httpclient)
		}
		if r, ok := c.Resolver.(setHTTPClient); ok {
			r.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// DDNSClient updates DNS records for the configured domain.
type DDNSClient interface {
	// RunDDNS resolves the current addresses and reconciles every subdomain once.
	RunDDNS(ctx context.Context) error
	// PurgeDDNS deletes the A and AAAA records of every subdomain.
	PurgeDDNS(ctx context.Context) error
}

type client struct {
	Resolver
	RecordService
	reconciler *Reconciler
	logger     *slog.Logger
	httpClient *http.Client
	rateLimit  float64
	ttl        int
	domain     string
	subdomains []string
}

func (c *client) targets() []Target {
	base := NewTarget(c.domain, Root)
	targets := make([]Target, 0, len(c.subdomains))
	for _, s := range c.subdomains {
		targets = append(targets, base.WithSubdomain(s))
	}
	return targets
}

func (c *client) RunDDNS(ctx context.Context) error {
	logger := c.logger.With("run", uuid.NewString())

	newIPs, err := c.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("error getting IPs: %w", err)
	}
	newIPs = dedupe(newIPs)
	if len(newIPs) == 0 {
		return fmt.Errorf("error getting IPs: %w", ErrNoAddressFound)
	}
	logger.Info("got public IPs", "addresses", newIPs)

	rec := c.reconciler.withLogger(logger)
	var errs []error
	for _, t := range c.targets() {
		err := rec.Reconcile(ctx, t, newIPs)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("error updating %s: %w", t, err))
		// the remaining subdomains would fail the same way
		if errors.Is(err, ErrInvalidCredentials) || ctx.Err() != nil {
			break
		}
		logger.Error("update failed", "name", t.FQDN(), "error", err)
	}
	return errors.Join(errs...)
}

func (c *client) PurgeDDNS(ctx context.Context) error {
	logger := c.logger.With("run", uuid.NewString())
	rec := c.reconciler.withLogger(logger)
	for _, t := range c.targets() {
		if err := rec.Purge(ctx, t); err != nil {
			return fmt.Errorf("error purging %s: %w", t, err)
		}
	}
	return nil
}

// RunDaemon runs ddnsClient until ctx is done, pausing interval between passes.
//
// Passes never overlap. A failed pass is logged and retried after the next pause,
// except for ErrInvalidCredentials which is returned since retrying will not help.
// Intervals below MinInterval are raised to MinInterval.
//
// A nil logger selects the logger of clients created with New, or discards messages otherwise.
func RunDaemon(ctx context.Context, ddnsClient DDNSClient, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		if c, ok := ddnsClient.(*client); ok && c.logger != nil {
			logger = c.logger
		} else {
			logger = discard
		}
	}
	if interval < MinInterval {
		logger.Warn("interval is below the minimum, using the minimum", "requested", interval.String(), "interval", MinInterval.String())
		interval = MinInterval
	}
	for {
		err := ddnsClient.RunDDNS(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("ddns.RunDaemon: pass failed", "error", err)
		}

		logger.Info("sleeping", "interval", interval.String())
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
