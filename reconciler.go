package ddns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
)

// Reconciler converges the address records of a Target towards a set of addresses
// by deleting and creating records through a RecordService.
//
// Calls for the same domain are serialized and provider calls are made strictly one after another.
// A replaced record is always deleted before its successor is created.
type Reconciler struct {
	svc    RecordService
	logger *slog.Logger
	ttl    int
	locks  *domainLocks
}

// NewReconciler returns a Reconciler using svc.
// A nil logger discards log messages.
func NewReconciler(svc RecordService, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = discard
	}
	return &Reconciler{
		svc:    svc,
		logger: logger,
		ttl:    DefaultTTL,
		locks:  &domainLocks{},
	}
}

// SetLogger sets the logger used for subsequent calls.
func (r *Reconciler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = discard
	}
	r.logger = logger
}

// SetTTL sets the TTL of created records. Values below 1 select DefaultTTL.
func (r *Reconciler) SetTTL(ttl int) {
	if ttl < 1 {
		ttl = DefaultTTL
	}
	r.ttl = ttl
}

// withLogger returns a copy of r sharing its locks.
func (r *Reconciler) withLogger(logger *slog.Logger) *Reconciler {
	c := *r
	c.logger = logger
	return &c
}

// Reconcile makes the A and AAAA records of t match addrs.
//
// For every address, with the record type A or AAAA derived from its family:
//   - if t has no A, AAAA, ALIAS or CNAME record, a record is created;
//   - an ALIAS or CNAME record at t is deleted and replaced;
//   - a record of the same type with different content is deleted and replaced;
//   - a missing A or AAAA record next to an existing address record is created;
//   - a record of the same type with equal content is left alone.
//
// Records are listed again after every change.
// The first failing call aborts the remaining addresses.
func (r *Reconciler) Reconcile(ctx context.Context, t Target, addrs []netip.Addr) error {
	if r.svc == nil {
		return errors.New("ddns.Reconciler: no record service; construct with ddns.NewReconciler")
	}
	addrs = dedupe(addrs)
	if len(addrs) == 0 {
		return fmt.Errorf("reconcile %s: %w", t, ErrNoAddressFound)
	}
	defer r.locks.lock(t.Domain)()

	p := r.newPass(t)
	if err := p.refresh(ctx); err != nil {
		return fmt.Errorf("reconcile %s: %w", t, err)
	}
	for _, a := range addrs {
		if err := p.converge(ctx, a); err != nil {
			return fmt.Errorf("reconcile %s: %w", t, err)
		}
	}
	return nil
}

// Purge deletes every A and AAAA record of t without creating replacements.
func (r *Reconciler) Purge(ctx context.Context, t Target) error {
	if r.svc == nil {
		return errors.New("ddns.Reconciler: no record service; construct with ddns.NewReconciler")
	}
	defer r.locks.lock(t.Domain)()

	p := r.newPass(t)
	if err := p.refresh(ctx); err != nil {
		return fmt.Errorf("purge %s: %w", t, err)
	}
	found := false
	for _, rec := range p.named() {
		if rec.Type != TypeA && rec.Type != TypeAAAA {
			continue
		}
		found = true
		p.logger.Debug("deleting existing record", "name", rec.Name, "type", rec.Type, "content", rec.Content)
		if err := p.delete(ctx, rec); err != nil {
			return fmt.Errorf("purge %s: %w", t, err)
		}
	}
	if !found {
		p.logger.Info("no A or AAAA records found", "name", p.fqdn)
	}
	return nil
}

// pass is the state of one reconciliation of a single Target.
type pass struct {
	*Reconciler
	target  Target
	fqdn    string
	records []Record
}

func (r *Reconciler) newPass(t Target) *pass {
	return &pass{Reconciler: r, target: t, fqdn: t.FQDN()}
}

func (p *pass) converge(ctx context.Context, a netip.Addr) error {
	rt := recordType(a)
	if !p.hasName() {
		p.logger.Debug("creating new record", "name", p.fqdn, "type", rt, "content", exploded(a))
		return p.create(ctx, rt, a)
	}

	// the checks below are independent and all run against each record;
	// named() is a copy, so refreshes do not disturb the iteration.
	for _, rec := range p.named() {
		if rec.Type == TypeALIAS || rec.Type == TypeCNAME {
			p.logger.Debug("overwriting "+rec.Type+" record", "name", p.fqdn, "type", rt, "content", exploded(a))
			if err := p.replace(ctx, rec, rt, a); err != nil {
				return err
			}
		}
		if rec.Type == rt && !sameContent(rec.Content, a) {
			p.logger.Debug("updating existing record", "name", p.fqdn, "type", rt, "content", exploded(a))
			if err := p.replace(ctx, rec, rt, a); err != nil {
				return err
			}
		}
		if (rec.Type == TypeA || rec.Type == TypeAAAA) && !p.hasType(rt) {
			p.logger.Debug("creating missing record", "name", p.fqdn, "type", rt, "content", exploded(a))
			if err := p.create(ctx, rt, a); err != nil {
				return err
			}
		}
		if rec.Type == rt && sameContent(rec.Content, a) {
			p.logger.Info("record is up to date", "name", rec.Name, "type", rec.Type)
		}
	}
	return nil
}

// replace deletes rec and creates the wanted record unless an identical one already exists.
func (p *pass) replace(ctx context.Context, rec Record, rt string, a netip.Addr) error {
	if err := p.delete(ctx, rec); err != nil {
		return err
	}
	if p.hasRecord(rt, a) {
		p.logger.Debug("record already exists", "name", p.fqdn, "type", rt, "content", exploded(a))
		return nil
	}
	return p.create(ctx, rt, a)
}

func (p *pass) create(ctx context.Context, rt string, a netip.Addr) error {
	content := exploded(a)
	id, err := p.svc.CreateRecord(ctx, p.target.Domain, Record{
		Name:    p.target.RecordName(),
		Type:    rt,
		Content: content,
		TTL:     p.ttl,
	})
	if err != nil {
		return fmt.Errorf("creating %s record with content %s: %w", rt, content, classify(err, ErrRecordMutation))
	}
	p.logger.Info("created record", "name", p.fqdn, "type", rt, "content", content, "id", id)
	return p.refresh(ctx)
}

func (p *pass) delete(ctx context.Context, rec Record) error {
	if err := p.svc.DeleteRecord(ctx, p.target.Domain, rec.ID); err != nil {
		return fmt.Errorf("deleting %s record %s: %w", rec.Type, rec.ID, classify(err, ErrRecordMutation))
	}
	p.logger.Info("deleted record", "name", rec.Name, "type", rec.Type, "content", rec.Content, "id", rec.ID)
	return p.refresh(ctx)
}

func (p *pass) refresh(ctx context.Context) error {
	records, err := p.svc.ListRecords(ctx, p.target.Domain)
	if err != nil {
		return classify(err, ErrRecordFetch)
	}
	for i := range records {
		records[i].Name = strings.ToLower(strings.TrimSuffix(records[i].Name, "."))
		records[i].Type = strings.ToUpper(records[i].Type)
	}
	p.logger.Debug("fetched records", "domain", p.target.Domain, "count", len(records))
	p.records = records
	return nil
}

// named returns a copy of the records at the target name.
func (p *pass) named() []Record {
	var out []Record
	for _, rec := range p.records {
		if rec.Name == p.fqdn {
			out = append(out, rec)
		}
	}
	return out
}

// hasName reports whether the target name carries any address or alias record.
func (p *pass) hasName() bool {
	for _, rec := range p.records {
		if rec.Name != p.fqdn {
			continue
		}
		switch rec.Type {
		case TypeA, TypeAAAA, TypeALIAS, TypeCNAME:
			return true
		}
	}
	return false
}

func (p *pass) hasType(rt string) bool {
	for _, rec := range p.records {
		if rec.Name == p.fqdn && rec.Type == rt {
			return true
		}
	}
	return false
}

func (p *pass) hasRecord(rt string, a netip.Addr) bool {
	for _, rec := range p.records {
		if rec.Name == p.fqdn && rec.Type == rt && sameContent(rec.Content, a) {
			return true
		}
	}
	return false
}

type domainLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// lock locks domain and returns the unlock function.
func (d *domainLocks) lock(domain string) func() {
	d.mu.Lock()
	if d.m == nil {
		d.m = make(map[string]*sync.Mutex)
	}
	l, ok := d.m[domain]
	if !ok {
		l = new(sync.Mutex)
		d.m[domain] = l
	}
	d.mu.Unlock()
	l.Lock()
	return l.Unlock
}
