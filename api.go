package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"net/netip"
	"strconv"
)

// Resolver returns the addresses that DNS records should point to.
type Resolver interface {
	Resolve(context.Context) ([]netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) ([]netip.Addr, error)

// Resolve implements ddns.Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) ([]netip.Addr, error) {
	return f(ctx)
}

// RecordService is the subset of a DNS provider API used by the Reconciler.
//
// Implementations should return errors wrapping ErrInvalidCredentials when the provider rejects authentication,
// ErrRecordFetch for failed listings and ErrRecordMutation for failed creates and deletes.
// Unclassified errors are classified by the Reconciler.
type RecordService interface {
	// ListRecords returns every record of domain.
	ListRecords(ctx context.Context, domain string) ([]Record, error)
	// CreateRecord creates rec in domain. rec.Name is relative to domain.
	// It returns the identifier assigned by the provider.
	CreateRecord(ctx context.Context, domain string, rec Record) (id string, err error)
	// DeleteRecord deletes the record identified by id.
	DeleteRecord(ctx context.Context, domain string, id string) error
}

// Record types that take part in reconciliation.
const (
	TypeA     = "A"
	TypeAAAA  = "AAAA"
	TypeALIAS = "ALIAS"
	TypeCNAME = "CNAME"
)

// DefaultTTL is the TTL of created records.
const DefaultTTL = 600

// Record is a DNS record as reported by the provider.
// Name is the fully qualified name for listed records and the name relative to the domain for new ones.
type Record struct {
	ID      string
	Name    string
	Type    string
	Content string
	TTL     int
	Prio    int
	Notes   string
}

// wireRecord is the Porkbun JSON form of a record.
// Porkbun sends numbers as strings in some responses and as numbers in others.
type wireRecord struct {
	ID      flexString `json:"id"`
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	Content string     `json:"content"`
	TTL     flexString `json:"ttl"`
	Prio    flexString `json:"prio"`
	Notes   string     `json:"notes"`
}

func (w wireRecord) record() Record {
	return Record{
		ID:      string(w.ID),
		Name:    w.Name,
		Type:    w.Type,
		Content: w.Content,
		TTL:     w.TTL.int(),
		Prio:    w.Prio.int(),
		Notes:   w.Notes,
	}
}

// flexString decodes a JSON string, number or null into a string.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func (s flexString) int() int {
	n, _ := strconv.Atoi(string(s))
	return n
}
