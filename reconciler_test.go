package ddns_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ddns "github.com/Travis-Britz/porkbun-ddns"
	"github.com/google/go-cmp/cmp"
)

// memService is a RecordService keeping records in memory.
// Mutations are recorded in calls.
type memService struct {
	mu      sync.Mutex
	records []ddns.Record
	calls   []string
	nextID  int
	ttls    []int

	// failures by operation: "list", "create" or "delete"
	fail map[string]error

	inFlight   atomic.Int32
	overlapped atomic.Bool
	listDelay  time.Duration
}

func newMemService(records ...ddns.Record) *memService {
	s := &memService{records: records, nextID: 100}
	return s
}

func (s *memService) enter() func() {
	if s.inFlight.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *memService) ListRecords(ctx context.Context, domain string) ([]ddns.Record, error) {
	defer s.enter()()
	time.Sleep(s.listDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["list"]; err != nil {
		return nil, err
	}
	return append([]ddns.Record(nil), s.records...), nil
}

func (s *memService) CreateRecord(ctx context.Context, domain string, rec ddns.Record) (string, error) {
	defer s.enter()()
	s.mu.Lock()
	defer s.mu.Unlock()
	name := domain
	if rec.Name != "" {
		name = rec.Name + "." + domain
	}
	s.calls = append(s.calls, fmt.Sprintf("create %s %s %s", name, rec.Type, rec.Content))
	if err := s.fail["create"]; err != nil {
		return "", err
	}
	s.nextID++
	rec.ID = fmt.Sprint(s.nextID)
	rec.Name = name
	s.records = append(s.records, rec)
	s.ttls = append(s.ttls, rec.TTL)
	return rec.ID, nil
}

func (s *memService) DeleteRecord(ctx context.Context, domain string, id string) error {
	defer s.enter()()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete "+id)
	if err := s.fail["delete"]; err != nil {
		return err
	}
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("record %s does not exist", id)
}

func (s *memService) mutations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func rec(id, name, typ, content string) ddns.Record {
	return ddns.Record{ID: id, Name: name, Type: typ, Content: content, TTL: 600}
}

const (
	v6one = "0000:0000:0000:0000:0000:0000:0000:0001"
	v6two = "0000:0000:0000:0000:0000:0000:0000:0002"
)

func TestReconcile(t *testing.T) {
	tests := map[string]struct {
		records   []ddns.Record
		subdomain string
		addrs     []string
		want      []string
		upToDate  int
	}{
		"CreatesMissingName": {
			addrs: []string{"127.0.0.1", "::1"},
			want: []string{
				"create example.com A 127.0.0.1",
				"create example.com AAAA " + v6one,
			},
		},
		"OverwritesAliasAndCNAME": {
			records: []ddns.Record{
				rec("1", "example.com", "ALIAS", "elsewhere.example.net"),
				rec("2", "example.com", "CNAME", "elsewhere.example.net"),
			},
			addrs: []string{"127.0.0.1", "::1"},
			want: []string{
				"delete 1",
				"create example.com A 127.0.0.1",
				"delete 2",
				"create example.com AAAA " + v6one,
			},
		},
		"ReplacesStaleContent": {
			records: []ddns.Record{
				rec("1", "example.com", "A", "127.0.0.2"),
				rec("2", "example.com", "AAAA", v6two),
			},
			addrs: []string{"127.0.0.1", "::1"},
			want: []string{
				"delete 1",
				"create example.com A 127.0.0.1",
				"delete 2",
				"create example.com AAAA " + v6one,
			},
		},
		"LeavesMatchingRecords": {
			records: []ddns.Record{
				rec("1", "example.com", "A", "127.0.0.1"),
				rec("2", "example.com", "AAAA", "::1"),
			},
			addrs:    []string{"127.0.0.1", "::1"},
			upToDate: 2,
		},
		"FillsMissingFamily": {
			records: []ddns.Record{
				rec("1", "example.com", "AAAA", v6one),
			},
			addrs: []string{"127.0.0.1"},
			want:  []string{"create example.com A 127.0.0.1"},
		},
		"FillsMissingIPv6": {
			records: []ddns.Record{
				rec("1", "example.com", "A", "127.0.0.1"),
			},
			addrs:    []string{"127.0.0.1", "::1"},
			want:     []string{"create example.com AAAA " + v6one},
			upToDate: 1,
		},
		"Subdomain": {
			records: []ddns.Record{
				rec("1", "example.com", "A", "127.0.0.9"),
				rec("2", "www.example.com", "A", "127.0.0.2"),
				rec("3", "www.example.com", "MX", "mail.example.com"),
			},
			subdomain: "WWW",
			addrs:     []string{"127.0.0.1"},
			want: []string{
				"delete 2",
				"create www.example.com A 127.0.0.1",
			},
		},
		"OnlyUnrelatedTypes": {
			records: []ddns.Record{
				rec("1", "www.example.com", "TXT", "hello"),
			},
			subdomain: "www",
			addrs:     []string{"127.0.0.1"},
			want:      []string{"create www.example.com A 127.0.0.1"},
		},
		"NormalizesListedNames": {
			records: []ddns.Record{
				{ID: "1", Name: "WWW.Example.COM.", Type: "a", Content: "127.0.0.1"},
			},
			subdomain: "www",
			addrs:     []string{"127.0.0.1"},
			upToDate:  1,
		},
		"IgnoresDuplicateAddresses": {
			addrs: []string{"127.0.0.1", "::ffff:127.0.0.1", "0.0.0.0"},
			want:  []string{"create example.com A 127.0.0.1"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc := newMemService(tt.records...)
			var logs bytes.Buffer
			r := ddns.NewReconciler(svc, slog.New(slog.NewTextHandler(&logs, nil)))

			err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", tt.subdomain), addrs(tt.addrs...))
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, svc.mutations()); diff != "" {
				t.Errorf("mutations -want, +got:\n%s", diff)
			}
			if got := strings.Count(logs.String(), "record is up to date"); got != tt.upToDate {
				t.Errorf("logged %d up to date records, want %d\n%s", got, tt.upToDate, logs.String())
			}
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	svc := newMemService(
		rec("1", "example.com", "CNAME", "elsewhere.example.net"),
	)
	r := ddns.NewReconciler(svc, nil)
	target := ddns.NewTarget("example.com", ddns.Root)
	want := addrs("203.0.113.7", "2001:db8::7")

	if err := r.Reconcile(context.Background(), target, want); err != nil {
		t.Fatal(err)
	}
	first := len(svc.mutations())
	if err := r.Reconcile(context.Background(), target, want); err != nil {
		t.Fatal(err)
	}
	if got := svc.mutations(); len(got) != first {
		t.Errorf("second pass mutated records: %v", got[first:])
	}

	var types []string
	for _, r := range svc.records {
		types = append(types, r.Type+" "+r.Content)
	}
	wantTypes := []string{"A 203.0.113.7", "AAAA 2001:0db8:0000:0000:0000:0000:0000:0007"}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Errorf("records -want, +got:\n%s", diff)
	}
}

func TestReconcileInvalidCredentialsAborts(t *testing.T) {
	svc := newMemService()
	svc.fail = map[string]error{"create": fmt.Errorf("%w: Invalid API key.", ddns.ErrInvalidCredentials)}
	r := ddns.NewReconciler(svc, nil)

	err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", "www"), addrs("127.0.0.1", "::1"))
	if !errors.Is(err, ddns.ErrInvalidCredentials) {
		t.Fatalf("Reconcile() error = %v, want ErrInvalidCredentials", err)
	}
	if errors.Is(err, ddns.ErrRecordMutation) {
		t.Errorf("credential errors should not be reclassified: %v", err)
	}
	if diff := cmp.Diff([]string{"create www.example.com A 127.0.0.1"}, svc.mutations()); diff != "" {
		t.Errorf("mutations -want, +got:\n%s", diff)
	}
}

func TestReconcileClassifiesErrors(t *testing.T) {
	tests := map[string]struct {
		fail    string
		records []ddns.Record
		want    error
	}{
		"List":   {fail: "list", want: ddns.ErrRecordFetch},
		"Create": {fail: "create", want: ddns.ErrRecordMutation},
		"Delete": {
			fail:    "delete",
			records: []ddns.Record{rec("1", "example.com", "A", "127.0.0.2")},
			want:    ddns.ErrRecordMutation,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc := newMemService(tt.records...)
			svc.fail = map[string]error{tt.fail: errors.New("connection reset")}
			r := ddns.NewReconciler(svc, nil)
			err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", ""), addrs("127.0.0.1"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Reconcile() error = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), "connection reset") {
				t.Errorf("Reconcile() error %q lost its cause", err)
			}
		})
	}
}

func TestReconcileNoAddresses(t *testing.T) {
	svc := newMemService()
	r := ddns.NewReconciler(svc, nil)
	err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", ""), addrs("0.0.0.0"))
	if !errors.Is(err, ddns.ErrNoAddressFound) {
		t.Fatalf("Reconcile() error = %v, want ErrNoAddressFound", err)
	}
	if len(svc.mutations()) != 0 {
		t.Errorf("unexpected mutations %v", svc.mutations())
	}
}

func TestReconcileTTL(t *testing.T) {
	svc := newMemService()
	r := ddns.NewReconciler(svc, nil)
	r.SetTTL(300)
	if err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", ""), addrs("127.0.0.1")); err != nil {
		t.Fatal(err)
	}
	r.SetTTL(0)
	if err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", "www"), addrs("127.0.0.1")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{300, ddns.DefaultTTL}, svc.ttls); diff != "" {
		t.Errorf("TTLs -want, +got:\n%s", diff)
	}
}

func TestReconcileSerializesDomain(t *testing.T) {
	svc := newMemService()
	svc.listDelay = 5 * time.Millisecond
	r := ddns.NewReconciler(svc, nil)

	var wg sync.WaitGroup
	for _, sub := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(sub string) {
			defer wg.Done()
			if err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", sub), addrs("127.0.0.1", "::1")); err != nil {
				t.Error(err)
			}
		}(sub)
	}
	wg.Wait()
	if svc.overlapped.Load() {
		t.Error("provider calls for the same domain overlapped")
	}
	if got := len(svc.mutations()); got != 8 {
		t.Errorf("got %d mutations, want 8", got)
	}
}

func TestPurge(t *testing.T) {
	svc := newMemService(
		rec("1", "www.example.com", "A", "127.0.0.1"),
		rec("2", "www.example.com", "TXT", "keep"),
		rec("3", "www.example.com", "AAAA", v6one),
		rec("4", "example.com", "A", "127.0.0.1"),
	)
	r := ddns.NewReconciler(svc, nil)
	if err := r.Purge(context.Background(), ddns.NewTarget("example.com", "www")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"delete 1", "delete 3"}, svc.mutations()); diff != "" {
		t.Errorf("mutations -want, +got:\n%s", diff)
	}

	var logs bytes.Buffer
	r.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	if err := r.Purge(context.Background(), ddns.NewTarget("example.com", "www")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), "no A or AAAA records found") {
		t.Errorf("second purge should report nothing to delete:\n%s", logs.String())
	}
}

func TestReconcilerWithoutService(t *testing.T) {
	var r ddns.Reconciler
	if err := r.Reconcile(context.Background(), ddns.NewTarget("example.com", ""), addrs("127.0.0.1")); err == nil {
		t.Fatal("Reconcile() on a zero Reconciler should fail")
	}
}
