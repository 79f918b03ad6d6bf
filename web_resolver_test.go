package ddns_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	ddns "github.com/Travis-Britz/porkbun-ddns"
)

func echoServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup(t *testing.T) {
	srv := echoServer(t, "192.168.2.1\n", http.StatusOK)
	wr, err := ddns.WebResolver(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	res, err := wr.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Request failed: %s", err)
	}

	if expected, got := netip.MustParseAddr("192.168.2.1"), res[0]; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestLookupNoCache(t *testing.T) {
	headers := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("Cache-Control")
		io.WriteString(w, "2001:db8::1")
	}))
	defer srv.Close()
	wr, _ := ddns.WebResolver(srv.URL)
	if _, err := wr.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if header := <-headers; header != "no-cache" {
		t.Fatalf("Expected Cache-Control no-cache; got %q", header)
	}
}

func TestFallback(t *testing.T) {
	tests := map[string]struct {
		bodies   []string
		statuses []int
		want     string
	}{
		"FirstWins": {
			bodies:   []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"},
			statuses: []int{200, 200, 200},
			want:     "203.0.113.1",
		},
		"SkipsBadStatus": {
			bodies:   []string{"203.0.113.1", "203.0.113.2"},
			statuses: []int{http.StatusServiceUnavailable, 200},
			want:     "203.0.113.2",
		},
		"SkipsUnreachable": {
			bodies:   []string{"", "203.0.113.2", "203.0.113.3"},
			statuses: []int{0, http.StatusNotFound, 200},
			want:     "203.0.113.3",
		},
		"SkipsUnparseableBody": {
			bodies:   []string{"invalid ip", "<html>", "203.0.113.3"},
			statuses: []int{200, 200, 200},
			want:     "203.0.113.3",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var urls []string
			for i, body := range tt.bodies {
				if tt.statuses[i] == 0 {
					// a closed server refuses the connection
					closed := httptest.NewServer(http.NotFoundHandler())
					closed.Close()
					urls = append(urls, closed.URL)
					continue
				}
				urls = append(urls, echoServer(t, body, tt.statuses[i]).URL)
			}
			wr, err := ddns.WebResolver(urls...)
			if err != nil {
				t.Fatal(err)
			}
			res, err := wr.Resolve(context.Background())
			if err != nil {
				t.Fatalf("Resolve failed: %s", err)
			}
			if len(res) != 1 || res[0] != netip.MustParseAddr(tt.want) {
				t.Fatalf("Expected [%s]; got %v", tt.want, res)
			}
		})
	}
}

func TestAllFail(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	wr, _ := ddns.WebResolver(
		echoServer(t, "a", http.StatusOK).URL,
		echoServer(t, "", http.StatusInternalServerError).URL,
		closed.URL,
	)
	res, err := wr.Resolve(context.Background())
	if err == nil {
		t.Fatalf("Expected error response; got err == nil")
	}
	if res != nil {
		t.Fatalf("Expected empty slice; got %+v", res)
	}
	if !errors.Is(err, ddns.ErrInvalidAddress) {
		t.Fatalf("Expected the parse failure to be kept in %q", err)
	}
}

func TestHitCount(t *testing.T) {
	var mu sync.Mutex
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		// every request fails, so every service is tried exactly once
		io.WriteString(w, "invalid ip")
	}))
	defer srv.Close()

	for n := 1; n <= 5; n++ {
		urls := make([]string, n)
		for i := range urls {
			urls[i] = srv.URL
		}
		wr, _ := ddns.WebResolver(urls...)

		mu.Lock()
		hits = 0
		mu.Unlock()
		if _, err := wr.Resolve(context.Background()); err == nil {
			t.Fatalf("Expected an error; got err == nil")
		}
		mu.Lock()
		h := hits
		mu.Unlock()
		if h != n {
			t.Fatalf("Expected %d hits; got %d", n, h)
		}
	}
}

func TestLookupCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		io.WriteString(w, "192.168.2.1")
	}))
	defer srv.Close()
	wr, _ := ddns.WebResolver(srv.URL, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	if _, err := wr.Resolve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded; got %v", err)
	}
}

func TestNoServices(t *testing.T) {
	wr, _ := ddns.WebResolver()
	if _, err := wr.Resolve(context.Background()); err == nil {
		t.Fatal("Expected an error without services")
	}
}
