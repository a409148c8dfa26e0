package bailout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestLookupProcessToHostShortcutBypassesSurrogate(t *testing.T) {
	var hits int32
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sur.Close()

	r := NewResolver(Config{
		SurrogateURL:  sur.URL,
		ProcessToHost: map[string][]string{"P1": {"https://direct.example"}},
	})

	hosts, ok := r.Lookup("P1")
	if !ok || len(hosts) != 1 || hosts[0] != "https://direct.example" {
		t.Fatalf("expected direct override, got %v ok=%v", hosts, ok)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected surrogate to never be called for a processToHost hit")
	}
}

func TestLookupCallsSurrogateAndCaches(t *testing.T) {
	var hits int32
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/processes/P2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hosts": []string{"https://z.example", "https://y.example"}})
	}))
	defer sur.Close()

	r := NewResolver(Config{SurrogateURL: sur.URL})

	hosts, ok := r.Lookup("P2")
	if !ok || len(hosts) != 2 || hosts[0] != "https://z.example" {
		t.Fatalf("unexpected result: %v ok=%v", hosts, ok)
	}

	// Second lookup should hit the cache, not the surrogate again.
	if _, ok := r.Lookup("P2"); !ok {
		t.Fatalf("expected cached hit to still report an override")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly 1 surrogate call, got %d", hits)
	}
}

func TestLookupOwnerOverlayReplacesHosts(t *testing.T) {
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"owner": "acme", "hosts": []string{"https://ignored.example"}})
	}))
	defer sur.Close()

	r := NewResolver(Config{
		SurrogateURL: sur.URL,
		OwnerToHost:  map[string][]string{"acme": {"https://shard1.example", "https://shard2.example"}},
	})

	hosts, ok := r.Lookup("P3")
	if !ok || len(hosts) != 2 || hosts[0] != "https://shard1.example" {
		t.Fatalf("expected owner overlay to replace surrogate hosts, got %v ok=%v", hosts, ok)
	}
}

func TestLookupDedupesEquivalentSurrogateOrigins(t *testing.T) {
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hosts": []string{"https://z.example", "https://Z.example:443", "https://y.example"},
		})
	}))
	defer sur.Close()

	r := NewResolver(Config{SurrogateURL: sur.URL})

	hosts, ok := r.Lookup("P2dup")
	if !ok {
		t.Fatalf("expected an override")
	}
	if len(hosts) != 2 || hosts[0] != "https://z.example" || hosts[1] != "https://y.example" {
		t.Fatalf("expected z.example:443 to dedupe against z.example, got %v", hosts)
	}
}

func TestLookupDedupesStaticOverlayOrigins(t *testing.T) {
	r := NewResolver(Config{
		ProcessToHost: map[string][]string{
			"P1": {"https://direct.example", "https://DIRECT.example:443"},
		},
	})

	hosts, ok := r.Lookup("P1")
	if !ok || len(hosts) != 1 || hosts[0] != "https://direct.example" {
		t.Fatalf("expected static overlay to dedupe equivalent origins, got %v ok=%v", hosts, ok)
	}
}

func TestLookupNon2xxDegradesToNoOverride(t *testing.T) {
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sur.Close()

	r := NewResolver(Config{SurrogateURL: sur.URL})

	if _, ok := r.Lookup("P4"); ok {
		t.Fatalf("expected non-2xx surrogate response to degrade to no override")
	}
}

func TestLookupMalformedJSONDegradesToNoOverride(t *testing.T) {
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer sur.Close()

	r := NewResolver(Config{SurrogateURL: sur.URL})

	if _, ok := r.Lookup("P5"); ok {
		t.Fatalf("expected malformed JSON to degrade to no override")
	}
}

func TestLookupNoSurrogateConfiguredIsNilResolver(t *testing.T) {
	var r *Resolver
	if _, ok := r.Lookup("anything"); ok {
		t.Fatalf("nil resolver must report no override")
	}

	r2 := NewResolver(Config{})
	if _, ok := r2.Lookup("anything"); ok {
		t.Fatalf("resolver with no surrogate URL and no overlays must report no override")
	}
}

func TestCacheEntryExpiresAfterTTL(t *testing.T) {
	var hits int32
	sur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"hosts": []string{"https://z.example"}})
	}))
	defer sur.Close()

	r := NewResolver(Config{SurrogateURL: sur.URL, CacheTTL: 10 * time.Millisecond})

	if _, ok := r.Lookup("P6"); !ok {
		t.Fatalf("expected first lookup to resolve")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := r.Lookup("P6"); !ok {
		t.Fatalf("expected second lookup (post-expiry) to re-resolve")
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected cache expiry to force a second surrogate call, got %d calls", hits)
	}
}
