package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/any-hub/repohub/internal/pool"
)

func TestCollectorCountsFetches(t *testing.T) {
	c := NewCollector(nil)
	c.CacheHit("s0:central")
	c.CacheHit("s0:central")
	c.CacheMiss("s0:central")
	c.Fetch("s0:central", 20*time.Millisecond, 128, nil)
	c.Fetch("s0:central", time.Millisecond, 0, errors.New("boom"))
	c.Request("s0:public", "group", "hit")

	if got := testutil.ToFloat64(c.cacheHits.WithLabelValues("s0:central")); got != 2 {
		t.Fatalf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(c.fetchBytes.WithLabelValues("s0:central")); got != 128 {
		t.Fatalf("fetch bytes = %v", got)
	}
	if got := testutil.ToFloat64(c.fetchErrors.WithLabelValues("s0:central")); got != 1 {
		t.Fatalf("fetch errors = %v", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("s0:public", "group", "hit")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
}

func TestPoolStatsExported(t *testing.T) {
	manager := pool.NewManager(pool.Settings{MaxTotal: 4, DefaultPerOrigin: 2, ExtendFactor: 1, AcquireTimeout: time.Second})
	defer manager.Close()
	lease, err := manager.Acquire(context.Background(), "https://repo.example.com/maven2")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release()

	c := NewCollector(manager)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`repohub_pool_leased{origin="https://repo.example.com/maven2"} 1`,
		`repohub_pool_max_per_origin{origin="https://repo.example.com/maven2"} 2`,
		`repohub_pool_leased_total 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}
