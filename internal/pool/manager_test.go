package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/any-hub/repohub/internal/errs"
)

const testOrigin = "https://repo.example.com/maven2"

func newTestManager(t *testing.T, s Settings) *Manager {
	t.Helper()
	m := NewManager(s)
	t.Cleanup(m.Close)
	return m
}

func TestOriginKeyNormalises(t *testing.T) {
	cases := map[string]string{
		"https://Repo.Example.com/maven2/":    testOrigin,
		"https://repo.example.com/maven2?x=1": testOrigin,
		"HTTPS://repo.example.com/maven2":     testOrigin,
	}
	for in, want := range cases {
		if got := OriginKey(in); got != want {
			t.Fatalf("OriginKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConcurrentLeasesAreReleased(t *testing.T) {
	for _, n := range []int{1, 10, 100} {
		m := newTestManager(t, Settings{MaxTotal: 8, DefaultPerOrigin: 4, ExtendFactor: 1, AcquireTimeout: 5 * time.Second})
		var wg sync.WaitGroup
		errCh := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lease, err := m.Acquire(context.Background(), testOrigin)
				if err != nil {
					errCh <- err
					return
				}
				defer lease.Release()
				if got := m.Stats(testOrigin).Leased; got > 4 {
					errCh <- errors.New("per-origin cap exceeded")
				}
				time.Sleep(time.Millisecond)
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			t.Fatalf("n=%d: %v", n, err)
		}
		stats := m.Stats(testOrigin)
		if stats.Leased != 0 {
			t.Fatalf("n=%d: leaked %d leases", n, stats.Leased)
		}
		if stats.Allocated < 1 || stats.Allocated > 4 {
			t.Fatalf("n=%d: unexpected allocated %d", n, stats.Allocated)
		}
		if m.TotalLeased() != 0 {
			t.Fatalf("n=%d: total leased %d", n, m.TotalLeased())
		}
	}
}

func TestReleaseIsExactlyOnce(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 4, DefaultPerOrigin: 2, ExtendFactor: 1})
	a, err := m.Acquire(context.Background(), testOrigin)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := m.Acquire(context.Background(), testOrigin)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !a.Release() {
		t.Fatalf("first release should report true")
	}
	if a.Release() {
		t.Fatalf("second release should be a no-op")
	}
	if got := m.Stats(testOrigin).Leased; got != 1 {
		t.Fatalf("double release must not free b's slot, leased=%d", got)
	}
	b.Release()
}

func TestAcquireBoundedWait(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 4, DefaultPerOrigin: 1, ExtendFactor: 1, AcquireTimeout: 50 * time.Millisecond})
	lease, err := m.Acquire(context.Background(), testOrigin)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release()

	start := time.Now()
	_, err = m.Acquire(context.Background(), testOrigin)
	if !errors.Is(err, errs.ErrPoolExhausted) || !errors.Is(err, errs.ErrUpstream) {
		t.Fatalf("expected pool exhausted, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("wait not bounded: %s", elapsed)
	}

	other, err := m.Acquire(context.Background(), "https://other.example.com")
	if err != nil {
		t.Fatalf("other origin must not be blocked: %v", err)
	}
	other.Release()
}

func TestAcquireWakesOnRelease(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 4, DefaultPerOrigin: 1, ExtendFactor: 1, AcquireTimeout: 5 * time.Second})
	first, err := m.Acquire(context.Background(), testOrigin)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		first.Release()
	}()
	second, err := m.Acquire(context.Background(), testOrigin)
	if err != nil {
		t.Fatalf("waiter should be woken by release: %v", err)
	}
	second.Release()
}

func TestAcquireHonoursContext(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 1, DefaultPerOrigin: 1, ExtendFactor: 1, AcquireTimeout: 5 * time.Second})
	lease, _ := m.Acquire(context.Background(), testOrigin)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, testOrigin); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGlobalCapAcrossOrigins(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 2, DefaultPerOrigin: 2, ExtendFactor: 1, AcquireTimeout: 30 * time.Millisecond})
	a, _ := m.Acquire(context.Background(), "https://a.example.com")
	b, _ := m.Acquire(context.Background(), "https://b.example.com")
	defer a.Release()
	defer b.Release()
	if _, err := m.Acquire(context.Background(), "https://c.example.com"); !errors.Is(err, errs.ErrPoolExhausted) {
		t.Fatalf("global cap should apply, got %v", err)
	}
}

func TestAdaptiveGrowth(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 6, DefaultPerOrigin: 2, ExtendFactor: 2, ExtendThreshold: 0.5, AcquireTimeout: 30 * time.Millisecond})
	var leases []*Lease
	for i := 0; i < 6; i++ {
		lease, err := m.Acquire(context.Background(), testOrigin)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		leases = append(leases, lease)
	}
	stats := m.Stats(testOrigin)
	if stats.MaxPerOrigin != 6 {
		t.Fatalf("cap should grow up to the global max, got %d", stats.MaxPerOrigin)
	}
	if _, err := m.Acquire(context.Background(), testOrigin); !errors.Is(err, errs.ErrPoolExhausted) {
		t.Fatalf("growth must stop at the global max, got %v", err)
	}
	for _, l := range leases {
		l.Release()
	}
}

func TestSetMaxPerOriginKeepsExistingLeases(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 10, DefaultPerOrigin: 3, ExtendFactor: 1, AcquireTimeout: 30 * time.Millisecond})
	var leases []*Lease
	for i := 0; i < 3; i++ {
		l, err := m.Acquire(context.Background(), testOrigin)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		leases = append(leases, l)
	}
	m.SetMaxPerOrigin(testOrigin, 1)
	if got := m.Stats(testOrigin); got.Leased != 3 || got.MaxPerOrigin != 1 {
		t.Fatalf("existing leases must survive a shrink: %+v", got)
	}
	if _, err := m.Acquire(context.Background(), testOrigin); !errors.Is(err, errs.ErrPoolExhausted) {
		t.Fatalf("new acquisitions must respect the new cap, got %v", err)
	}
	for _, l := range leases {
		l.Release()
	}
	l, err := m.Acquire(context.Background(), testOrigin)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l.Release()

	m.SetMaxPerOrigin(testOrigin, 0)
	if got := m.Stats(testOrigin).MaxPerOrigin; got != 3 {
		t.Fatalf("reset should restore the default, got %d", got)
	}
}

func TestUpdateSettingsSwapsDefaults(t *testing.T) {
	m := newTestManager(t, Settings{MaxTotal: 10, DefaultPerOrigin: 2, ExtendFactor: 1})
	l, _ := m.Acquire(context.Background(), testOrigin)
	l.Release()
	m.UpdateSettings(Settings{MaxTotal: 10, DefaultPerOrigin: 7, ExtendFactor: 1})
	if got := m.Stats(testOrigin).MaxPerOrigin; got != 7 {
		t.Fatalf("default cap not applied, got %d", got)
	}
	if got := m.Settings().DefaultPerOrigin; got != 7 {
		t.Fatalf("settings not swapped, got %d", got)
	}
	if got := m.Stats("https://never.example.com"); got.MaxPerOrigin != 7 || got.Leased != 0 {
		t.Fatalf("unknown origin stats: %+v", got)
	}
}
