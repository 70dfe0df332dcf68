package release

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fetcherFunc func(ctx context.Context) ([]Release, error)

func (f fetcherFunc) FetchReleases(ctx context.Context) ([]Release, error) {
	return f(ctx)
}

// fakeClock is a settable time source for stepping through TTL windows.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testReleases() []Release {
	return []Release{
		{TagName: "v1.0.2"},
		{TagName: "v1.0.1"},
		{TagName: "v1.0.0"},
	}
}

func countingFetcher(calls *atomic.Int32, releases []Release, err error) fetcherFunc {
	return func(ctx context.Context) ([]Release, error) {
		calls.Add(1)
		if err != nil {
			return nil, err
		}
		return releases, nil
	}
}

func TestSnapshotFreshWithinTTL(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	c := NewCache(countingFetcher(&calls, testReleases(), nil), 30*time.Minute, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		snap, err := c.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if got := snap.Tags(); len(got) != 3 || got[0] != "v1.0.2" {
			t.Fatalf("Snapshot tags = %v", got)
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("fetch count = %d, want 1 (fresh reads must not fetch)", n)
	}
}

func TestSnapshotRefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	c := NewCache(countingFetcher(&calls, testReleases(), nil), 30*time.Minute, WithClock(clock.Now))

	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Minute)
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("fetch count = %d, want 2 after TTL expiry", n)
	}
}

func TestSnapshotSingleFlight(t *testing.T) {
	var calls atomic.Int32
	unblock := make(chan struct{})
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		calls.Add(1)
		<-unblock
		return testReleases(), nil
	})

	c := NewCache(fetcher, 30*time.Minute)

	const readers = 20
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Snapshot(context.Background())
		}(i)
	}

	// Let the readers pile up behind the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(unblock)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("reader %d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fetch count = %d, want 1 (refresh must be single-flight)", n)
	}
}

func TestSnapshotServesStaleAfterFetchFailure(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	fail := atomic.Bool{}
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		calls.Add(1)
		if fail.Load() {
			return nil, errors.New("upstream down")
		}
		return testReleases(), nil
	})

	c := NewCache(fetcher, 30*time.Minute, WithClock(clock.Now))

	first, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	clock.Advance(time.Hour)

	got, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() with stale data error = %v, want stale serve", err)
	}
	if got != first {
		t.Error("expected the previous snapshot to be served after a failed refresh")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingFetcher(&calls, testReleases(), nil), 30*time.Minute)

	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Invalidate()
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("fetch count = %d, want 2 after Invalidate", n)
	}
}

func TestInvalidateThenFailedFetchLeavesCacheEmpty(t *testing.T) {
	fail := atomic.Bool{}
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		if fail.Load() {
			return nil, errors.New("upstream down")
		}
		return testReleases(), nil
	})

	c := NewCache(fetcher, 30*time.Minute)
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Invalidate()
	fail.Store(true)

	_, err := c.Snapshot(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Snapshot() after invalidate+failure error = %v, want *FetchError", err)
	}

	// The failure must not have resurrected the old snapshot.
	_, err = c.Snapshot(context.Background())
	if !errors.As(err, &fetchErr) {
		t.Fatalf("second read error = %v, want *FetchError", err)
	}
}

func TestRefreshBypassesTTL(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingFetcher(&calls, testReleases(), nil), 30*time.Minute)

	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("fetch count = %d, want 2 (Refresh must not trust TTL)", n)
	}
}

func TestRefreshFailureDoesNotServeStale(t *testing.T) {
	fail := atomic.Bool{}
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		if fail.Load() {
			return nil, errors.New("upstream down")
		}
		return testReleases(), nil
	})

	c := NewCache(fetcher, 30*time.Minute)
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	_, err := c.Refresh(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Refresh() error = %v, want *FetchError", err)
	}

	// The earlier snapshot must still serve TTL-gated reads.
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Errorf("Snapshot() after failed Refresh error = %v", err)
	}
}

func TestSnapshotSurvivesInitiatorCancellation(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		close(started)
		select {
		case <-unblock:
			return testReleases(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	c := NewCache(fetcher, 30*time.Minute)

	initCtx, cancel := context.WithCancel(context.Background())
	initErr := make(chan error, 1)
	go func() {
		_, err := c.Snapshot(initCtx)
		initErr <- err
	}()
	<-started

	// A second caller joins the in-flight fetch before the first
	// caller hangs up.
	type result struct {
		snap *Snapshot
		err  error
	}
	waiter := make(chan result, 1)
	go func() {
		snap, err := c.Snapshot(context.Background())
		waiter <- result{snap, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-initErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("canceled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return promptly")
	}

	close(unblock)
	select {
	case res := <-waiter:
		if res.err != nil {
			t.Fatalf("waiting caller error = %v, want shared fetch result", res.err)
		}
		if got := res.snap.Tags(); len(got) != 3 {
			t.Fatalf("waiting caller tags = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting caller never received the fetch result")
	}
}

func TestRefreshSurvivesInitiatorCancellation(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	var calls atomic.Int32
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		if calls.Add(1) > 1 {
			return testReleases(), nil
		}
		close(started)
		select {
		case <-unblock:
			return testReleases(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	c := NewCache(fetcher, 30*time.Minute)

	initCtx, cancel := context.WithCancel(context.Background())
	initErr := make(chan error, 1)
	go func() {
		_, err := c.Refresh(initCtx)
		initErr <- err
	}()
	<-started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		waiterErr <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-initErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("canceled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return promptly")
	}

	close(unblock)
	select {
	case err := <-waiterErr:
		if err != nil {
			t.Fatalf("waiting caller error = %v, want shared fetch result", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting caller never received the fetch result")
	}
}

func TestCanceledSnapshotDoesNotServeStale(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	var first atomic.Bool
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		if first.CompareAndSwap(false, true) {
			return testReleases(), nil
		}
		close(started)
		<-unblock
		return testReleases(), nil
	})

	clock := newFakeClock()
	c := NewCache(fetcher, 30*time.Minute, WithClock(clock.Now))
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	go func() {
		_, err := c.Snapshot(ctx)
		got <- err
	}()
	<-started
	cancel()

	// The caller gave up waiting; it gets its cancellation, not the
	// stale snapshot.
	select {
	case err := <-got:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Snapshot() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return promptly")
	}
	close(unblock)
}

func TestSnapshotReplacedWholesale(t *testing.T) {
	var serve atomic.Int32
	fetcher := fetcherFunc(func(ctx context.Context) ([]Release, error) {
		if serve.Add(1) == 1 {
			return []Release{{TagName: "v1.0.0"}}, nil
		}
		return testReleases(), nil
	})

	c := NewCache(fetcher, 30*time.Minute)
	first, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Releases) != 1 {
		t.Fatalf("first snapshot has %d releases", len(first.Releases))
	}

	second, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Releases) != 3 {
		t.Errorf("refreshed snapshot has %d releases, want 3", len(second.Releases))
	}
	if len(first.Releases) != 1 {
		t.Error("earlier snapshot was mutated; replacement must be wholesale")
	}
}
