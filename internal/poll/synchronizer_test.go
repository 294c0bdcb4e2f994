package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestImmediateFirstFetch(t *testing.T) {
	updates := make(chan int, 1)
	s := New(Options[int]{
		Name:     "test",
		Interval: time.Hour,
		Fetch:    func(ctx context.Context) (int, error) { return 42, nil },
		Equal:    func(a, b int) bool { return a == b },
		OnUpdate: func(v int) { updates <- v },
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case v := <-updates:
		if v != 42 {
			t.Fatalf("update=%d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update before the first interval elapsed")
	}
}

func TestEqualValuesAreSuppressed(t *testing.T) {
	var updates atomic.Int32
	s := New(Options[int]{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Fetch:    func(ctx context.Context) (int, error) { return 7, nil },
		Equal:    func(a, b int) bool { return a == b },
		OnUpdate: func(int) { updates.Add(1) },
	})
	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if got := updates.Load(); got != 1 {
		t.Fatalf("updates=%d, want exactly 1 for an unchanged value", got)
	}
}

func TestFailedTicksDoNotStopTheLoop(t *testing.T) {
	var calls atomic.Int32
	var errs atomic.Int32
	updates := make(chan int, 4)
	s := New(Options[int]{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Fetch: func(ctx context.Context) (int, error) {
			n := calls.Add(1)
			if n < 3 {
				return 0, errors.New("transient")
			}
			return int(n), nil
		},
		Equal:    func(a, b int) bool { return a == b },
		OnUpdate: func(v int) { updates <- v },
		OnError:  func(error) { errs.Add(1) },
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never recovered after failed fetches")
	}
	if errs.Load() < 2 {
		t.Fatalf("OnError calls=%d, want at least 2", errs.Load())
	}
}

func TestActivePredicateGatesFetching(t *testing.T) {
	var active atomic.Bool
	var calls atomic.Int32
	s := New(Options[int]{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Fetch: func(ctx context.Context) (int, error) {
			return int(calls.Add(1)), nil
		},
		Equal:    func(a, b int) bool { return a == b },
		Active:   active.Load,
		OnUpdate: func(int) {},
	})
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("fetches=%d while inactive, want 0", calls.Load())
	}

	active.Store(true)
	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no fetch after becoming active")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	// The first fetch is slow; the second completes first. When the slow
	// one lands it must be dropped, not delivered over the newer value.
	var calls atomic.Int32
	release := make(chan struct{})
	var mu sync.Mutex
	var got []int
	s := New(Options[int]{
		Name:     "test",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) (int, error) {
			n := calls.Add(1)
			if n == 1 {
				<-release
				return 1, nil
			}
			return 2, nil
		},
		Equal: func(a, b int) bool { return a == b },
		OnUpdate: func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	// Wait for the slow first fetch to begin, then force a second one.
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.Refresh()
	for calls.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("deliveries=%v, want [2]", got)
	}
}

func TestStopIsSynchronous(t *testing.T) {
	var delivered atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(Options[int]{
		Name:     "test",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		},
		Equal:    func(a, b int) bool { return a == b },
		OnUpdate: func(int) { delivered.Add(1) },
	})
	s.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	// Let Stop settle, then release the in-flight fetch.
	time.Sleep(10 * time.Millisecond)
	close(release)
	<-done
	time.Sleep(20 * time.Millisecond)

	if delivered.Load() != 0 {
		t.Fatal("an in-flight fetch delivered after Stop returned")
	}
}

func TestRefreshTriggersFetchNow(t *testing.T) {
	var calls atomic.Int32
	updates := make(chan int, 4)
	s := New(Options[int]{
		Name:     "test",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) (int, error) {
			return int(calls.Add(1)), nil
		},
		Equal:    func(a, b int) bool { return a == b },
		OnUpdate: func(v int) { updates <- v },
	})
	s.Start(context.Background())
	defer s.Stop()

	<-updates
	s.Refresh()
	select {
	case v := <-updates:
		if v != 2 {
			t.Fatalf("second update=%d, want 2", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh did not trigger a fetch")
	}
}

func TestRefreshWhileStoppedDoesNotCarryOver(t *testing.T) {
	var calls atomic.Int32
	s := New(Options[int]{
		Name:     "test",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) (int, error) {
			return int(calls.Add(1)), nil
		},
		Equal:    func(a, b int) bool { return a == b },
		OnUpdate: func(int) {},
	})

	// Kick before the loop ever ran, then start: only the immediate first
	// fetch may happen within the interval.
	s.Refresh()
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	if got := calls.Load(); got != 1 {
		t.Fatalf("fetches=%d, want 1 (stale kick must be dropped)", got)
	}

	s.Refresh()
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	if got := calls.Load(); got != 2 {
		t.Fatalf("fetches=%d after restart, want 2", got)
	}
}
