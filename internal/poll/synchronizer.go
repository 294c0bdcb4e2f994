// Package poll implements the periodic fetch loop used for chat, the unread
// counter and the dashboard. One Synchronizer owns one remote resource.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Options configures a Synchronizer.
type Options[T any] struct {
	// Name labels log lines, e.g. "chat" or "notifications".
	Name string
	// Interval between fetches. The first fetch happens immediately on
	// Start, not one interval later.
	Interval time.Duration
	// Fetch retrieves the current remote value.
	Fetch func(ctx context.Context) (T, error)
	// Equal reports structural equality. When a fetched value equals the
	// last delivered one, OnUpdate is skipped.
	Equal func(a, b T) bool
	// Active, when set, gates fetching: ticks are skipped while it
	// returns false. Used to pause chat polling when its view is hidden.
	Active func() bool
	// OnUpdate receives each changed value. Never called after Stop
	// returns. It must not call back into the Synchronizer.
	OnUpdate func(T)
	// OnError, when set, receives fetch failures. Failures never stop
	// the loop.
	OnError func(error)
	Logger  *slog.Logger
}

// Synchronizer 周期拉取单个远端资源 / Synchronizer polls one remote resource on
// a fixed interval. Fetches run concurrently with the tick loop; responses
// arriving out of order are discarded by sequence number, so a slow old fetch
// can never overwrite a newer result.
type Synchronizer[T any] struct {
	opts Options[T]
	log  *slog.Logger

	mu        sync.Mutex
	last      T
	hasLast   bool
	delivered uint64
	nextSeq   uint64
	stopped   bool

	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// New builds a Synchronizer. Interval, Fetch, Equal and OnUpdate are
// required.
func New[T any](opts Options[T]) *Synchronizer[T] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synchronizer[T]{
		opts: opts,
		log:  opts.Logger.With("sync", opts.Name),
		kick: make(chan struct{}, 1),
	}
}

// Start launches the loop: an immediate fetch, then one per interval. Calling
// Start on a running synchronizer is a no-op.
func (s *Synchronizer[T]) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil && !s.stopped {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.stopped = false
	done := s.done
	s.mu.Unlock()

	// A kick queued while stopped must not carry over into the new loop.
	select {
	case <-s.kick:
	default:
	}

	go func() {
		defer close(done)
		s.tick(ctx)
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			case <-s.kick:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit. After Stop returns, OnUpdate
// will not fire again, even for fetches still in flight.
func (s *Synchronizer[T]) Stop() {
	s.mu.Lock()
	if s.done == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Refresh requests an immediate fetch outside the regular cadence, e.g. right
// after the user sends a message. A kick arriving while stopped is discarded
// on the next Start.
func (s *Synchronizer[T]) Refresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Interval returns the configured fetch cadence.
func (s *Synchronizer[T]) Interval() time.Duration { return s.opts.Interval }

func (s *Synchronizer[T]) tick(ctx context.Context) {
	if s.opts.Active != nil && !s.opts.Active() {
		return
	}
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	s.mu.Unlock()

	go func() {
		value, err := s.opts.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug("fetch failed", "error", err)
			if s.opts.OnError != nil {
				s.opts.OnError(err)
			}
			return
		}
		s.deliver(seq, value)
	}()
}

// deliver hands value to OnUpdate unless the synchronizer has stopped, a
// newer fetch already landed, or the value matches the last delivery.
func (s *Synchronizer[T]) deliver(seq uint64, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || seq <= s.delivered {
		return
	}
	s.delivered = seq
	if s.hasLast && s.opts.Equal(s.last, value) {
		return
	}
	s.last = value
	s.hasLast = true
	// OnUpdate runs under the lock so Stop cannot complete mid-delivery.
	s.opts.OnUpdate(value)
}
