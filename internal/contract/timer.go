package contract

import (
	"context"
	"sync"
	"time"
)

// TickFunc receives the remaining whole seconds on each timer tick.
type TickFunc func(remaining int)

// ExpireFunc receives the single expiry signal.
type ExpireFunc func()

// Timer is the per-contract drift-corrected countdown. It records an anchor
// instant once at start and derives the remaining time from wall-clock
// samples on every tick, never by decrementing a counter: delayed or
// suspended ticks therefore cannot accumulate drift against the backend's
// deadline.
//
// onExpire fires at most once; ticks after expiry or Stop are no-ops. Stop is
// idempotent and safe from any state, including after natural expiry.
type Timer struct {
	durationSeconds int
	interval        time.Duration
	now             func() time.Time
	onTick          TickFunc
	onExpire        ExpireFunc

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu        sync.Mutex
	startedAt time.Time
}

// NewTimer creates a countdown for the given duration. onTick and onExpire
// may be nil.
func NewTimer(durationSeconds int, onTick TickFunc, onExpire ExpireFunc) *Timer {
	return &Timer{
		durationSeconds: durationSeconds,
		interval:        time.Second,
		now:             time.Now,
		onTick:          onTick,
		onExpire:        onExpire,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// SetInterval overrides the tick cadence. Must be called before Start.
func (t *Timer) SetInterval(d time.Duration) {
	t.interval = d
}

// SetClock overrides the wall-clock source. Must be called before Start.
func (t *Timer) SetClock(now func() time.Time) {
	t.now = now
}

// Start records the anchor instant and begins ticking in a background
// goroutine owned by ctx. Subsequent calls are no-ops.
func (t *Timer) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		t.mu.Lock()
		t.startedAt = t.now()
		t.mu.Unlock()

		if t.onTick != nil {
			t.onTick(t.durationSeconds)
		}

		go t.loop(ctx)
	})
}

// StartedAt returns the anchor instant, or the zero time before Start.
func (t *Timer) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// Remaining derives the remaining whole seconds from the anchor and the
// current clock sample.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	startedAt := t.startedAt
	t.mu.Unlock()

	if startedAt.IsZero() {
		return t.durationSeconds
	}
	elapsed := int(t.now().Sub(startedAt) / time.Second)
	remaining := t.durationSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stop halts the tick loop without firing expiry. It is idempotent.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

// Done is closed when the tick loop has exited, whether by expiry, Stop, or
// context cancellation.
func (t *Timer) Done() <-chan struct{} {
	return t.doneCh
}

func (t *Timer) loop(ctx context.Context) {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			remaining := t.Remaining()
			if t.onTick != nil {
				t.onTick(remaining)
			}
			if remaining <= 0 {
				// The loop returns immediately after the expiry signal, so
				// onExpire cannot fire twice even if ticks were queued.
				t.Stop()
				if t.onExpire != nil {
					t.onExpire()
				}
				return
			}
		}
	}
}
