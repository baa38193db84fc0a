package contract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktrade/secondsd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is a scriptable settlement endpoint that counts calls.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	outcome domain.Outcome
	err     error
	delay   time.Duration
}

func (b *fakeBackend) SettleSeconds(ctx context.Context, requestID string) (domain.Outcome, error) {
	b.mu.Lock()
	b.calls++
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outcome, b.err
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// fakeLocks is a scriptable LockManager.
type fakeLocks struct {
	err      error
	acquired atomic.Int32
	released atomic.Int32
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired.Add(1)
	return func() { l.released.Add(1) }, nil
}

func profitPtr(v float64) *float64 { return &v }

func TestSettleConfirmedOutcome(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(24)}}
	trigger := NewTrigger(backend, testLogger())

	out := trigger.Settle(context.Background(), "r-1")

	assert.Equal(t, domain.ResultWin, out.Result)
	require.NotNil(t, out.Profit)
	assert.Equal(t, 24.0, *out.Profit)
	assert.True(t, out.Confirmed())
	assert.Equal(t, 1, backend.callCount())
}

func TestSettleFailureYieldsFallback(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	trigger := NewTrigger(backend, testLogger())

	out := trigger.Settle(context.Background(), "r-1")

	assert.Equal(t, domain.ResultLoss, out.Result)
	assert.Nil(t, out.Profit)
	assert.False(t, out.Confirmed())
}

func TestSettleEmptyRequestIDSkipsBackend(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(1)}}
	trigger := NewTrigger(backend, testLogger())

	out := trigger.Settle(context.Background(), "")

	assert.Equal(t, FallbackOutcome(), out)
	assert.Equal(t, 0, backend.callCount())
}

func TestSettleConcurrentDuplicatesShareOneCall(t *testing.T) {
	backend := &fakeBackend{
		outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(12)},
		delay:   50 * time.Millisecond,
	}
	trigger := NewTrigger(backend, testLogger())

	const waiters = 8
	outcomes := make([]domain.Outcome, waiters)

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = trigger.Settle(context.Background(), "r-dup")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, backend.callCount(), "duplicate expiry must not re-settle")
	for _, out := range outcomes {
		assert.Equal(t, domain.ResultWin, out.Result)
		require.NotNil(t, out.Profit)
		assert.Equal(t, 12.0, *out.Profit)
	}
}

func TestSettleAfterCompletionReturnsOriginalOutcome(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(5)}}
	trigger := NewTrigger(backend, testLogger())

	first := trigger.Settle(context.Background(), "r-1")
	second := trigger.Settle(context.Background(), "r-1")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.callCount())
}

func TestForgetAllowsIndependentSettlement(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(5)}}
	trigger := NewTrigger(backend, testLogger())

	trigger.Settle(context.Background(), "r-1")
	trigger.Forget("r-1")
	trigger.Settle(context.Background(), "r-1")

	// Forget drops the latch record; a later settlement for the same id (a
	// fresh contract reusing the key space) goes to the backend again.
	assert.Equal(t, 2, backend.callCount())
}

func TestSettleLockHeldElsewhereYieldsFallback(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(5)}}
	trigger := NewTrigger(backend, testLogger())
	trigger.SetLockManager(&fakeLocks{err: domain.ErrLockHeld})

	out := trigger.Settle(context.Background(), "r-1")

	assert.Equal(t, FallbackOutcome(), out)
	assert.Equal(t, 0, backend.callCount())
}

func TestSettleLockFailureStillSettles(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(5)}}
	trigger := NewTrigger(backend, testLogger())
	trigger.SetLockManager(&fakeLocks{err: errors.New("redis down")})

	out := trigger.Settle(context.Background(), "r-1")

	assert.Equal(t, domain.ResultWin, out.Result)
	assert.Equal(t, 1, backend.callCount())
}

func TestSettleReleasesLock(t *testing.T) {
	backend := &fakeBackend{outcome: domain.Outcome{Result: domain.ResultWin, Profit: profitPtr(5)}}
	locks := &fakeLocks{}
	trigger := NewTrigger(backend, testLogger())
	trigger.SetLockManager(locks)

	trigger.Settle(context.Background(), "r-1")

	assert.Equal(t, int32(1), locks.acquired.Load())
	assert.Equal(t, int32(1), locks.released.Load())
}
