package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
	"github.com/quicktrade/secondsd/internal/notify"
)

// settleLockTTL bounds how long the optional cross-process settlement lock is
// held if the process dies mid-call.
const settleLockTTL = 30 * time.Second

// SettlementBackend is the authoritative settlement endpoint. It owns the
// real win/loss/profit computation; the trigger never derives a payout.
type SettlementBackend interface {
	SettleSeconds(ctx context.Context, requestID string) (domain.Outcome, error)
}

// settleCall is one in-flight or completed settlement attempt. Waiters block
// on done and then read outcome.
type settleCall struct {
	done    chan struct{}
	outcome domain.Outcome
}

// Trigger performs the exactly-once settlement call at contract expiry. A
// single-fire latch keyed by requestId absorbs duplicate expiry signals (a
// stale timer callback racing a manual trigger): later invocations wait for
// the original call and receive its outcome verbatim.
//
// Any failure — missing requestId, auth, transport, malformed response —
// yields the conservative fallback outcome {Loss, profit: nil}. The UI must
// never claim a win it cannot confirm nor display a fabricated profit.
type Trigger struct {
	backend  SettlementBackend
	locks    domain.LockManager
	notifier *notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*settleCall
}

// NewTrigger creates a Trigger backed by the given settlement endpoint.
func NewTrigger(backend SettlementBackend, logger *slog.Logger) *Trigger {
	return &Trigger{
		backend:  backend,
		logger:   logger.With(slog.String("component", "settlement_trigger")),
		inflight: make(map[string]*settleCall),
	}
}

// SetLockManager enables a cross-process guard in addition to the local
// latch. The two guards are independent defenses; the local latch alone is
// still authoritative in-process.
func (t *Trigger) SetLockManager(locks domain.LockManager) {
	t.locks = locks
}

// SetNotifier enables non-fatal operator warnings on settlement failure.
func (t *Trigger) SetNotifier(n *notify.Notifier) {
	t.notifier = n
}

// FallbackOutcome is the conservative result used when settlement cannot be
// confirmed.
func FallbackOutcome() domain.Outcome {
	return domain.Outcome{Result: domain.ResultLoss, Profit: nil}
}

// Settle performs the settlement call for requestID, or waits for the one
// already in flight and returns its outcome. It never returns an error: every
// failure is absorbed into the fallback outcome so the contract always
// reaches its terminal state.
func (t *Trigger) Settle(ctx context.Context, requestID string) domain.Outcome {
	if requestID == "" {
		// Protocol violation upstream; nothing to settle against.
		t.warn(ctx, requestID, "settlement requested without a requestId")
		return FallbackOutcome()
	}

	t.mu.Lock()
	if call, ok := t.inflight[requestID]; ok {
		t.mu.Unlock()
		// Duplicate firing: await the original result. Waiting is not
		// cancellable on purpose — handing a second, divergent outcome to a
		// racing caller would break the exactly-once guarantee.
		<-call.done
		return call.outcome
	}
	call := &settleCall{done: make(chan struct{})}
	t.inflight[requestID] = call
	t.mu.Unlock()

	call.outcome = t.settle(ctx, requestID)
	close(call.done)
	return call.outcome
}

// Forget drops the latch record for requestID. Called when the contract is
// dismissed so the map does not grow unbounded.
func (t *Trigger) Forget(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, requestID)
}

func (t *Trigger) settle(ctx context.Context, requestID string) domain.Outcome {
	if t.locks != nil {
		unlock, err := t.locks.Acquire(ctx, "settle:"+requestID, settleLockTTL)
		switch {
		case err == nil:
			defer unlock()
		case errors.Is(err, domain.ErrLockHeld):
			// Another process owns this settlement. The backend call is
			// idempotent on its side, but we still avoid the duplicate and
			// report the unconfirmed conservative result locally.
			t.logger.WarnContext(ctx, "settlement lock held elsewhere",
				slog.String("request_id", requestID),
			)
			return FallbackOutcome()
		default:
			// Lock infrastructure failure must not block settlement; the
			// local latch still guarantees in-process exactly-once.
			t.logger.WarnContext(ctx, "settlement lock unavailable, proceeding",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
		}
	}

	outcome, err := t.backend.SettleSeconds(ctx, requestID)
	if err != nil {
		t.warn(ctx, requestID, err.Error())
		return FallbackOutcome()
	}

	t.logger.InfoContext(ctx, "settlement confirmed",
		slog.String("request_id", requestID),
		slog.String("result", string(outcome.Result)),
	)
	return outcome
}

// warn logs a settlement failure and forwards it to the notifier. The failure
// is non-fatal by design: the caller proceeds with the fallback outcome.
func (t *Trigger) warn(ctx context.Context, requestID, reason string) {
	t.logger.WarnContext(ctx, "settlement failed, using fallback outcome",
		slog.String("request_id", requestID),
		slog.String("reason", reason),
	)
	if t.notifier != nil {
		_ = t.notifier.Notify(ctx, notify.EventSettlementFailed,
			"Settlement failed",
			fmt.Sprintf("request %s: %s (recorded as unconfirmed loss)", requestID, reason),
		)
	}
}
