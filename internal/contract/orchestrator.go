package contract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// Issuer sends the open request to the backend and returns the contract's
// requestId.
type Issuer interface {
	OpenSeconds(ctx context.Context, req domain.ContractRequest) (string, error)
}

// TickObserver receives countdown updates for a running contract.
type TickObserver func(requestID string, remaining int)

// entry pairs an in-flight contract with its countdown timer.
type entry struct {
	contract *domain.Contract
	timer    *Timer
}

// Orchestrator composes validator, issuer, timer, settlement trigger, and
// reconciler into the contract state machine:
//
//	Idle → Requesting → Running → Completed
//
// One orchestrator manages any number of concurrent contracts, keyed by
// requestId. The in-flight map is mutated only by the orchestrator's own
// callbacks (submission, expiry, dismissal); external code observes contracts
// through snapshots and never writes state or outcome directly.
//
// Timers run under the orchestrator's base context, not the submitting
// caller's: a caller disconnecting never abandons a running contract's
// settlement obligation.
type Orchestrator struct {
	issuer     Issuer
	trigger    *Trigger
	reconciler *Reconciler
	tiers      *domain.TierTable
	logger     *slog.Logger

	tickInterval time.Duration
	clock        func() time.Time
	onTick       TickObserver

	mu       sync.Mutex
	inflight map[string]*entry
	baseCtx  context.Context
}

// NewOrchestrator creates an Orchestrator. Start must be called before the
// first Submit.
func NewOrchestrator(issuer Issuer, trigger *Trigger, reconciler *Reconciler, tiers *domain.TierTable, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		issuer:       issuer,
		trigger:      trigger,
		reconciler:   reconciler,
		tiers:        tiers,
		logger:       logger.With(slog.String("component", "orchestrator")),
		tickInterval: time.Second,
		clock:        time.Now,
		inflight:     make(map[string]*entry),
		baseCtx:      context.Background(),
	}
}

// SetTickInterval overrides the timer cadence. Must be called before Start.
func (o *Orchestrator) SetTickInterval(d time.Duration) {
	o.tickInterval = d
}

// SetClock overrides the wall-clock source. Must be called before Start.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.clock = now
}

// SetTickObserver registers a countdown observer (e.g. the WebSocket hub).
// Must be called before Start.
func (o *Orchestrator) SetTickObserver(fn TickObserver) {
	o.onTick = fn
}

// Start binds the orchestrator to its supervising context. Timers and
// settlement calls run under ctx and survive individual API callers.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()
}

// Submit validates and issues a new timed contract. On success the returned
// snapshot is Running and its countdown has started. On failure no contract
// state exists: validation errors (*domain.ValidationError) never reach the
// network, and issue errors (*domain.IssueError) allocate neither requestId
// nor timer.
func (o *Orchestrator) Submit(ctx context.Context, req domain.ContractRequest, availableBalance float64) (domain.Contract, error) {
	tier, ok := o.tiers.ByDuration(req.DurationSeconds)
	if !ok {
		return domain.Contract{}, fmt.Errorf("submit %ds: %w", req.DurationSeconds, domain.ErrUnknownDuration)
	}

	if verr := Validate(req, tier, availableBalance); verr != nil {
		return domain.Contract{}, verr
	}

	// Requesting: the only suspension point before Running.
	requestID, err := o.issuer.OpenSeconds(ctx, req)
	if err != nil {
		return domain.Contract{}, err
	}
	if requestID == "" {
		// Defensive: refuse to start a timer without a settlement key even
		// if the issuer failed to reject this itself.
		return domain.Contract{}, &domain.IssueError{Kind: domain.IssueInvalidResponse, Err: fmt.Errorf("issuer returned empty requestId")}
	}

	o.mu.Lock()
	baseCtx := o.baseCtx
	c := &domain.Contract{
		RequestID: requestID,
		State:     domain.StateRunning,
		Request:   req,
		Tier:      tier,
		StartedAt: o.clock(),
	}

	timer := NewTimer(req.DurationSeconds,
		func(remaining int) { o.notifyTick(requestID, remaining) },
		func() { o.expire(requestID) },
	)
	timer.SetInterval(o.tickInterval)
	timer.SetClock(o.clock)

	o.inflight[requestID] = &entry{contract: c, timer: timer}
	snapshot := *c
	o.mu.Unlock()

	timer.Start(baseCtx)

	o.logger.InfoContext(ctx, "contract running",
		slog.String("request_id", requestID),
		slog.String("direction", string(req.Direction)),
		slog.Float64("amount", req.Amount),
		slog.Int("duration_s", req.DurationSeconds),
	)

	return snapshot, nil
}

// Get returns a snapshot of the contract with the given requestId.
func (o *Orchestrator) Get(requestID string) (domain.Contract, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.inflight[requestID]
	if !ok {
		return domain.Contract{}, false
	}
	return *e.contract, true
}

// Remaining returns the drift-corrected remaining seconds for a running
// contract; zero once it has completed.
func (o *Orchestrator) Remaining(requestID string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.inflight[requestID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if e.contract.State == domain.StateCompleted {
		return 0, nil
	}
	return e.contract.Remaining(o.clock()), nil
}

// Dismiss drops a completed contract from the in-flight map. A running
// contract cannot be dismissed: the backend has already committed to settling
// it, and abandoning it locally would desynchronize client and backend state.
func (o *Orchestrator) Dismiss(requestID string) error {
	o.mu.Lock()
	e, ok := o.inflight[requestID]
	if !ok {
		o.mu.Unlock()
		return domain.ErrNotFound
	}
	if e.contract.State != domain.StateCompleted {
		o.mu.Unlock()
		return domain.ErrStillRunning
	}
	delete(o.inflight, requestID)
	o.mu.Unlock()

	e.timer.Stop()
	o.trigger.Forget(requestID)

	o.logger.Info("contract dismissed", slog.String("request_id", requestID))
	return nil
}

// InFlight returns the number of contracts not yet dismissed.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// StopAll halts every countdown without settling. Used on process shutdown;
// the backend's own expiry enforcement covers contracts left open.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	timers := make([]*Timer, 0, len(o.inflight))
	for _, e := range o.inflight {
		timers = append(timers, e.timer)
	}
	o.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// expire is the timer's single expiry callback: settle exactly once, then
// reconcile the outcome into the terminal state. It runs on the timer
// goroutine under the orchestrator's base context.
func (o *Orchestrator) expire(requestID string) {
	o.mu.Lock()
	ctx := o.baseCtx
	o.mu.Unlock()

	outcome := o.trigger.Settle(ctx, requestID)

	o.mu.Lock()
	e, ok := o.inflight[requestID]
	if !ok {
		o.mu.Unlock()
		return
	}
	snapshot, err := o.reconciler.Transition(e.contract, outcome)
	o.mu.Unlock()

	if err != nil {
		// Duplicate expiry signal arrived after completion; the first
		// transition already won.
		o.logger.Warn("duplicate expiry ignored", slog.String("request_id", requestID))
		return
	}

	o.reconciler.Publish(ctx, snapshot)
}

func (o *Orchestrator) notifyTick(requestID string, remaining int) {
	if o.onTick != nil {
		o.onTick(requestID, remaining)
	}
}
