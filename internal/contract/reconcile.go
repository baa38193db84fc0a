package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quicktrade/secondsd/internal/domain"
)

// HistoryRefresher re-fetches trade history after a state transition so the
// settled contract becomes visible without manual merging.
type HistoryRefresher interface {
	Refresh(ctx context.Context, status domain.TradeStatus, mode domain.TradeMode) ([]domain.TradeRecord, error)
}

// Reconciler merges a settlement outcome into contract state. It is the only
// component permitted to transition a contract into a terminal state.
//
// Transition is pure and intended to run while the orchestrator holds its
// lock; Publish performs the follow-up I/O (journal, event bus, history
// refresh) on a snapshot, outside any lock. All side effects are best-effort:
// a journal or refresh failure never undoes a completed settlement.
type Reconciler struct {
	history HistoryRefresher
	journal domain.SettlementJournal
	bus     domain.SignalBus
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a Reconciler. history, journal, and bus may each be
// nil; the corresponding side effect is skipped.
func NewReconciler(history HistoryRefresher, journal domain.SettlementJournal, bus domain.SignalBus, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		history: history,
		journal: journal,
		bus:     bus,
		logger:  logger.With(slog.String("component", "reconciler")),
		now:     time.Now,
	}
}

// Transition folds the outcome into the contract and moves it to Completed.
// It returns a snapshot of the completed contract for Publish. Transitioning
// an already-completed contract is an error; the reconciler never runs twice
// for the same contract.
func (r *Reconciler) Transition(c *domain.Contract, outcome domain.Outcome) (domain.Contract, error) {
	if c.State == domain.StateCompleted {
		return domain.Contract{}, fmt.Errorf("reconcile: contract %s already completed", c.RequestID)
	}
	out := outcome
	c.Outcome = &out
	c.State = domain.StateCompleted
	return *c, nil
}

// Publish records the settlement journal entry, emits the completion event,
// and triggers a trade-history refresh for the completed bucket.
func (r *Reconciler) Publish(ctx context.Context, c domain.Contract) {
	outcome := c.Outcome
	if outcome == nil {
		return
	}

	if r.journal != nil {
		entry := domain.JournalEntry{
			ID:              uuid.New().String(),
			RequestID:       c.RequestID,
			Direction:       c.Request.Direction,
			Amount:          c.Request.Amount,
			DurationSeconds: c.Request.DurationSeconds,
			FromAsset:       c.Request.FromAsset,
			ToAsset:         c.Request.ToAsset,
			OpenPrice:       c.Request.OpenPrice,
			Result:          outcome.Result,
			Profit:          outcome.Profit,
			Confirmed:       outcome.Confirmed(),
			SettledAt:       r.now().UTC(),
		}
		if err := r.journal.Record(ctx, entry); err != nil {
			r.logger.WarnContext(ctx, "journal record failed",
				slog.String("request_id", c.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "contract_completed",
			"request_id": c.RequestID,
			"result":     string(outcome.Result),
			"confirmed":  outcome.Confirmed(),
		})
		if err := r.bus.Publish(ctx, domain.ChannelContracts, evt); err != nil {
			r.logger.WarnContext(ctx, "publish completion event failed",
				slog.String("request_id", c.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.history != nil {
		if _, err := r.history.Refresh(ctx, domain.TradeStatusCompleted, domain.TradeModeSeconds); err != nil {
			r.logger.WarnContext(ctx, "history refresh failed",
				slog.String("request_id", c.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.InfoContext(ctx, "contract completed",
		slog.String("request_id", c.RequestID),
		slog.String("result", string(outcome.Result)),
		slog.Bool("confirmed", outcome.Confirmed()),
	)
}
