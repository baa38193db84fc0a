package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// ContractOrchestrator is the slice of the orchestrator the handler uses.
type ContractOrchestrator interface {
	Submit(ctx context.Context, req domain.ContractRequest, availableBalance float64) (domain.Contract, error)
	Get(requestID string) (domain.Contract, bool)
	Remaining(requestID string) (int, error)
	Dismiss(requestID string) error
}

// PriceSource supplies the latest reference price for an instrument symbol.
type PriceSource interface {
	Latest(ctx context.Context, symbol string) (float64, error)
}

// BalanceSource reads the caller's available balance from the backend
// profile.
type BalanceSource interface {
	Balance(ctx context.Context, currency string) (float64, error)
}

// ContractHandler serves the contract lifecycle endpoints.
type ContractHandler struct {
	orch    ContractOrchestrator
	prices  PriceSource
	balance BalanceSource
	tiers   *domain.TierTable
	logger  *slog.Logger
	now     func() time.Time
}

// NewContractHandler creates a ContractHandler. prices may be nil, in which
// case open requests must carry an explicit open_price.
func NewContractHandler(orch ContractOrchestrator, prices PriceSource, balance BalanceSource, tiers *domain.TierTable, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{
		orch:    orch,
		prices:  prices,
		balance: balance,
		tiers:   tiers,
		logger:  logger.With(slog.String("handler", "contract")),
		now:     time.Now,
	}
}

// openRequest is the POST /api/contracts body.
type openRequest struct {
	Direction       string  `json:"direction"`
	Amount          float64 `json:"amount"`
	DurationSeconds int     `json:"duration_seconds"`
	FromAsset       string  `json:"from_asset"`
	ToAsset         string  `json:"to_asset"`
	OpenPrice       float64 `json:"open_price,omitempty"`
}

// contractJSON is the wire view of a contract snapshot.
type contractJSON struct {
	RequestID        string       `json:"request_id"`
	State            string       `json:"state"`
	Direction        string       `json:"direction"`
	Amount           float64      `json:"amount"`
	DurationSeconds  int          `json:"duration_seconds"`
	PayoutRate       float64      `json:"payout_rate_percent"`
	FromAsset        string       `json:"from_asset"`
	ToAsset          string       `json:"to_asset"`
	OpenPrice        float64      `json:"open_price"`
	StartedAt        time.Time    `json:"started_at"`
	RemainingSeconds int          `json:"remaining_seconds"`
	Outcome          *outcomeJSON `json:"outcome,omitempty"`
}

type outcomeJSON struct {
	Result    string   `json:"result"`
	Profit    *float64 `json:"profit"`
	Confirmed bool     `json:"confirmed"`
}

func (h *ContractHandler) contractView(c domain.Contract) contractJSON {
	v := contractJSON{
		RequestID:       c.RequestID,
		State:           string(c.State),
		Direction:       string(c.Request.Direction),
		Amount:          c.Request.Amount,
		DurationSeconds: c.Request.DurationSeconds,
		PayoutRate:      c.Tier.PayoutRatePercent,
		FromAsset:       c.Request.FromAsset,
		ToAsset:         c.Request.ToAsset,
		OpenPrice:       c.Request.OpenPrice,
		StartedAt:       c.StartedAt,
	}
	if c.State == domain.StateRunning {
		v.RemainingSeconds = c.Remaining(h.now())
	}
	if c.Outcome != nil {
		v.Outcome = &outcomeJSON{
			Result:    string(c.Outcome.Result),
			Profit:    c.Outcome.Profit,
			Confirmed: c.Outcome.Confirmed(),
		}
	}
	return v
}

// OpenContract validates and issues a new timed contract.
// POST /api/contracts
func (h *ContractHandler) OpenContract(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	dir := domain.Direction(body.Direction)
	if !dir.Valid() {
		writeError(w, http.StatusBadRequest, "direction must be \"buy\" or \"sell\"")
		return
	}
	if body.FromAsset == "" || body.ToAsset == "" {
		writeError(w, http.StatusBadRequest, "from_asset and to_asset are required")
		return
	}

	openPrice := body.OpenPrice
	if openPrice == 0 {
		if h.prices == nil {
			writeError(w, http.StatusBadRequest, "open_price is required")
			return
		}
		p, err := h.prices.Latest(r.Context(), body.FromAsset+body.ToAsset)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "no reference price available")
			return
		}
		openPrice = p
	}

	balance, err := h.balance.Balance(r.Context(), body.FromAsset)
	if err != nil {
		h.logger.WarnContext(r.Context(), "balance lookup failed",
			slog.String("currency", body.FromAsset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "balance lookup failed")
		return
	}

	req := domain.ContractRequest{
		Direction:       dir,
		Amount:          body.Amount,
		DurationSeconds: body.DurationSeconds,
		FromAsset:       body.FromAsset,
		ToAsset:         body.ToAsset,
		OpenPrice:       openPrice,
		CreatedAt:       h.now().UTC(),
	}

	c, err := h.orch.Submit(r.Context(), req, balance)
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.contractView(c))
}

// writeSubmitError maps the submission error taxonomy onto HTTP statuses.
func (h *ContractHandler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  verr.Message,
			"reason": string(verr.Reason),
		})
		return
	}

	var ierr *domain.IssueError
	if errors.As(err, &ierr) {
		switch ierr.Kind {
		case domain.IssueUnauthorized:
			writeError(w, http.StatusUnauthorized, "backend rejected credentials")
		default:
			writeError(w, http.StatusBadGateway, "contract request failed")
		}
		return
	}

	if errors.Is(err, domain.ErrUnknownDuration) {
		writeError(w, http.StatusBadRequest, "no tier for requested duration")
		return
	}

	h.logger.ErrorContext(r.Context(), "submit failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// GetContract returns a contract snapshot with its drift-corrected countdown.
// GET /api/contracts/{id}
func (h *ContractHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	c, ok := h.orch.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	writeJSON(w, http.StatusOK, h.contractView(c))
}

// DismissContract drops a completed contract. Running contracts cannot be
// dismissed; the backend has already committed to settling them.
// DELETE /api/contracts/{id}
func (h *ContractHandler) DismissContract(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	switch err := h.orch.Dismiss(id); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "contract not found")
	case errors.Is(err, domain.ErrStillRunning):
		writeError(w, http.StatusConflict, "contract still running")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ListTiers returns the configured duration tier sheet.
// GET /api/tiers
func (h *ContractHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	type tierJSON struct {
		DurationSeconds int     `json:"duration_seconds"`
		PayoutRate      float64 `json:"payout_rate_percent"`
		MinAmount       float64 `json:"min_amount"`
		MaxAmount       float64 `json:"max_amount"`
	}

	tiers := h.tiers.All()
	out := make([]tierJSON, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, tierJSON{
			DurationSeconds: t.DurationSeconds,
			PayoutRate:      t.PayoutRatePercent,
			MinAmount:       t.MinAmount,
			MaxAmount:       t.MaxAmount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": out})
}
