package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// TradeLister refreshes and returns trade history from the backend.
type TradeLister interface {
	Refresh(ctx context.Context, status domain.TradeStatus, mode domain.TradeMode) ([]domain.TradeRecord, error)
}

// TradeHandler serves trade history and the local settlement journal.
type TradeHandler struct {
	history TradeLister
	journal domain.SettlementJournal
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler. journal may be nil, in which case
// the journal endpoint reports 404.
func NewTradeHandler(history TradeLister, journal domain.SettlementJournal, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		history: history,
		journal: journal,
		logger:  logger.With(slog.String("handler", "trades")),
	}
}

type tradeJSON struct {
	ID            string    `json:"id"`
	TradeType     string    `json:"trade_type"`
	FromCurrency  string    `json:"from_currency"`
	ToCurrency    string    `json:"to_currency"`
	Amount        float64   `json:"amount"`
	OpenPrice     float64   `json:"open_price"`
	DeliveryPrice float64   `json:"delivery_price"`
	Profit        *float64  `json:"profit"`
	Status        string    `json:"status"`
	TradeMode     string    `json:"trade_mode"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListTrades returns the user's trade history for a status bucket.
// GET /api/trades?status=completed&mode=Seconds
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	status := domain.TradeStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.TradeStatusCompleted
	}
	switch status {
	case domain.TradeStatusPending, domain.TradeStatusCompleted, domain.TradeStatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	mode := domain.TradeMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = domain.TradeModeSeconds
	}

	trades, err := h.history.Refresh(r.Context(), status, mode)
	if err != nil {
		h.logger.WarnContext(r.Context(), "history refresh failed",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "trade history unavailable")
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
			ID:            t.ID,
			TradeType:     string(t.TradeType),
			FromCurrency:  t.FromCurrency,
			ToCurrency:    t.ToCurrency,
			Amount:        t.Amount,
			OpenPrice:     t.OpenPrice,
			DeliveryPrice: t.DeliveryPrice,
			Profit:        t.Profit,
			Status:        string(t.Status),
			TradeMode:     string(t.TradeMode),
			CreatedAt:     t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

type journalJSON struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"request_id"`
	Direction       string    `json:"direction"`
	Amount          float64   `json:"amount"`
	DurationSeconds int       `json:"duration_seconds"`
	FromAsset       string    `json:"from_asset"`
	ToAsset         string    `json:"to_asset"`
	OpenPrice       float64   `json:"open_price"`
	Result          string    `json:"result"`
	Profit          *float64  `json:"profit"`
	Confirmed       bool      `json:"confirmed"`
	SettledAt       time.Time `json:"settled_at"`
}

// ListJournal returns the most recent local settlement journal entries.
// GET /api/journal?limit=50
func (h *TradeHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "journal not configured")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	entries, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.WarnContext(r.Context(), "journal query failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}

	out := make([]journalJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalJSON{
			ID:              e.ID,
			RequestID:       e.RequestID,
			Direction:       string(e.Direction),
			Amount:          e.Amount,
			DurationSeconds: e.DurationSeconds,
			FromAsset:       e.FromAsset,
			ToAsset:         e.ToAsset,
			OpenPrice:       e.OpenPrice,
			Result:          string(e.Result),
			Profit:          e.Profit,
			Confirmed:       e.Confirmed,
			SettledAt:       e.SettledAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
