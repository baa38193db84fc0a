package exchange

import (
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// apiOpenRequest is the body of POST /api/request-seconds.
type apiOpenRequest struct {
	Seconds      int     `json:"seconds"`
	Amount       float64 `json:"amount"`
	TradeType    string  `json:"tradeType"`
	FromCurrency string  `json:"fromCurrency"`
	ToCurrency   string  `json:"toCurrency"`
	OpenPrice    float64 `json:"openPrice"`
}

// apiOpenResponse is the success body of POST /api/request-seconds.
type apiOpenResponse struct {
	RequestID string `json:"requestId"`
}

// apiSettleResponse is the body of POST /api/seconds/{requestId}/timeout.
// Status "completed" maps to a win; anything else is a loss.
type apiSettleResponse struct {
	Status string  `json:"status"`
	Profit float64 `json:"profit"`
}

// ToDomainOutcome maps the settlement response to a confirmed outcome. The
// backend-provided profit is authoritative in both directions.
func (r apiSettleResponse) ToDomainOutcome() domain.Outcome {
	result := domain.ResultLoss
	if r.Status == "completed" {
		result = domain.ResultWin
	}
	profit := r.Profit
	return domain.Outcome{Result: result, Profit: &profit}
}

// apiTrade is a row of GET /api/user/trades.
type apiTrade struct {
	ID            string   `json:"id"`
	TradeType     string   `json:"tradeType"`
	FromCurrency  string   `json:"fromCurrency"`
	ToCurrency    string   `json:"toCurrency"`
	Amount        float64  `json:"amount"`
	OpenPrice     float64  `json:"openPrice"`
	DeliveryPrice float64  `json:"deliveryPrice"`
	Profit        *float64 `json:"profit"`
	Status        string   `json:"status"`
	TradeMode     string   `json:"tradeMode"`
	CreatedAt     string   `json:"createdAt"`
}

// apiTradesResponse is the body of GET /api/user/trades.
type apiTradesResponse struct {
	Trades []apiTrade `json:"trades"`
}

// ToDomainTrade converts an API trade row to the domain representation.
// Timestamps the backend fails to format parse to the zero time.
func (t apiTrade) ToDomainTrade() domain.TradeRecord {
	createdAt, _ := time.Parse(time.RFC3339, t.CreatedAt)
	return domain.TradeRecord{
		ID:            t.ID,
		TradeType:     domain.Direction(t.TradeType),
		FromCurrency:  t.FromCurrency,
		ToCurrency:    t.ToCurrency,
		Amount:        t.Amount,
		OpenPrice:     t.OpenPrice,
		DeliveryPrice: t.DeliveryPrice,
		Profit:        t.Profit,
		Status:        domain.TradeStatus(t.Status),
		TradeMode:     domain.TradeMode(t.TradeMode),
		CreatedAt:     createdAt,
	}
}

// apiBalance is one entry of the profile balance array.
type apiBalance struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// apiProfileResponse is the body of GET /api/auth/profile, reduced to the
// fields this client consumes.
type apiProfileResponse struct {
	Balance []apiBalance `json:"balance"`
}
