package domain

import "time"

// TradeStatus is the backend's status bucket for trade history queries.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// TradeMode is the backend's product category. Timed contracts are the
// "Seconds" family, distinct from spot and swap trades in the surrounding
// system.
type TradeMode string

const (
	TradeModeSeconds TradeMode = "Seconds"
	TradeModeSpot    TradeMode = "Spot"
	TradeModeSwap    TradeMode = "Swap"
)

// TradeRecord is a row of the backend's trade history. The backend owns the
// persistence schema; this is only the client-side view.
type TradeRecord struct {
	ID            string
	TradeType     Direction
	FromCurrency  string
	ToCurrency    string
	Amount        float64
	OpenPrice     float64
	DeliveryPrice float64
	Profit        *float64
	Status        TradeStatus
	TradeMode     TradeMode
	CreatedAt     time.Time
}

// JournalEntry is a locally recorded settlement, confirmed or fallback. The
// journal is an audit artifact; the backend remains the source of truth for
// payout and history.
type JournalEntry struct {
	ID              string
	RequestID       string
	Direction       Direction
	Amount          float64
	DurationSeconds int
	FromAsset       string
	ToAsset         string
	OpenPrice       float64
	Result          Result
	Profit          *float64
	Confirmed       bool
	SettledAt       time.Time
}
