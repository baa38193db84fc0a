// Package domain defines the core types for timed ("seconds") contracts,
// the error taxonomy, and the interfaces implemented by the cache, store,
// and blob packages.
package domain

import "time"

// Direction is the side of a timed contract. The wire values match the
// backend's tradeType field.
type Direction string

const (
	DirectionUp   Direction = "buy"
	DirectionDown Direction = "sell"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// ContractState is the lifecycle state of a contract. States never regress;
// Completed is terminal.
type ContractState string

const (
	StateIdle       ContractState = "idle"
	StateRequesting ContractState = "requesting"
	StateRunning    ContractState = "running"
	StateCompleted  ContractState = "completed"
)

// Result is the settled win/loss outcome of a contract.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
)

// Outcome is the settlement result of a contract. Profit is nil only when
// settlement could not be confirmed (the conservative fallback path); a
// confirmed outcome always carries the backend-provided figure, negative for
// a loss.
type Outcome struct {
	Result Result
	Profit *float64
}

// Confirmed reports whether the backend confirmed this outcome. A fallback
// outcome is never confirmed.
func (o Outcome) Confirmed() bool {
	return o.Profit != nil
}

// ContractRequest is the immutable set of parameters a caller submits to open
// a timed contract.
type ContractRequest struct {
	Direction       Direction
	Amount          float64
	DurationSeconds int
	FromAsset       string
	ToAsset         string
	OpenPrice       float64
	CreatedAt       time.Time
}

// Contract is the mutable lifecycle unit. It is created at submission time,
// mutated exclusively by the orchestrator's own callbacks, and discarded once
// its terminal outcome has been folded into trade history.
type Contract struct {
	// RequestID is set only after successful issuance. It is the idempotency
	// key for settlement; a contract never enters Running without one.
	RequestID string
	State     ContractState
	Request   ContractRequest
	Tier      DurationTier
	StartedAt time.Time
	Outcome   *Outcome
}

// Remaining computes the drift-corrected remaining seconds from the recorded
// start instant and the given wall-clock sample. It is derived state, never
// stored.
func (c *Contract) Remaining(now time.Time) int {
	if c.StartedAt.IsZero() {
		return c.Request.DurationSeconds
	}
	elapsed := int(now.Sub(c.StartedAt) / time.Second)
	remaining := c.Request.DurationSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
