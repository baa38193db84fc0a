package domain

import (
	"context"
	"io"
	"time"
)

// SettlementJournal persists settlement outcomes for audit. Record must be
// idempotent on RequestID so a replayed settlement never produces a second
// row.
type SettlementJournal interface {
	Record(ctx context.Context, entry JournalEntry) error
	ListRecent(ctx context.Context, limit int) ([]JournalEntry, error)
	ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]JournalEntry, error)
	DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceCache stores the latest reference price per instrument symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// LockManager provides distributed locks. Acquire returns an unlock function
// on success and ErrLockHeld when another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Signal bus channels used across the process boundary.
const (
	ChannelContracts = "contracts"
	ChannelHistory   = "history"
)

// SignalBus is a lightweight publish/subscribe event bus.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
