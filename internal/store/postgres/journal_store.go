package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quicktrade/secondsd/internal/domain"
)

// JournalStore implements domain.SettlementJournal using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

const journalSelectCols = `id, request_id, direction, amount, duration_seconds,
	from_asset, to_asset, open_price, result, profit, confirmed, settled_at`

func scanJournalRows(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Direction, &e.Amount, &e.DurationSeconds,
			&e.FromAsset, &e.ToAsset, &e.OpenPrice, &e.Result, &e.Profit,
			&e.Confirmed, &e.SettledAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Record inserts a settlement entry. Replays of the same request_id are
// silently skipped via ON CONFLICT DO NOTHING, keeping the journal
// idempotent per settlement key.
func (s *JournalStore) Record(ctx context.Context, entry domain.JournalEntry) error {
	const query = `
		INSERT INTO settlement_journal (
			id, request_id, direction, amount, duration_seconds,
			from_asset, to_asset, open_price, result, profit, confirmed, settled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		) ON CONFLICT (request_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.RequestID, entry.Direction, entry.Amount, entry.DurationSeconds,
		entry.FromAsset, entry.ToAsset, entry.OpenPrice, entry.Result, entry.Profit,
		entry.Confirmed, entry.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record settlement %s: %w", entry.RequestID, err)
	}
	return nil
}

// ListRecent returns the most recent settlements, newest first.
func (s *JournalStore) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlement_journal ORDER BY settled_at DESC LIMIT $1`, journalSelectCols)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent settlements: %w", err)
	}
	defer rows.Close()

	entries, err := scanJournalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements: %w", err)
	}
	return entries, nil
}

// ListSettledBefore returns settlements older than cutoff, oldest first, for
// archival.
func (s *JournalStore) ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.JournalEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlement_journal WHERE settled_at < $1 ORDER BY settled_at ASC LIMIT $2`, journalSelectCols)

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	entries, err := scanJournalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements: %w", err)
	}
	return entries, nil
}

// DeleteSettledBefore prunes settlements older than cutoff and returns the
// number of rows removed.
func (s *JournalStore) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM settlement_journal WHERE settled_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlements before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SettlementJournal = (*JournalStore)(nil)
