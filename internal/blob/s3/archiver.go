package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// archiveBatchSize caps how many journal entries one archive cycle exports.
const archiveBatchSize = 5000

// JournalArchiver exports aged settlement journal entries to blob storage as
// JSONL and prunes them from the primary store afterwards. Entries are only
// deleted once the upload has succeeded.
type JournalArchiver struct {
	writer    domain.BlobWriter
	journal   domain.SettlementJournal
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJournalArchiver creates a JournalArchiver. retention is how long settled
// entries stay in the primary store before being exported.
func NewJournalArchiver(writer domain.BlobWriter, journal domain.SettlementJournal, retention time.Duration, logger *slog.Logger) *JournalArchiver {
	return &JournalArchiver{
		writer:    writer,
		journal:   journal,
		retention: retention,
		logger:    logger.With(slog.String("component", "journal_archiver")),
		now:       time.Now,
	}
}

// ArchiveOnce runs a single archive cycle: list entries settled before the
// retention cutoff, upload them as one JSONL object, then prune them. It
// returns the number of entries archived.
func (a *JournalArchiver) ArchiveOnce(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-a.retention)

	entries, err := a.journal.ListSettledBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal marshal: %w", err)
	}

	path := archivePath(cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive journal upload: %w", err)
	}

	// Prune only up to the newest archived entry so entries that settled
	// between the query and now are kept for the next cycle.
	pruneCutoff := entries[len(entries)-1].SettledAt.Add(time.Millisecond)
	if pruneCutoff.After(cutoff) {
		pruneCutoff = cutoff
	}
	deleted, err := a.journal.DeleteSettledBefore(ctx, pruneCutoff)
	if err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive journal prune: %w", err)
	}

	a.logger.InfoContext(ctx, "journal entries archived",
		slog.String("path", path),
		slog.Int("archived", len(entries)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(entries)), nil
}

// Run archives on the given interval until ctx ends. Errors are logged and
// the loop continues.
func (a *JournalArchiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "journal archiver started",
		slog.Duration("interval", interval),
		slog.Duration("retention", a.retention),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "journal archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time plus a day-level suffix to keep objects
// from one month distinct.
func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("archive/settlements/%s/%s.jsonl",
		cutoff.Format("2006-01"), cutoff.Format("2006-01-02T15-04-05"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL(entries []domain.JournalEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
