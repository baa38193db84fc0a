package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktrade/secondsd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memBlobWriter captures uploads in memory.
type memBlobWriter struct {
	paths        []string
	contentTypes []string
	bodies       [][]byte
	err          error
}

func (w *memBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.contentTypes = append(w.contentTypes, contentType)
	w.bodies = append(w.bodies, body)
	return nil
}

// memJournal is an in-memory SettlementJournal keyed by request id.
type memJournal struct {
	entries   []domain.JournalEntry
	listErr   error
	deleteErr error
}

func (j *memJournal) Record(ctx context.Context, entry domain.JournalEntry) error {
	for _, e := range j.entries {
		if e.RequestID == entry.RequestID {
			return nil
		}
	}
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memJournal) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	return j.entries, nil
}

func (j *memJournal) ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.JournalEntry, error) {
	if j.listErr != nil {
		return nil, j.listErr
	}
	var out []domain.JournalEntry
	for _, e := range j.entries {
		if e.SettledAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SettledAt.Before(out[b].SettledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *memJournal) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if j.deleteErr != nil {
		return 0, j.deleteErr
	}
	var kept []domain.JournalEntry
	var deleted int64
	for _, e := range j.entries {
		if e.SettledAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	j.entries = kept
	return deleted, nil
}

func entryAt(requestID string, settledAt time.Time) domain.JournalEntry {
	return domain.JournalEntry{
		RequestID:       requestID,
		Direction:       domain.DirectionUp,
		Amount:          5_000,
		DurationSeconds: 30,
		FromAsset:       "USDT",
		ToAsset:         "BTC",
		OpenPrice:       65_000,
		Result:          domain.ResultWin,
		Confirmed:       true,
		SettledAt:       settledAt,
	}
}

func newTestArchiver(writer *memBlobWriter, journal *memJournal, now time.Time) *JournalArchiver {
	a := NewJournalArchiver(writer, journal, 30*24*time.Hour, testLogger())
	a.now = func() time.Time { return now }
	return a
}

func TestArchiveOnceExportsAndPrunes(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	journal := &memJournal{entries: []domain.JournalEntry{
		entryAt("r-old-1", old),
		entryAt("r-old-2", old.Add(time.Minute)),
		entryAt("r-recent", recent),
	}}
	writer := &memBlobWriter{}
	a := newTestArchiver(writer, journal, now)

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, writer.bodies, 1)
	assert.Equal(t, "application/x-ndjson", writer.contentTypes[0])
	assert.Contains(t, writer.paths[0], "archive/settlements/2025-06/")

	// Two JSONL lines, in settlement order.
	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(writer.bodies[0]))
	for scanner.Scan() {
		var e domain.JournalEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		ids = append(ids, e.RequestID)
	}
	assert.Equal(t, []string{"r-old-1", "r-old-2"}, ids)

	// Only the recent entry survives the prune.
	require.Len(t, journal.entries, 1)
	assert.Equal(t, "r-recent", journal.entries[0].RequestID)
}

func TestArchiveOnceNothingToDo(t *testing.T) {
	now := time.Now()
	journal := &memJournal{entries: []domain.JournalEntry{entryAt("r-1", now)}}
	writer := &memBlobWriter{}
	a := newTestArchiver(writer, journal, now)

	n, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.paths, "no upload for an empty batch")
	assert.Len(t, journal.entries, 1)
}

func TestArchiveOnceUploadFailureKeepsEntries(t *testing.T) {
	now := time.Now()
	journal := &memJournal{entries: []domain.JournalEntry{
		entryAt("r-1", now.Add(-60*24*time.Hour)),
	}}
	writer := &memBlobWriter{err: errors.New("bucket gone")}
	a := newTestArchiver(writer, journal, now)

	_, err := a.ArchiveOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, journal.entries, 1, "entries must survive a failed upload")
}

func TestArchiveOnceQueryFailure(t *testing.T) {
	journal := &memJournal{listErr: errors.New("db down")}
	a := newTestArchiver(&memBlobWriter{}, journal, time.Now())

	_, err := a.ArchiveOnce(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestArchiver(&memBlobWriter{}, &memJournal{}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
