// Package store implements durable batch state for resumability and audit.
// Writes are individually atomic; the dispatcher performs no cross-process
// coordination on top of them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// BatchStore is the persistence contract for batch dispatch runs.
//
// InitializeBatch and LoadProcessed errors are fatal to a run; RecordResult
// and UpdateBatchPosition errors are logged and swallowed by the caller so a
// storage hiccup never kills in-flight sends.
type BatchStore interface {
	// InitializeBatch upserts the run row, resets the cursor to 0 and clears
	// stale processed rows. Called only when not resuming.
	InitializeBatch(ctx context.Context, batchID, filePath string, total int) error
	// LoadProcessed returns every processed row for the batch, empty if the
	// batch is unknown.
	LoadProcessed(ctx context.Context, batchID string) ([]models.ProcessedJob, error)
	// RecordResult writes one processed row keyed by (batchID, index). The
	// first write wins; replays are no-ops.
	RecordResult(ctx context.Context, batchID string, index int, recipient string, success bool, errText string) error
	// UpdateBatchPosition advances the durable cursor.
	UpdateBatchPosition(ctx context.Context, batchID string, nextIndex int, completed bool) error
	// CleanupBatch deletes the run and its processed rows, but only if the
	// persisted completed flag is set.
	CleanupBatch(ctx context.Context, batchID string) error
	// GetBatch fetches run metadata, reporting whether the row exists.
	GetBatch(ctx context.Context, batchID string) (models.BatchRun, bool, error)
	// CountProcessed returns processed/success totals for status reporting.
	CountProcessed(ctx context.Context, batchID string) (processed, succeeded int, err error)
	Close() error
}

// ScheduleStore persists deferred one-off sends for the scheduler poller.
type ScheduleStore interface {
	AddScheduled(ctx context.Context, s models.ScheduledEmail) error
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.ScheduledEmail, error)
	MarkScheduled(ctx context.Context, id, status, errText string) error
}

// Store is the full persistence surface.
type Store interface {
	BatchStore
	ScheduleStore
}

// Config selects and configures a driver.
//
// Driver values: "sqlite" (default), "postgres", "memory".
type Config struct {
	Driver string
	Path   string // sqlite file path; ":memory:" for tests
	DSN    string // postgres connection string
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres", "pgx":
		return OpenPostgres(ctx, cfg.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
