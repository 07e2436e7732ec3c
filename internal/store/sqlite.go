package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the embedded state database and applies the
// schema. An empty path means an in-memory database.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := trimmed == "" || trimmed == ":memory:" || strings.Contains(trimmed, "mode=memory")
	if trimmed == "" {
		trimmed = ":memory:"
	}
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set synchronous: %w", err)
		}
	}

	s := &sqliteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS batch_runs (
            id TEXT PRIMARY KEY,
            file_path TEXT NOT NULL,
            total INTEGER NOT NULL,
            next_index INTEGER NOT NULL DEFAULT 0,
            completed INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS processed_jobs (
            batch_id TEXT NOT NULL,
            job_index INTEGER NOT NULL,
            recipient TEXT NOT NULL,
            success INTEGER NOT NULL,
            error TEXT,
            created_at INTEGER NOT NULL,
            PRIMARY KEY (batch_id, job_index)
        );`,
		`CREATE TABLE IF NOT EXISTS scheduled_emails (
            id TEXT PRIMARY KEY,
            payload TEXT NOT NULL,
            send_at INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            error TEXT,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_emails(status, send_at);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) InitializeBatch(ctx context.Context, batchID, filePath string, total int) error {
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batch_runs (id, file_path, total, next_index, completed, created_at, updated_at)
         VALUES (?, ?, ?, 0, 0, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             file_path = excluded.file_path,
             total = excluded.total,
             next_index = 0,
             completed = 0,
             updated_at = excluded.updated_at;`,
		batchID, filePath, total, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert batch run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_jobs WHERE batch_id = ?;`, batchID); err != nil {
		return fmt.Errorf("clear processed rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit init: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadProcessed(ctx context.Context, batchID string) ([]models.ProcessedJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_index, recipient, success, COALESCE(error, ''), created_at
         FROM processed_jobs WHERE batch_id = ? ORDER BY job_index;`, batchID)
	if err != nil {
		return nil, fmt.Errorf("load processed: %w", err)
	}
	defer rows.Close()

	var out []models.ProcessedJob
	for rows.Next() {
		var (
			p       models.ProcessedJob
			success int
			created int64
		)
		if err := rows.Scan(&p.Index, &p.Recipient, &success, &p.Error, &created); err != nil {
			return nil, fmt.Errorf("scan processed row: %w", err)
		}
		p.BatchID = batchID
		p.Success = success != 0
		p.CreatedAt = time.Unix(created, 0)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed rows: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) RecordResult(ctx context.Context, batchID string, index int, recipient string, success bool, errText string) error {
	// First write wins: processed rows are terminal.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_jobs (batch_id, job_index, recipient, success, error, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(batch_id, job_index) DO NOTHING;`,
		batchID, index, recipient, boolInt(success), nullStr(errText), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (s *sqliteStore) UpdateBatchPosition(ctx context.Context, batchID string, nextIndex int, completed bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batch_runs SET next_index = ?, completed = ?, updated_at = ? WHERE id = ?;`,
		nextIndex, boolInt(completed), time.Now().Unix(), batchID,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}

func (s *sqliteStore) CleanupBatch(ctx context.Context, batchID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Re-check the persisted flag so we never race a concurrent resume.
	var completed int
	err = tx.QueryRowContext(ctx, `SELECT completed FROM batch_runs WHERE id = ?;`, batchID).Scan(&completed)
	if err == sql.ErrNoRows {
		// No run row to guard on: clear any processed rows stranded under
		// this id.
		if _, err := tx.ExecContext(ctx, `DELETE FROM processed_jobs WHERE batch_id = ?;`, batchID); err != nil {
			return fmt.Errorf("delete stranded rows: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit cleanup: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("check completed flag: %w", err)
	}
	if completed == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_jobs WHERE batch_id = ?;`, batchID); err != nil {
		return fmt.Errorf("delete processed rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_runs WHERE id = ?;`, batchID); err != nil {
		return fmt.Errorf("delete batch run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cleanup: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetBatch(ctx context.Context, batchID string) (models.BatchRun, bool, error) {
	var (
		run       models.BatchRun
		completed int
		created   int64
		updated   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, total, next_index, completed, created_at, updated_at
         FROM batch_runs WHERE id = ?;`, batchID).
		Scan(&run.ID, &run.FilePath, &run.Total, &run.NextIndex, &completed, &created, &updated)
	if err == sql.ErrNoRows {
		return models.BatchRun{}, false, nil
	}
	if err != nil {
		return models.BatchRun{}, false, fmt.Errorf("get batch: %w", err)
	}
	run.Completed = completed != 0
	run.CreatedAt = time.Unix(created, 0)
	run.UpdatedAt = time.Unix(updated, 0)
	return run, true, nil
}

func (s *sqliteStore) CountProcessed(ctx context.Context, batchID string) (int, int, error) {
	var processed, succeeded int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM processed_jobs WHERE batch_id = ?;`, batchID).
		Scan(&processed, &succeeded)
	if err != nil {
		return 0, 0, fmt.Errorf("count processed: %w", err)
	}
	return processed, succeeded, nil
}

func (s *sqliteStore) AddScheduled(ctx context.Context, e models.ScheduledEmail) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = models.ScheduledPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_emails (id, payload, send_at, status, error, created_at)
         VALUES (?, ?, ?, ?, ?, ?);`,
		e.ID, string(payload), e.SendAt.Unix(), e.Status, nullStr(e.Error), e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert scheduled: %w", err)
	}
	return nil
}

func (s *sqliteStore) DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.ScheduledEmail, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, send_at, status, COALESCE(error, ''), created_at
         FROM scheduled_emails
         WHERE status = ? AND send_at <= ?
         ORDER BY send_at LIMIT ?;`,
		models.ScheduledPending, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduledEmail
	for rows.Next() {
		var (
			e       models.ScheduledEmail
			payload string
			sendAt  int64
			created int64
		)
		if err := rows.Scan(&e.ID, &payload, &sendAt, &e.Status, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scan scheduled row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", e.ID, err)
		}
		e.SendAt = time.Unix(sendAt, 0)
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due rows: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) MarkScheduled(ctx context.Context, id, status, errText string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_emails SET status = ?, error = ? WHERE id = ?;`,
		status, nullStr(errText), id)
	if err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
