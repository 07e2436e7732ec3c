package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool and applies the schema. Meant for
// deployments where several tools share one state database; a single
// dispatcher per batch id is still required.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &postgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *postgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS batch_runs (
            id TEXT PRIMARY KEY,
            file_path TEXT NOT NULL,
            total INTEGER NOT NULL,
            next_index INTEGER NOT NULL DEFAULT 0,
            completed BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS processed_jobs (
            batch_id TEXT NOT NULL,
            job_index INTEGER NOT NULL,
            recipient TEXT NOT NULL,
            success BOOLEAN NOT NULL,
            error TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (batch_id, job_index)
        );`,
		`CREATE TABLE IF NOT EXISTS scheduled_emails (
            id TEXT PRIMARY KEY,
            payload JSONB NOT NULL,
            send_at TIMESTAMPTZ NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            error TEXT,
            created_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_emails(status, send_at);`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) InitializeBatch(ctx context.Context, batchID, filePath string, total int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO batch_runs (id, file_path, total, next_index, completed, created_at, updated_at)
         VALUES ($1, $2, $3, 0, FALSE, NOW(), NOW())
         ON CONFLICT (id) DO UPDATE SET
             file_path = EXCLUDED.file_path,
             total = EXCLUDED.total,
             next_index = 0,
             completed = FALSE,
             updated_at = NOW();`,
		batchID, filePath, total,
	)
	if err != nil {
		return fmt.Errorf("upsert batch run: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM processed_jobs WHERE batch_id = $1;`, batchID); err != nil {
		return fmt.Errorf("clear processed rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit init: %w", err)
	}
	return nil
}

func (s *postgresStore) LoadProcessed(ctx context.Context, batchID string) ([]models.ProcessedJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_index, recipient, success, COALESCE(error, ''), created_at
         FROM processed_jobs WHERE batch_id = $1 ORDER BY job_index;`, batchID)
	if err != nil {
		return nil, fmt.Errorf("load processed: %w", err)
	}
	defer rows.Close()

	var out []models.ProcessedJob
	for rows.Next() {
		p := models.ProcessedJob{BatchID: batchID}
		if err := rows.Scan(&p.Index, &p.Recipient, &p.Success, &p.Error, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan processed row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed rows: %w", err)
	}
	return out, nil
}

func (s *postgresStore) RecordResult(ctx context.Context, batchID string, index int, recipient string, success bool, errText string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_jobs (batch_id, job_index, recipient, success, error, created_at)
         VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())
         ON CONFLICT (batch_id, job_index) DO NOTHING;`,
		batchID, index, recipient, success, errText,
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (s *postgresStore) UpdateBatchPosition(ctx context.Context, batchID string, nextIndex int, completed bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE batch_runs SET next_index = $1, completed = $2, updated_at = NOW() WHERE id = $3;`,
		nextIndex, completed, batchID,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}

func (s *postgresStore) CleanupBatch(ctx context.Context, batchID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var completed bool
	err = tx.QueryRow(ctx, `SELECT completed FROM batch_runs WHERE id = $1;`, batchID).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		// No run row to guard on: clear any processed rows stranded under
		// this id.
		if _, err := tx.Exec(ctx, `DELETE FROM processed_jobs WHERE batch_id = $1;`, batchID); err != nil {
			return fmt.Errorf("delete stranded rows: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit cleanup: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("check completed flag: %w", err)
	}
	if !completed {
		return nil
	}
	if _, err := tx.Exec(ctx, `DELETE FROM processed_jobs WHERE batch_id = $1;`, batchID); err != nil {
		return fmt.Errorf("delete processed rows: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM batch_runs WHERE id = $1;`, batchID); err != nil {
		return fmt.Errorf("delete batch run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cleanup: %w", err)
	}
	return nil
}

func (s *postgresStore) GetBatch(ctx context.Context, batchID string) (models.BatchRun, bool, error) {
	var run models.BatchRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, file_path, total, next_index, completed, created_at, updated_at
         FROM batch_runs WHERE id = $1;`, batchID).
		Scan(&run.ID, &run.FilePath, &run.Total, &run.NextIndex, &run.Completed, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BatchRun{}, false, nil
	}
	if err != nil {
		return models.BatchRun{}, false, fmt.Errorf("get batch: %w", err)
	}
	return run, true, nil
}

func (s *postgresStore) CountProcessed(ctx context.Context, batchID string) (int, int, error) {
	var processed, succeeded int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE success) FROM processed_jobs WHERE batch_id = $1;`, batchID).
		Scan(&processed, &succeeded)
	if err != nil {
		return 0, 0, fmt.Errorf("count processed: %w", err)
	}
	return processed, succeeded, nil
}

func (s *postgresStore) AddScheduled(ctx context.Context, e models.ScheduledEmail) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if e.Status == "" {
		e.Status = models.ScheduledPending
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scheduled_emails (id, payload, send_at, status, error, created_at)
         VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW());`,
		e.ID, payload, e.SendAt, e.Status, e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert scheduled: %w", err)
	}
	return nil
}

func (s *postgresStore) DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.ScheduledEmail, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, payload, send_at, status, COALESCE(error, ''), created_at
         FROM scheduled_emails
         WHERE status = $1 AND send_at <= $2
         ORDER BY send_at LIMIT $3;`,
		models.ScheduledPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduledEmail
	for rows.Next() {
		var (
			e       models.ScheduledEmail
			payload []byte
		)
		if err := rows.Scan(&e.ID, &payload, &e.SendAt, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled row: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due rows: %w", err)
	}
	return out, nil
}

func (s *postgresStore) MarkScheduled(ctx context.Context, id, status, errText string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scheduled_emails SET status = $1, error = NULLIF($2, '') WHERE id = $3;`,
		status, errText, id)
	if err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	return nil
}
