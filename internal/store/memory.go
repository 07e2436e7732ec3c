package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// Memory is an in-process Store for tests and dry runs. It honors the same
// first-write-wins and cleanup-only-when-completed semantics as the durable
// drivers.
type Memory struct {
	mu        sync.Mutex
	runs      map[string]models.BatchRun
	processed map[string]map[int]models.ProcessedJob
	scheduled map[string]models.ScheduledEmail

	// FailWrites makes RecordResult and UpdateBatchPosition fail, for
	// exercising swallowed persistence errors.
	FailWrites bool
	// FailReads makes InitializeBatch and LoadProcessed fail, for exercising
	// fatal startup errors.
	FailReads bool
}

type memoryErr string

func (e memoryErr) Error() string { return string(e) }

const errInjected = memoryErr("injected store failure")

func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[string]models.BatchRun),
		processed: make(map[string]map[int]models.ProcessedJob),
		scheduled: make(map[string]models.ScheduledEmail),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) InitializeBatch(_ context.Context, batchID, filePath string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return errInjected
	}
	now := time.Now()
	run, ok := m.runs[batchID]
	if !ok {
		run = models.BatchRun{ID: batchID, CreatedAt: now}
	}
	run.FilePath = filePath
	run.Total = total
	run.NextIndex = 0
	run.Completed = false
	run.UpdatedAt = now
	m.runs[batchID] = run
	m.processed[batchID] = make(map[int]models.ProcessedJob)
	return nil
}

func (m *Memory) LoadProcessed(_ context.Context, batchID string) ([]models.ProcessedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return nil, errInjected
	}
	rows := m.processed[batchID]
	out := make([]models.ProcessedJob, 0, len(rows))
	for _, p := range rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *Memory) RecordResult(_ context.Context, batchID string, index int, recipient string, success bool, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errInjected
	}
	rows, ok := m.processed[batchID]
	if !ok {
		rows = make(map[int]models.ProcessedJob)
		m.processed[batchID] = rows
	}
	if _, exists := rows[index]; exists {
		return nil
	}
	rows[index] = models.ProcessedJob{
		BatchID:   batchID,
		Index:     index,
		Recipient: recipient,
		Success:   success,
		Error:     errText,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *Memory) UpdateBatchPosition(_ context.Context, batchID string, nextIndex int, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errInjected
	}
	run, ok := m.runs[batchID]
	if !ok {
		return nil
	}
	run.NextIndex = nextIndex
	run.Completed = completed
	run.UpdatedAt = time.Now()
	m.runs[batchID] = run
	return nil
}

func (m *Memory) CleanupBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[batchID]
	if !ok {
		// No run row to guard on: clear any processed rows stranded under
		// this id.
		delete(m.processed, batchID)
		return nil
	}
	if !run.Completed {
		return nil
	}
	delete(m.runs, batchID)
	delete(m.processed, batchID)
	return nil
}

func (m *Memory) GetBatch(_ context.Context, batchID string) (models.BatchRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[batchID]
	return run, ok, nil
}

func (m *Memory) CountProcessed(_ context.Context, batchID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.processed[batchID]
	succeeded := 0
	for _, p := range rows {
		if p.Success {
			succeeded++
		}
	}
	return len(rows), succeeded, nil
}

// Seed pre-populates processed rows, simulating a partially completed run.
func (m *Memory) Seed(batchID, filePath string, total int, rows []models.ProcessedJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	next := 0
	byIndex := make(map[int]models.ProcessedJob, len(rows))
	for _, p := range rows {
		p.BatchID = batchID
		byIndex[p.Index] = p
	}
	for {
		if _, ok := byIndex[next]; !ok {
			break
		}
		next++
	}
	m.runs[batchID] = models.BatchRun{
		ID:        batchID,
		FilePath:  filePath,
		Total:     total,
		NextIndex: next,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.processed[batchID] = byIndex
}

func (m *Memory) AddScheduled(_ context.Context, e models.ScheduledEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == "" {
		e.Status = models.ScheduledPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.scheduled[e.ID] = e
	return nil
}

func (m *Memory) DueScheduled(_ context.Context, now time.Time, limit int) ([]models.ScheduledEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []models.ScheduledEmail
	for _, e := range m.scheduled {
		if e.Status == models.ScheduledPending && !e.SendAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendAt.Before(out[j].SendAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkScheduled(_ context.Context, id, status, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.scheduled[id]
	if !ok {
		return nil
	}
	e.Status = status
	e.Error = errText
	m.scheduled[id] = e
	return nil
}
