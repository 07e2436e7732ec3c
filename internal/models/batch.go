package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// BatchID derives a deterministic run identifier from the source file and job
// count, so a retried command resumes the same run. Changing either input
// produces a new id; global uniqueness is not a goal.
func BatchID(filePath string, total int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", filePath, total)))
	return hex.EncodeToString(sum[:])[:16]
}

// BatchRun is the persisted metadata for one batch dispatch attempt.
// NextIndex is the durable cursor: the lowest index not yet attempted, or
// Total once the run is complete.
type BatchRun struct {
	ID        string
	FilePath  string
	Total     int
	NextIndex int
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProcessedJob is one row of the processed-index set, the source of truth for
// resume. Rows are written once per attempt and never updated.
type ProcessedJob struct {
	BatchID   string
	Index     int
	Recipient string
	Success   bool
	Error     string
	CreatedAt time.Time
}

// ScheduledEmail is a deferred one-off send picked up by the scheduler poller.
type ScheduledEmail struct {
	ID        string
	Payload   Job
	SendAt    time.Time
	Status    string
	Error     string
	CreatedAt time.Time
}

// Scheduled email statuses.
const (
	ScheduledPending = "pending"
	ScheduledSent    = "sent"
	ScheduledFailed  = "failed"
)
