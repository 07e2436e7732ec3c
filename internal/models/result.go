package models

import "time"

// JobResult is the outcome of a single send attempt.
type JobResult struct {
	Index     int           `json:"index"`
	Recipient string        `json:"recipient"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// ProgressSnapshot is a transient view of dispatch counters, recomputed after
// every completion. It is never persisted.
type ProgressSnapshot struct {
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Success    int     `json:"success"`
	Failed     int     `json:"failed"`
	RatePerSec float64 `json:"rate_per_sec"`
	ETASeconds float64 `json:"eta_seconds"`
}

// RecipientTiming pairs a recipient with its send latency.
type RecipientTiming struct {
	Recipient string        `json:"recipient"`
	Duration  time.Duration `json:"duration"`
}

// FailedRecipient records a failed attempt for the final report.
type FailedRecipient struct {
	Index     int    `json:"index"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// BatchRunMetrics is assembled once, when the queue is fully drained.
// Counters cover only attempts made by this run; previously-resumed indices
// appear in Skipped.
type BatchRunMetrics struct {
	BatchID           string            `json:"batch_id"`
	Total             int               `json:"total"`
	Attempted         int               `json:"attempted"`
	Succeeded         int               `json:"succeeded"`
	Failed            int               `json:"failed"`
	Skipped           int               `json:"skipped"`
	SuccessRate       float64           `json:"success_rate"`
	ThroughputPerSec  float64           `json:"throughput_per_sec"`
	AverageSendMs     float64           `json:"average_send_ms"`
	TotalTime         time.Duration     `json:"total_time"`
	SlowestRecipients []RecipientTiming `json:"slowest_recipients"`
	FailedRecipients  []FailedRecipient `json:"failed_recipients"`
}
