// Package progress computes live dispatch snapshots and renders them for
// terminal reporters.
package progress

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// Reporter receives a snapshot and its rendered bar after every completion.
// It is invoked synchronously from the dispatch loop and must not block.
type Reporter func(snap models.ProgressSnapshot, bar string)

// Compute builds a snapshot from raw counters. Rate is processed per elapsed
// second (elapsed floored to 1s); ETA is zero until the rate is positive.
func Compute(total, processed, success, failed int, elapsed time.Duration) models.ProgressSnapshot {
	sec := elapsed.Seconds()
	if sec < 1 {
		sec = 1
	}
	rate := float64(processed) / sec
	eta := 0.0
	if rate > 0 {
		eta = float64(total-processed) / rate
	}
	return models.ProgressSnapshot{
		Total:      total,
		Processed:  processed,
		Success:    success,
		Failed:     failed,
		RatePerSec: rate,
		ETASeconds: eta,
	}
}

const barWidth = 24

// RenderBar renders a single-line textual progress bar.
func RenderBar(snap models.ProgressSnapshot) string {
	pct := 0.0
	if snap.Total > 0 {
		pct = float64(snap.Processed) / float64(snap.Total)
	}
	filled := int(pct * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return fmt.Sprintf("[%s] %5.1f%% (%d/%d) ok=%d fail=%d %.1f/s eta %s",
		bar, pct*100, snap.Processed, snap.Total, snap.Success, snap.Failed,
		snap.RatePerSec, formatETA(snap.ETASeconds))
}

func formatETA(sec float64) string {
	if sec <= 0 {
		return "0s"
	}
	return (time.Duration(sec) * time.Second).Truncate(time.Second).String()
}

// Stderr returns a Reporter that redraws the bar in place on stderr.
func Stderr() Reporter {
	return func(snap models.ProgressSnapshot, bar string) {
		fmt.Fprintf(os.Stderr, "\r%s", bar)
		if snap.Processed >= snap.Total {
			fmt.Fprintln(os.Stderr)
		}
	}
}
