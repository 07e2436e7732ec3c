package dispatch

import (
	"sort"
	"time"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// assembleMetrics folds the run state into the final report. Success rate is
// vacuously 100 when nothing was attempted; a failed call still consumed
// time, so averages cover failures too.
func assembleMetrics(st *runState, skipped int, elapsed time.Duration) models.BatchRunMetrics {
	m := models.BatchRunMetrics{
		BatchID:          st.batchID,
		Total:            st.total,
		Attempted:        st.attempted,
		Succeeded:        st.succeededRun,
		Failed:           st.failedRun,
		Skipped:          skipped,
		TotalTime:        elapsed,
		SuccessRate:      100,
		FailedRecipients: st.failures,
	}

	if st.attempted > 0 {
		m.SuccessRate = float64(st.succeededRun) / float64(st.attempted) * 100
		m.AverageSendMs = float64(st.totalSend) / float64(time.Millisecond) / float64(st.attempted)
	}
	if sec := elapsed.Seconds(); sec > 0 {
		m.ThroughputPerSec = float64(st.attempted) / sec
	}

	timings := append([]models.RecipientTiming(nil), st.timings...)
	sort.SliceStable(timings, func(i, j int) bool {
		return timings[i].Duration > timings[j].Duration
	})
	if len(timings) > slowestLimit {
		timings = timings[:slowestLimit]
	}
	m.SlowestRecipients = timings

	return m
}
