// Package dispatch runs batches of outbound jobs through a transport under a
// self-tuning worker pool, persisting enough state to resume a partial run.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/metrics"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/progress"
	"github.com/mailgoatai/mailgoat-sub001/internal/store"
)

const (
	slowestLimit = 5
	failedLimit  = 20
)

// Options configures a single batch run.
type Options struct {
	// FilePath feeds the deterministic batch id and is persisted for audit.
	FilePath string
	// BatchID overrides the derived id when set.
	BatchID string
	// Concurrency is the requested pool size, clamped to [1,50].
	Concurrency int
	// Resume skips indices already recorded for this batch id instead of
	// resetting its state.
	Resume bool
}

// Dispatcher coordinates the admission loop, the transport workers, the
// concurrency controller and the state store.
type Dispatcher struct {
	store  store.BatchStore
	sender mail.Sender
	log    *zap.Logger
}

func New(st store.BatchStore, sender mail.Sender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: st, sender: sender, log: log}
}

// settled carries a worker's outcome back to the admission loop.
type settled struct {
	index     int
	recipient string
	duration  time.Duration
	err       error
}

// runState holds every counter the admission loop owns. All mutation happens
// on the loop goroutine; workers only send settled values over the channel.
type runState struct {
	batchID string
	total   int

	done    []bool
	lowMark int // lowest index not yet attempted

	processed int // includes rows resumed from a previous run
	success   int
	failed    int

	attempted    int
	succeededRun int
	failedRun    int
	totalSend    time.Duration

	timings  []models.RecipientTiming
	failures []models.FailedRecipient
}

// Run attempts every job exactly once (modulo prior resume state) and returns
// final metrics. Only structural failures (invalid input, unreadable state at
// startup) produce an error; per-job failures are counted, never fatal.
func (d *Dispatcher) Run(ctx context.Context, jobs []models.Job, opts Options, report progress.Reporter) (models.BatchRunMetrics, error) {
	if err := models.ValidateJobs(jobs); err != nil {
		return models.BatchRunMetrics{}, fmt.Errorf("validate batch: %w", err)
	}

	batchID := opts.BatchID
	if batchID == "" {
		batchID = models.BatchID(opts.FilePath, len(jobs))
	}

	st := &runState{
		batchID: batchID,
		total:   len(jobs),
		done:    make([]bool, len(jobs)),
	}

	if opts.Resume {
		rows, err := d.store.LoadProcessed(ctx, batchID)
		if err != nil {
			return models.BatchRunMetrics{}, fmt.Errorf("load resume state: %w", err)
		}
		for _, row := range rows {
			if row.Index < 0 || row.Index >= st.total {
				continue
			}
			if st.done[row.Index] {
				continue
			}
			st.done[row.Index] = true
			st.processed++
			if row.Success {
				st.success++
			} else {
				st.failed++
			}
		}
	} else {
		if err := d.store.InitializeBatch(ctx, batchID, opts.FilePath, st.total); err != nil {
			return models.BatchRunMetrics{}, fmt.Errorf("initialize batch: %w", err)
		}
	}

	// Remaining work in original ascending order: the earliest never-attempted
	// job is always served first.
	queue := make([]int, 0, st.total-st.processed)
	for i := range jobs {
		if !st.done[i] {
			queue = append(queue, i)
		}
	}
	skipped := st.processed

	ctrl := NewController(opts.Concurrency)
	metrics.EffectiveConcurrency.Set(float64(ctrl.Current()))

	start := time.Now()
	settledCh := make(chan settled)
	next := 0
	inFlight := 0

	for next < len(queue) || inFlight > 0 {
		now := time.Now()
		cooldown := ctrl.CooldownRemaining(now)

		if ctx.Err() == nil && next < len(queue) && inFlight < ctrl.Current() && cooldown == 0 {
			idx := queue[next]
			next++
			inFlight++
			go d.worker(ctx, idx, jobs[idx], settledCh)
			continue
		}

		if inFlight == 0 {
			if ctx.Err() != nil {
				break
			}
			// Cooldown with an empty pool: sleep it out.
			if !sleepCtx(ctx, cooldown) {
				break
			}
			continue
		}

		if cooldown > 0 && ctx.Err() == nil {
			timer := time.NewTimer(cooldown)
			select {
			case res := <-settledCh:
				timer.Stop()
				inFlight--
				d.settle(ctx, st, ctrl, res, start, report)
			case <-timer.C:
			}
			continue
		}

		res := <-settledCh
		inFlight--
		d.settle(ctx, st, ctrl, res, start, report)
	}

	elapsed := time.Since(start)

	if st.processed == st.total {
		// A fully resumed batch settles nothing, leaving the durable
		// completed flag false; persist it before cleanup re-checks it.
		if err := d.store.UpdateBatchPosition(ctx, batchID, st.total, true); err != nil {
			d.log.Warn("update batch position failed",
				zap.String("batch_id", batchID),
				zap.Int("next_index", st.total),
				zap.Error(err),
			)
		}
		if err := d.store.CleanupBatch(ctx, batchID); err != nil {
			d.log.Warn("batch cleanup failed",
				zap.String("batch_id", batchID),
				zap.Error(err),
			)
		}
	}

	m := assembleMetrics(st, skipped, elapsed)

	if err := ctx.Err(); err != nil {
		return m, fmt.Errorf("dispatch interrupted: %w", err)
	}
	return m, nil
}

func (d *Dispatcher) worker(ctx context.Context, index int, job models.Job, out chan<- settled) {
	begin := time.Now()
	err := d.sender.Send(ctx, job)
	out <- settled{
		index:     index,
		recipient: job.Recipient(),
		duration:  time.Since(begin),
		err:       err,
	}
}

// settle records one outcome: persisted row and cursor first, then in-memory
// tallies, controller feedback, and the progress snapshot. Runs only on the
// admission-loop goroutine.
func (d *Dispatcher) settle(ctx context.Context, st *runState, ctrl *Controller, res settled, start time.Time, report progress.Reporter) {
	errText := ""
	if res.err != nil {
		errText = res.err.Error()
	}
	success := res.err == nil

	if err := d.store.RecordResult(ctx, st.batchID, res.index, res.recipient, success, errText); err != nil {
		// Persisted state is authoritative only for resumability; in-memory
		// counters carry the metrics, so the run keeps going.
		d.log.Warn("record result failed",
			zap.String("batch_id", st.batchID),
			zap.Int("index", res.index),
			zap.Error(err),
		)
	}

	st.done[res.index] = true
	st.processed++
	for st.lowMark < st.total && st.done[st.lowMark] {
		st.lowMark++
	}
	completed := st.processed == st.total

	if err := d.store.UpdateBatchPosition(ctx, st.batchID, st.lowMark, completed); err != nil {
		d.log.Warn("update batch position failed",
			zap.String("batch_id", st.batchID),
			zap.Int("next_index", st.lowMark),
			zap.Error(err),
		)
	}

	st.attempted++
	st.totalSend += res.duration
	st.timings = append(st.timings, models.RecipientTiming{
		Recipient: res.recipient,
		Duration:  res.duration,
	})
	metrics.SendDuration.Observe(res.duration.Seconds())

	if success {
		st.success++
		st.succeededRun++
		ctrl.RecordSuccess()
		metrics.EmailsSent.Inc()
	} else {
		st.failed++
		st.failedRun++
		throttled := mail.IsThrottle(res.err)
		ctrl.RecordFailure(time.Now(), throttled)
		metrics.EmailFailures.Inc()
		if throttled {
			metrics.ThrottleSignals.Inc()
			d.log.Debug("throttle signal",
				zap.String("batch_id", st.batchID),
				zap.Int("concurrency", ctrl.Current()),
			)
		}
		if len(st.failures) < failedLimit {
			st.failures = append(st.failures, models.FailedRecipient{
				Index:     res.index,
				Recipient: res.recipient,
				Error:     errText,
			})
		}
	}
	metrics.EffectiveConcurrency.Set(float64(ctrl.Current()))

	if report != nil {
		snap := progress.Compute(st.total, st.processed, st.success, st.failed, time.Since(start))
		report(snap, progress.RenderBar(snap))
	}
}

// sleepCtx waits d or until ctx is done; it reports false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
