package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/store"
)

func makeJobs(n int) []models.Job {
	jobs := make([]models.Job, n)
	for i := range jobs {
		jobs[i] = models.Job{
			To:      []string{fmt.Sprintf("user%02d@example.com", i)},
			Subject: "hello",
			Body:    "world",
		}
	}
	return jobs
}

// recordingSender tracks which recipients were attempted and the peak number
// of concurrent Send calls.
type recordingSender struct {
	mu       sync.Mutex
	sent     []string
	inFlight int32
	peak     int32
	fail     func(recipient string) error
	delay    time.Duration
}

func (s *recordingSender) Send(_ context.Context, job models.Job) error {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	atomic.AddInt32(&s.inFlight, -1)

	rcpt := job.Recipient()
	s.mu.Lock()
	s.sent = append(s.sent, rcpt)
	s.mu.Unlock()
	if s.fail != nil {
		return s.fail(rcpt)
	}
	return nil
}

func (s *recordingSender) attempted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestRunPartialFailures(t *testing.T) {
	jobs := makeJobs(10)
	sender := &recordingSender{fail: func(rcpt string) error {
		if rcpt == "user08@example.com" || rcpt == "user09@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}}
	st := store.NewMemory()

	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 3,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, m.Total)
	assert.Equal(t, 10, m.Attempted)
	assert.Equal(t, 8, m.Succeeded)
	assert.Equal(t, 2, m.Failed)
	assert.Equal(t, 0, m.Skipped)
	assert.InDelta(t, 80.0, m.SuccessRate, 0.001)
	require.Len(t, m.FailedRecipients, 2)
	for _, f := range m.FailedRecipients {
		assert.Contains(t, f.Error, "mailbox unavailable")
	}
	assert.Len(t, sender.attempted(), 10)
	assert.Greater(t, m.AverageSendMs, 0.0)
	assert.Greater(t, m.ThroughputPerSec, 0.0)
}

func TestRunEmptyBatch(t *testing.T) {
	st := store.NewMemory()
	d := New(st, &recordingSender{}, zap.NewNop())

	_, err := d.Run(context.Background(), nil, Options{Concurrency: 3}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmptyBatch)
}

func TestRunResumeSkipsProcessed(t *testing.T) {
	jobs := makeJobs(5)
	st := store.NewMemory()

	// Simulate a run that died after finishing indices 0-2.
	st.Seed("crash-batch", "batch.json", 5, []models.ProcessedJob{
		{Index: 0, Recipient: "user00@example.com", Success: true},
		{Index: 1, Recipient: "user01@example.com", Success: true},
		{Index: 2, Recipient: "user02@example.com", Success: false, Error: "timeout"},
	})

	sender := &recordingSender{}
	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		BatchID:     "crash-batch",
		Concurrency: 2,
		Resume:      true,
	}, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"user03@example.com", "user04@example.com"}, sender.attempted())
	assert.Equal(t, 5, m.Total)
	assert.Equal(t, 2, m.Attempted)
	assert.Equal(t, 2, m.Succeeded)
	assert.Equal(t, 0, m.Failed)
	assert.Equal(t, 3, m.Skipped)
	assert.InDelta(t, 100.0, m.SuccessRate, 0.001)
}

func TestRunResumeFullyProcessed(t *testing.T) {
	jobs := makeJobs(3)
	st := store.NewMemory()
	st.Seed("done-batch", "batch.json", 3, []models.ProcessedJob{
		{Index: 0, Recipient: "user00@example.com", Success: true},
		{Index: 1, Recipient: "user01@example.com", Success: true},
		{Index: 2, Recipient: "user02@example.com", Success: true},
	})

	sender := &recordingSender{}
	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		BatchID:     "done-batch",
		Concurrency: 2,
		Resume:      true,
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, sender.attempted())
	assert.Equal(t, 0, m.Attempted)
	assert.Equal(t, 3, m.Skipped)
	assert.Equal(t, 100.0, m.SuccessRate, "vacuous success when nothing was attempted")

	// Nothing settled, but the batch is complete: its state must still be
	// marked completed and removed rather than lingering forever.
	_, ok, err := st.GetBatch(context.Background(), "done-batch")
	require.NoError(t, err)
	assert.False(t, ok)
	rows, err := st.LoadProcessed(context.Background(), "done-batch")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunCleansUpCompletedBatch(t *testing.T) {
	jobs := makeJobs(4)
	st := store.NewMemory()

	_, err := New(st, &recordingSender{}, zap.NewNop()).Run(context.Background(), jobs, Options{
		BatchID:     "finished",
		Concurrency: 2,
	}, nil)
	require.NoError(t, err)

	_, ok, err := st.GetBatch(context.Background(), "finished")
	require.NoError(t, err)
	assert.False(t, ok, "completed batch state is removed")
}

func TestRunKeepsStateOnPartialCompletion(t *testing.T) {
	jobs := makeJobs(3)
	st := store.NewMemory()

	sender := &recordingSender{fail: func(rcpt string) error {
		return errors.New("bounced")
	}}
	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		BatchID:     "all-failed",
		Concurrency: 1,
	}, nil)
	require.NoError(t, err, "per-job failures are never fatal")
	assert.Equal(t, 3, m.Failed)

	// Every index was attempted, so the run is complete and cleaned up even
	// though every send failed.
	_, ok, err := st.GetBatch(context.Background(), "all-failed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunPersistenceWriteFailuresAreSwallowed(t *testing.T) {
	jobs := makeJobs(6)
	st := store.NewMemory()
	st.FailWrites = true

	sender := &recordingSender{}
	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 2,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Attempted)
	assert.Equal(t, 6, m.Succeeded)
	assert.Len(t, sender.attempted(), 6)
}

func TestRunStartupReadFailureIsFatal(t *testing.T) {
	jobs := makeJobs(2)
	st := store.NewMemory()
	st.FailReads = true

	sender := &recordingSender{}
	d := New(st, sender, zap.NewNop())

	_, err := d.Run(context.Background(), jobs, Options{Concurrency: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize batch")

	_, err = d.Run(context.Background(), jobs, Options{Concurrency: 1, Resume: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load resume state")

	assert.Empty(t, sender.attempted(), "nothing dispatched without a trustworthy starting state")
}

func TestRunConcurrencyNeverExceedsRequested(t *testing.T) {
	jobs := makeJobs(20)
	sender := &recordingSender{delay: 5 * time.Millisecond}
	st := store.NewMemory()

	_, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 4,
	}, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&sender.peak), int32(4))
}

func TestRunConcurrencyClampedToFifty(t *testing.T) {
	jobs := makeJobs(60)
	sender := &recordingSender{delay: 5 * time.Millisecond}
	st := store.NewMemory()

	_, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 500,
	}, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&sender.peak), int32(50))
}

func TestRunThrottleBackoffStillFinishes(t *testing.T) {
	jobs := makeJobs(3)
	var throttled int32
	sender := &recordingSender{fail: func(rcpt string) error {
		if rcpt == "user00@example.com" && atomic.CompareAndSwapInt32(&throttled, 0, 1) {
			return errors.New("rate limit exceeded")
		}
		return nil
	}}
	st := store.NewMemory()

	start := time.Now()
	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 1,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, m.Attempted)
	assert.Equal(t, 1, m.Failed)
	// The throttle pauses admission for the cooldown before the rest drains.
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestRunSlowestAndFailedAreBounded(t *testing.T) {
	jobs := makeJobs(30)
	sender := &recordingSender{fail: func(string) error {
		return errors.New("bounced")
	}}
	st := store.NewMemory()

	m, err := New(st, sender, zap.NewNop()).Run(context.Background(), jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 5,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 30, m.Failed)
	assert.Len(t, m.FailedRecipients, 20, "failure detail is capped")
	require.LessOrEqual(t, len(m.SlowestRecipients), 5)
	for i := 1; i < len(m.SlowestRecipients); i++ {
		assert.GreaterOrEqual(t, m.SlowestRecipients[i-1].Duration, m.SlowestRecipients[i].Duration,
			"slowest recipients are sorted by duration descending")
	}
}

func TestRunCancellation(t *testing.T) {
	jobs := makeJobs(50)
	ctx, cancel := context.WithCancel(context.Background())
	var count int32
	sender := mail.SendFunc(func(_ context.Context, job models.Job) error {
		if atomic.AddInt32(&count, 1) == 5 {
			cancel()
		}
		time.Sleep(time.Millisecond)
		return nil
	})
	st := store.NewMemory()

	_, err := New(st, sender, zap.NewNop()).Run(ctx, jobs, Options{
		FilePath:    "batch.json",
		Concurrency: 2,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt32(&count), int32(50), "admission stops after cancellation")
}
