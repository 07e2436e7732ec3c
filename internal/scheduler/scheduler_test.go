package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/store"
)

func scheduled(id string, sendAt time.Time) models.ScheduledEmail {
	return models.ScheduledEmail{
		ID:     id,
		SendAt: sendAt,
		Payload: models.Job{
			To:      []string{id + "@example.com"},
			Subject: "reminder",
			Body:    "ping",
		},
	}
}

func TestTickSendsDueEmails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()

	require.NoError(t, st.AddScheduled(ctx, scheduled("due", now.Add(-time.Minute))))
	require.NoError(t, st.AddScheduled(ctx, scheduled("future", now.Add(time.Hour))))

	var sent []string
	sender := mail.SendFunc(func(_ context.Context, job models.Job) error {
		sent = append(sent, job.Recipient())
		return nil
	})

	New(st, sender, time.Second, zap.NewNop()).Tick(ctx, now)

	assert.Equal(t, []string{"due@example.com"}, sent)

	// The delivered entry is marked and stays out of the next tick.
	due, err := st.DueScheduled(ctx, now, 50)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTickMarksFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()
	require.NoError(t, st.AddScheduled(ctx, scheduled("broken", now.Add(-time.Minute))))

	sender := mail.SendFunc(func(context.Context, models.Job) error {
		return errors.New("smtp unreachable")
	})
	New(st, sender, time.Second, zap.NewNop()).Tick(ctx, now)

	// Failed entries are terminal, not retried forever.
	due, err := st.DueScheduled(ctx, now, 50)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTickFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()
	require.NoError(t, st.AddScheduled(ctx, scheduled("bad", now.Add(-2*time.Minute))))
	require.NoError(t, st.AddScheduled(ctx, scheduled("good", now.Add(-time.Minute))))

	var sent []string
	sender := mail.SendFunc(func(_ context.Context, job models.Job) error {
		if job.Recipient() == "bad@example.com" {
			return errors.New("bounced")
		}
		sent = append(sent, job.Recipient())
		return nil
	})
	New(st, sender, time.Second, zap.NewNop()).Tick(ctx, now)

	assert.Equal(t, []string{"good@example.com"}, sent)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	sender := mail.SendFunc(func(context.Context, models.Job) error { return nil })
	s := New(st, sender, time.Minute, zap.NewNop())

	require.NoError(t, s.Start())
	s.Stop()
}

func TestNewDefaultsInterval(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemory(), nil, 0, nil)
	assert.Equal(t, 30*time.Second, s.interval)
}
