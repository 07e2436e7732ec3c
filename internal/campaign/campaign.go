// Package campaign is the simple sequential runner: one send at a time with a
// fixed delay between them. No persistence, no adaptation; batches that need
// resumability or a self-tuning pool belong to the dispatcher.
package campaign

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/template"
)

// Summary tallies a campaign pass.
type Summary struct {
	Sent    int
	Failed  int
	Elapsed time.Duration
}

type Runner struct {
	sender   mail.Sender
	renderer *template.Renderer
	delay    time.Duration
	log      *zap.Logger
}

func NewRunner(sender mail.Sender, renderer *template.Renderer, delay time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{sender: sender, renderer: renderer, delay: delay, log: log}
}

// Run sends jobs in order, waiting the configured delay between sends.
// Per-job failures are logged and counted; only invalid input or context
// cancellation aborts the pass.
func (r *Runner) Run(ctx context.Context, jobs []models.Job) (Summary, error) {
	if err := models.ValidateJobs(jobs); err != nil {
		return Summary{}, fmt.Errorf("validate campaign: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.delay), 1)
	}

	start := time.Now()
	var sum Summary
	for i, job := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, fmt.Errorf("campaign interrupted: %w", err)
		}

		if r.renderer != nil {
			rendered, err := r.renderer.RenderJob(job)
			if err != nil {
				return sum, fmt.Errorf("job %d: %w", i, err)
			}
			job = rendered
		}

		if err := r.sender.Send(ctx, job); err != nil {
			sum.Failed++
			r.log.Warn("campaign send failed",
				zap.Int("index", i),
				zap.String("to", job.Recipient()),
				zap.Error(err),
			)
			continue
		}
		sum.Sent++
		r.log.Info("campaign send ok",
			zap.Int("index", i),
			zap.String("to", job.Recipient()),
		)
	}

	sum.Elapsed = time.Since(start)
	return sum, nil
}
