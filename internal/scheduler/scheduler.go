// Package scheduler polls the scheduled-send table and delivers due emails.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/store"
)

const defaultBatchSize = 50

type Service struct {
	store    store.ScheduleStore
	sender   mail.Sender
	interval time.Duration
	log      *zap.Logger

	c *cron.Cron
}

func New(st store.ScheduleStore, sender mail.Sender, interval time.Duration, log *zap.Logger) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    st,
		sender:   sender,
		interval: interval,
		log:      log,
	}
}

// Start registers the polling job and begins ticking.
func (s *Service) Start() error {
	s.c = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		s.Tick(ctx, time.Now())
	}); err != nil {
		return fmt.Errorf("register poll job: %w", err)
	}
	s.c.Start()
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts polling and waits for an in-progress tick to finish.
func (s *Service) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Tick drains one batch of due emails. Send failures are written back to the
// row; a store read failure just skips the tick.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	due, err := s.store.DueScheduled(ctx, now, defaultBatchSize)
	if err != nil {
		s.log.Error("load due emails failed", zap.Error(err))
		return
	}

	for _, entry := range due {
		if err := s.sender.Send(ctx, entry.Payload); err != nil {
			s.log.Warn("scheduled send failed",
				zap.String("id", entry.ID),
				zap.String("to", entry.Payload.Recipient()),
				zap.Error(err),
			)
			if mErr := s.store.MarkScheduled(ctx, entry.ID, models.ScheduledFailed, err.Error()); mErr != nil {
				s.log.Error("mark scheduled failed", zap.String("id", entry.ID), zap.Error(mErr))
			}
			continue
		}
		if mErr := s.store.MarkScheduled(ctx, entry.ID, models.ScheduledSent, ""); mErr != nil {
			s.log.Error("mark scheduled failed", zap.String("id", entry.ID), zap.Error(mErr))
		}
		s.log.Info("scheduled send ok",
			zap.String("id", entry.ID),
			zap.String("to", entry.Payload.Recipient()),
		)
	}
}
