package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mailgoatai/mailgoat-sub001/internal/config"
	"github.com/mailgoatai/mailgoat-sub001/internal/loader"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/scheduler"
)

func runSchedule(args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	file := fs.String("file", "", "batch file to schedule")
	to := fs.String("to", "", "recipient address(es), comma-separated")
	subject := fs.String("subject", "", "message subject")
	body := fs.String("body", "", "plain-text body")
	at := fs.String("at", "", "send time, RFC3339 (e.g. 2026-09-01T09:00:00Z)")
	in := fs.Duration("in", 0, "send after this delay (alternative to -at)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var sendAt time.Time
	switch {
	case *at != "":
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("parse -at: %w", err)
		}
		sendAt = t
	case *in > 0:
		sendAt = time.Now().Add(*in)
	default:
		return errors.New("schedule: -at or -in is required")
	}

	var jobs []models.Job
	if *file != "" {
		loaded, err := loader.Load(*file)
		if err != nil {
			return err
		}
		jobs = loaded
	} else {
		job := models.Job{To: splitAddrs(*to), Subject: *subject, Body: *body}
		if err := job.Validate(); err != nil {
			return err
		}
		jobs = []models.Job{job}
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, job := range jobs {
		entry := models.ScheduledEmail{
			ID:      uuid.NewString(),
			Payload: job,
			SendAt:  sendAt,
		}
		if err := st.AddScheduled(ctx, entry); err != nil {
			return err
		}
		fmt.Printf("scheduled %s -> %s at %s\n", entry.ID, job.Recipient(), sendAt.Format(time.RFC3339))
	}
	return nil
}

func runScheduler(args []string) error {
	fs := flag.NewFlagSet("scheduler", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	svc := scheduler.New(st, sender, cfg.SchedulerInterval.Std(), logger)
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	svc.Stop()
	return nil
}
