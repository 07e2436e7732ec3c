package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mailgoatai/mailgoat-sub001/internal/config"
	"github.com/mailgoatai/mailgoat-sub001/internal/dispatch"
	"github.com/mailgoatai/mailgoat-sub001/internal/loader"
	"github.com/mailgoatai/mailgoat-sub001/internal/progress"
)

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	file := fs.String("file", "", "batch file (.json, .jsonl, .csv)")
	concurrency := fs.Int("concurrency", 0, "worker pool size (default from config)")
	resume := fs.Bool("resume", false, "resume a partially completed run")
	batchID := fs.String("batch-id", "", "override the derived batch id")
	asJSON := fs.Bool("json", false, "print final metrics as JSON")
	quiet := fs.Bool("quiet", false, "suppress the progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("batch: -file is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *concurrency <= 0 {
		*concurrency = cfg.Concurrency
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	jobs, err := loader.Load(*file)
	if err != nil {
		return err
	}

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

	var reporter progress.Reporter
	if !*quiet {
		reporter = progress.Stderr()
	}

	d := dispatch.New(st, sender, logger)
	m, err := d.Run(ctx, jobs, dispatch.Options{
		FilePath:    *file,
		BatchID:     *batchID,
		Concurrency: *concurrency,
		Resume:      *resume,
	}, reporter)
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(m)
	}

	fmt.Printf("batch %s: %d/%d attempted, %d ok, %d failed (%.1f%% success, %.1f/s, avg %.0fms)\n",
		m.BatchID, m.Attempted, m.Total, m.Succeeded, m.Failed,
		m.SuccessRate, m.ThroughputPerSec, m.AverageSendMs)
	for _, f := range m.FailedRecipients {
		fmt.Printf("  failed #%d %s: %s\n", f.Index, f.Recipient, f.Error)
	}
	return nil
}
