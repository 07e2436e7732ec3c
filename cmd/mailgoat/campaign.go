package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/mailgoatai/mailgoat-sub001/internal/campaign"
	"github.com/mailgoatai/mailgoat-sub001/internal/config"
	"github.com/mailgoatai/mailgoat-sub001/internal/loader"
	"github.com/mailgoatai/mailgoat-sub001/internal/template"
)

func runCampaign(args []string) error {
	fs := flag.NewFlagSet("campaign", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	file := fs.String("file", "", "campaign file (.json, .jsonl, .csv)")
	delay := fs.Duration("delay", time.Second, "pause between sends")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("campaign: -file is required")
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

	jobs, err := loader.Load(*file)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	runner := campaign.NewRunner(sender, template.NewRenderer(), *delay, logger)
	sum, err := runner.Run(context.Background(), jobs)
	if err != nil {
		return err
	}

	fmt.Printf("campaign done: %d sent, %d failed in %s\n", sum.Sent, sum.Failed, sum.Elapsed.Truncate(time.Millisecond))
	return nil
}
