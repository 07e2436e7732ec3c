package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mailgoatai/mailgoat-sub001/internal/config"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	to := fs.String("to", "", "recipient address(es), comma-separated")
	cc := fs.String("cc", "", "cc address(es), comma-separated")
	bcc := fs.String("bcc", "", "bcc address(es), comma-separated")
	from := fs.String("from", "", "sender address")
	subject := fs.String("subject", "", "message subject")
	body := fs.String("body", "", "plain-text body")
	html := fs.String("html", "", "HTML body")
	tag := fs.String("tag", "", "message tag")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	job := models.Job{
		To:      splitAddrs(*to),
		Cc:      splitAddrs(*cc),
		Bcc:     splitAddrs(*bcc),
		From:    *from,
		Subject: *subject,
		Body:    *body,
		HTML:    *html,
		Tag:     *tag,
	}
	if err := job.Validate(); err != nil {
		return err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	if err := sender.Send(context.Background(), job); err != nil {
		return fmt.Errorf("send to %s: %w", job.Recipient(), err)
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"recipient": job.Recipient(),
			"status":    "sent",
		})
	}
	fmt.Printf("sent to %s\n", job.Recipient())
	return nil
}

func splitAddrs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
