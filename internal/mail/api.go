package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// APISender delivers through the MailGoat HTTP API.
//
// 5xx and transport errors are retried with exponential backoff; 429 and other
// 4xx responses surface immediately. The 429 error text carries the status
// code so throttle detection upstream fires.
type APISender struct {
	BaseURL    string
	APIKey     string
	Client     *http.Client
	Limiter    *rate.Limiter // optional client-side rate limit
	MaxElapsed time.Duration // retry budget per send; default 15s
}

type sendPayload struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	From    string   `json:"from,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body,omitempty"`
	HTML    string   `json:"html,omitempty"`
	Tag     string   `json:"tag,omitempty"`
}

func (s *APISender) Send(ctx context.Context, job models.Job) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	body, err := json.Marshal(sendPayload{
		To:      job.To,
		Cc:      job.Cc,
		Bcc:     job.Bcc,
		From:    job.From,
		Subject: job.Subject,
		Body:    job.Body,
		HTML:    job.HTML,
		Tag:     job.Tag,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	operation := func() error {
		return s.post(ctx, body)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = s.MaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 15 * time.Second
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (s *APISender) post(ctx context.Context, body []byte) error {
	url := strings.TrimRight(s.BaseURL, "/") + "/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(detail))
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Do not retry locally: the dispatcher reacts by shrinking the pool.
		return backoff.Permanent(fmt.Errorf("rate limited (429): %s", msg))
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, msg)
	default:
		return backoff.Permanent(fmt.Errorf("send rejected (%d): %s", resp.StatusCode, msg))
	}
}
