package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyBatch   = errors.New("batch contains no jobs")
	ErrNoRecipients = errors.New("job has no recipients")
	ErrNoSubject    = errors.New("job has no subject")
	ErrNoBody       = errors.New("job has neither body nor html")
)

// Job is one outbound send within a batch. Jobs are immutable once loaded;
// Validate is called before dispatch starts, never mid-run.
type Job struct {
	To      []string          `json:"to"`
	Cc      []string          `json:"cc,omitempty"`
	Bcc     []string          `json:"bcc,omitempty"`
	From    string            `json:"from,omitempty"`
	Subject string            `json:"subject"`
	Body    string            `json:"body,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Tag     string            `json:"tag,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Recipient returns the first "to" address. It is the address recorded in
// results and persisted state.
func (j Job) Recipient() string {
	if len(j.To) == 0 {
		return ""
	}
	return j.To[0]
}

func (j Job) Validate() error {
	if len(j.To) == 0 || strings.TrimSpace(j.To[0]) == "" {
		return ErrNoRecipients
	}
	if strings.TrimSpace(j.Subject) == "" {
		return ErrNoSubject
	}
	if strings.TrimSpace(j.Body) == "" && strings.TrimSpace(j.HTML) == "" {
		return ErrNoBody
	}
	return nil
}

// ValidateJobs rejects malformed job definitions up front. A rejection here is
// structural and aborts the whole batch before anything is sent.
func ValidateJobs(jobs []Job) error {
	if len(jobs) == 0 {
		return ErrEmptyBatch
	}
	for i, j := range jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
	}
	return nil
}
