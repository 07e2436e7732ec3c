package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// parseCSV reads a CSV batch. The header must contain email, subject and body
// columns (case-insensitive, any order). Every other column becomes a
// template field on the job. A row with the wrong column count is a
// structural error, not a skip.
func parseCSV(r io.Reader) ([]models.Job, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	emailIdx, subjectIdx, bodyIdx := -1, -1, -1
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		normalized[i] = h
		switch {
		case strings.EqualFold(h, "email"):
			emailIdx = i
		case strings.EqualFold(h, "subject"):
			subjectIdx = i
		case strings.EqualFold(h, "body"):
			bodyIdx = i
		}
	}
	if emailIdx == -1 || subjectIdx == -1 || bodyIdx == -1 {
		return nil, errors.New("csv must contain email, subject and body columns")
	}

	var jobs []models.Job
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv row %d has %d columns, want %d", line, len(record), len(headers))
		}

		job := models.Job{
			To:      []string{strings.TrimSpace(record[emailIdx])},
			Subject: strings.TrimSpace(record[subjectIdx]),
			Body:    record[bodyIdx],
		}

		fields := make(map[string]string)
		for i := range record {
			if i == emailIdx || i == subjectIdx || i == bodyIdx {
				continue
			}
			key := normalized[i]
			if key == "" {
				continue
			}
			fields[key] = strings.TrimSpace(record[i])
		}
		if len(fields) > 0 {
			job.Fields = fields
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}
