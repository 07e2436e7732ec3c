// Package loader reads batch job files. Supported formats: JSON array,
// JSON-lines, and CSV with email,subject,body columns. Jobs are validated
// here, before dispatch ever starts.
package loader

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// Load reads jobs from path, picking the format by extension (.json, .jsonl,
// .ndjson, .csv). Any malformed job aborts the load.
func Load(path string) ([]models.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var jobs []models.Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		jobs, err = parseJSON(f)
	case ".jsonl", ".ndjson":
		jobs, err = parseJSONLines(f)
	case ".csv":
		jobs, err = parseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported batch format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if err := models.ValidateJobs(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func parseJSON(r io.Reader) ([]models.Job, error) {
	var jobs []models.Job
	dec := json.NewDecoder(r)
	if err := dec.Decode(&jobs); err != nil {
		return nil, fmt.Errorf("parse json batch: %w", err)
	}
	// A concatenated or truncated-and-patched file must fail, not load its
	// first array.
	if dec.More() {
		return nil, errors.New("json batch has trailing data after the array")
	}
	return jobs, nil
}

func parseJSONLines(r io.Reader) ([]models.Job, error) {
	var jobs []models.Job
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var job models.Job
		if err := json.Unmarshal([]byte(text), &job); err != nil {
			return nil, fmt.Errorf("parse jsonl line %d: %w", line, err)
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl batch: %w", err)
	}
	return jobs, nil
}
