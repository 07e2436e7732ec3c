// Package template renders per-recipient personalization with the Liquid
// template language.
package template

import (
	"fmt"

	"github.com/osteele/liquid"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// Renderer renders job subject/body/html against the job's template fields.
type Renderer struct {
	engine *liquid.Engine
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "Friend" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Renderer{engine: engine}
}

// RenderJob returns a copy of job with Subject, Body and HTML rendered
// against its Fields. Jobs without fields pass through untouched.
func (r *Renderer) RenderJob(job models.Job) (models.Job, error) {
	if len(job.Fields) == 0 {
		return job, nil
	}

	bindings := make(map[string]interface{}, len(job.Fields))
	for k, v := range job.Fields {
		bindings[k] = v
	}

	var err error
	if job.Subject, err = r.render(job.Subject, bindings); err != nil {
		return models.Job{}, fmt.Errorf("render subject: %w", err)
	}
	if job.Body, err = r.render(job.Body, bindings); err != nil {
		return models.Job{}, fmt.Errorf("render body: %w", err)
	}
	if job.HTML, err = r.render(job.HTML, bindings); err != nil {
		return models.Job{}, fmt.Errorf("render html: %w", err)
	}
	return job, nil
}

func (r *Renderer) render(tpl string, bindings map[string]interface{}) (string, error) {
	if tpl == "" {
		return "", nil
	}
	return r.engine.ParseAndRenderString(tpl, bindings)
}
