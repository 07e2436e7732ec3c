package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

func TestRenderJob(t *testing.T) {
	t.Parallel()

	r := NewRenderer()
	job := models.Job{
		To:      []string{"ada@example.com"},
		Subject: "Welcome, {{ first_name }}!",
		Body:    "Hi {{ first_name }}, your plan is {{ plan }}.",
		HTML:    "<p>Hi {{ first_name }}</p>",
		Fields:  map[string]string{"first_name": "Ada", "plan": "pro"},
	}

	got, err := r.RenderJob(job)
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Ada!", got.Subject)
	assert.Equal(t, "Hi Ada, your plan is pro.", got.Body)
	assert.Equal(t, "<p>Hi Ada</p>", got.HTML)
	assert.Equal(t, job.To, got.To, "addressing is untouched")
}

func TestRenderJobNoFieldsPassthrough(t *testing.T) {
	t.Parallel()

	r := NewRenderer()
	job := models.Job{
		To:      []string{"a@example.com"},
		Subject: "Literal {{ braces }}",
		Body:    "untouched",
	}

	got, err := r.RenderJob(job)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestRenderJobDefaultFilter(t *testing.T) {
	t.Parallel()

	r := NewRenderer()
	job := models.Job{
		To:      []string{"a@example.com"},
		Subject: "s",
		Body:    `Hello {{ first_name | default: "Friend" }}`,
		Fields:  map[string]string{"plan": "free"},
	}

	got, err := r.RenderJob(job)
	require.NoError(t, err)
	assert.Equal(t, "Hello Friend", got.Body)
}

func TestRenderJobBadTemplate(t *testing.T) {
	t.Parallel()

	r := NewRenderer()
	job := models.Job{
		To:      []string{"a@example.com"},
		Subject: "{% if %}",
		Body:    "b",
		Fields:  map[string]string{"x": "y"},
	}

	_, err := r.RenderJob(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render subject")
}
