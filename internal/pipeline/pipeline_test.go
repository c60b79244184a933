package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine"
)

type fakeBackend struct {
	fn func(ctx context.Context, req optimization.Request) (optimization.Result, error)
}

func (f *fakeBackend) Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error) {
	return f.fn(ctx, req)
}

type fakeSaver struct {
	saved []template.Template
}

func (f *fakeSaver) SaveTemplate(ctx context.Context, tmpl template.Template) error {
	f.saved = append(f.saved, tmpl)
	return nil
}

func baseTemplate() template.Template {
	return template.Template{
		ID:      "tmpl-1",
		Name:    "Greeting",
		Version: "1.0.0",
		Content: "Hello {{name}}, welcome to {{place}}.",
	}
}

func TestPipelineRunSucceeds(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, req optimization.Request) (optimization.Result, error) {
		return optimization.Result{
			OptimizedPrompt: strings.ReplaceAll(req.Task, "__VAR_0__", "{{name}}"),
			Metrics:         optimization.Metrics{TokenReduction: 0.2},
			Status:          optimization.StatusCompleted,
		}, nil
	}}
	saver := &fakeSaver{}
	p := New(nil, engine.New(nil), backend, saver, nil, DefaultConfig())

	outcome := p.Run(context.Background(), "tmpl-1", baseTemplate(), optimization.Request{})
	require.True(t, outcome.Success)
	assert.NotEmpty(t, outcome.Stages)
	for _, s := range outcome.Stages {
		if s.Stage == stageOptimization || s.Stage == stageMetadataExtraction {
			assert.True(t, s.Success)
		}
	}
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "tmpl-1_optimized", saver.saved[0].ID)
	assert.Contains(t, saver.saved[0].Name, "(Optimized)")
}

func TestPipelineAbortsOnOptimizationFailure(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, req optimization.Request) (optimization.Result, error) {
		return optimization.Result{}, assert.AnError
	}}
	p := New(nil, engine.New(nil), backend, nil, nil, DefaultConfig())

	outcome := p.Run(context.Background(), "tmpl-1", baseTemplate(), optimization.Request{})
	require.False(t, outcome.Success)
	require.Error(t, outcome.Err)

	var sawOptimization bool
	for _, s := range outcome.Stages {
		if s.Stage == stageOptimization {
			sawOptimization = true
			assert.False(t, s.Success)
		}
		assert.NotEqual(t, stageTemplateUpdate, s.Stage)
	}
	assert.True(t, sawOptimization)
}

func TestPipelineValidationFailsOnNoImprovement(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, req optimization.Request) (optimization.Result, error) {
		return optimization.Result{
			OptimizedPrompt: req.Task,
			Metrics:         optimization.Metrics{},
		}, nil
	}}
	p := New(nil, engine.New(nil), backend, nil, nil, DefaultConfig())

	outcome := p.Run(context.Background(), "tmpl-1", baseTemplate(), optimization.Request{})
	require.True(t, outcome.Success) // validation failure is recoverable, not aborting

	var validationFailed bool
	for _, s := range outcome.Stages {
		if s.Stage == stageValidation {
			validationFailed = !s.Success
		}
	}
	assert.True(t, validationFailed)
}

func TestTokenizePlaceholdersRoundTrips(t *testing.T) {
	original := "Hello {{name}}, you are {{age}}."
	body, mapping := tokenizePlaceholders(original)
	assert.NotContains(t, body, "{{")

	restored := body
	for token, placeholder := range mapping {
		restored = strings.ReplaceAll(restored, token, placeholder)
	}
	assert.Equal(t, original, restored)
}
