package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	store, err := Load("")
	require.NoError(t, err)
	cfg := store.Config()

	assert.False(t, cfg.PromptWizard.Enabled)
	assert.Equal(t, 120000, cfg.PromptWizard.TimeoutMS)
	assert.Equal(t, 3, cfg.PromptWizard.Retries)
	assert.True(t, cfg.PromptWizard.VerifySSL)
	assert.Equal(t, "gpt-4", cfg.PromptWizard.DefaultModel)
	assert.Equal(t, 3, cfg.PromptWizard.MutateRefineIterations)
	assert.Equal(t, 5, cfg.PromptWizard.FewShotCount)
	assert.True(t, cfg.PromptWizard.GenerateReasoning)
	assert.Equal(t, 10000, cfg.PromptWizard.MaxPromptLength)
	assert.InDelta(t, 0.7, cfg.PromptWizard.MinConfidence, 1e-9)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrency)
	assert.Equal(t, 1000, cfg.Queue.MaxJobHistory)
	assert.Equal(t, 10, cfg.Feedback.FeedbackThreshold)
	assert.InDelta(t, 3.0, cfg.Feedback.RatingThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.Feedback.PerformanceThreshold, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
promptwizard:
  enabled: true
  service_url: https://optimizer.example.com
  timeout: 60000
  default_model: claude-3-sonnet
queue:
  max_concurrency: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	store, err := Load(path)
	require.NoError(t, err)
	cfg := store.Config()

	assert.True(t, cfg.PromptWizard.Enabled)
	assert.Equal(t, "https://optimizer.example.com", cfg.PromptWizard.ServiceURL)
	assert.Equal(t, 60000, cfg.PromptWizard.TimeoutMS)
	assert.Equal(t, "claude-3-sonnet", cfg.PromptWizard.DefaultModel)
	assert.Equal(t, 5, cfg.Queue.MaxConcurrency)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.PromptWizard.Retries)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CURSOR_PROMPT_PROMPTWIZARD_DEFAULT_MODEL", "gemini-pro")
	t.Setenv("CURSOR_PROMPT_QUEUE_MAX_CONCURRENCY", "7")

	store, err := Load("")
	require.NoError(t, err)
	cfg := store.Config()

	assert.Equal(t, "gemini-pro", cfg.PromptWizard.DefaultModel)
	assert.Equal(t, 7, cfg.Queue.MaxConcurrency)
}

func TestRuntimeOverride(t *testing.T) {
	store, err := Load("")
	require.NoError(t, err)

	require.NoError(t, store.Set("promptwizard.few_shot_count", 10))
	assert.Equal(t, 10, store.Config().PromptWizard.FewShotCount)

	// An override that fails validation is rejected.
	err = store.Set("promptwizard.timeout", 1)
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"timeout too small", func(c *Config) { c.PromptWizard.TimeoutMS = 1000 }},
		{"timeout too large", func(c *Config) { c.PromptWizard.TimeoutMS = 700000 }},
		{"retries negative", func(c *Config) { c.PromptWizard.Retries = -1 }},
		{"retries too large", func(c *Config) { c.PromptWizard.Retries = 11 }},
		{"unknown model", func(c *Config) { c.PromptWizard.DefaultModel = "gpt-5" }},
		{"iterations zero", func(c *Config) { c.PromptWizard.MutateRefineIterations = 0 }},
		{"few shot too large", func(c *Config) { c.PromptWizard.FewShotCount = 21 }},
		{"max prompt length too small", func(c *Config) { c.PromptWizard.MaxPromptLength = 500 }},
		{"confidence above one", func(c *Config) { c.PromptWizard.MinConfidence = 1.5 }},
		{"analytics backend unknown", func(c *Config) { c.PromptWizard.Analytics.Backend = "kafka" }},
		{"enabled without url", func(c *Config) { c.PromptWizard.Enabled = true; c.PromptWizard.ServiceURL = "" }},
		{"zero concurrency", func(c *Config) { c.Queue.MaxConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Load("")
			require.NoError(t, err)
			cfg := *store.Config()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
