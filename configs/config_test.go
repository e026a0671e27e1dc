package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.Workers.PublishConcurrency)
	assert.Equal(t, 3, cfg.Workers.InsightsConcurrency)
	assert.Equal(t, "@every 1m", cfg.Dispatcher.PublishSpec)
	assert.Equal(t, "@every 6h", cfg.Dispatcher.InsightsSpec)
	assert.Equal(t, time.Minute, cfg.Dispatcher.LookBack)
	assert.Equal(t, 5*time.Minute, cfg.Dispatcher.LookAhead)
	assert.Equal(t, 100, cfg.Dispatcher.InsightsBatch)
	assert.Equal(t, 50, cfg.Token.MinLength)
	assert.Equal(t, "refreshed_", cfg.Token.MockPrefix)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PUBLISH_WORKER_CONCURRENCY", "9")
	t.Setenv("TOKEN_MIN_LENGTH", "32")
	t.Setenv("INSIGHTS_PACING", "250ms")

	cfg := LoadConfig()

	assert.Equal(t, 9, cfg.Workers.PublishConcurrency)
	assert.Equal(t, 32, cfg.Token.MinLength)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatcher.InsightsPacing)
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("INSIGHTS_WORKER_CONCURRENCY", "lots")
	t.Setenv("DISPATCH_LOOK_AHEAD", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.Workers.InsightsConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Dispatcher.LookAhead)
}
