package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfigIsValid(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, validatePipelineConfig(cfg))
	assert.Equal(t, 10*time.Minute, cfg.CompletionTimeout)
	assert.Equal(t, 2, cfg.MinTrackVariants)
}

func TestValidatePipelineConfigRejectsZeroIntervals(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.GenerationInterval = 0
	assert.Error(t, validatePipelineConfig(cfg))

	cfg = DefaultPipelineConfig()
	cfg.MinTrackVariants = 0
	assert.Error(t, validatePipelineConfig(cfg))
}

func TestPipelineConfigHolderFallsBackToDefaults(t *testing.T) {
	var holder *PipelineConfigHolder
	assert.Equal(t, DefaultPipelineConfig(), holder.Get())

	pinned := DefaultPipelineConfig()
	pinned.MinTrackVariants = 3
	assert.Equal(t, 3, NewStaticPipelineConfigHolder(pinned).Get().MinTrackVariants)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LOCK_BACKEND", "Redis")
	t.Setenv("PUBLIC_BASE_URL", "https://songs.example.com/")
	t.Setenv("TEXT_PROVIDER_TIMEOUT", "45")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("ORDER_INTAKE_RATE", "1.5")
	t.Setenv("ORDER_INTAKE_BURST", "oops")
	t.Setenv("LOG_FORMAT", " Console ")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, "https://songs.example.com/api/webhooks/music", cfg.MusicCallbackURL())
	assert.Equal(t, 45*time.Second, cfg.Providers.TextTimeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.InDelta(t, 1.5, cfg.RateLimit.Rate, 1e-9)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, RateLimitBackendMemory, cfg.RateLimit.Backend)
	assert.Equal(t, "console", cfg.Observability.LogFormat)
	assert.InDelta(t, 0.5, cfg.Observability.SamplingRatio, 1e-9)
	assert.True(t, cfg.IsProduction())
}
