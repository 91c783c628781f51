package scheduler

import (
	"time"

	"github.com/smallbiznis/songgift/internal/config"
)

const (
	JobGeneration = "generation"
	JobDelivery   = "delivery"
)

// Config controls tick intervals. Interval changes need a restart; the
// enabled flags and job timeout are read from the pipeline config per tick.
type Config struct {
	GenerationInterval time.Duration
	DeliveryInterval   time.Duration
	JobTimeout         time.Duration
	EnabledJobs        []string
}

func DefaultConfig() Config {
	defaults := config.DefaultPipelineConfig()
	return Config{
		GenerationInterval: defaults.GenerationInterval,
		DeliveryInterval:   defaults.DeliveryInterval,
		JobTimeout:         defaults.JobTimeout,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.GenerationInterval <= 0 {
		c.GenerationInterval = defaults.GenerationInterval
	}
	if c.DeliveryInterval <= 0 {
		c.DeliveryInterval = defaults.DeliveryInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(holder *config.PipelineConfigHolder) Config {
	pipeline := holder.Get()
	return Config{
		GenerationInterval: pipeline.GenerationInterval,
		DeliveryInterval:   pipeline.DeliveryInterval,
		JobTimeout:         pipeline.JobTimeout,
	}.withDefaults()
}
