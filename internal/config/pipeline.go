package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PipelineConfig tunes the background generation and delivery loops.
type PipelineConfig struct {
	GenerationEnabled  bool          `mapstructure:"generationEnabled"`
	GenerationInterval time.Duration `mapstructure:"generationInterval"`
	DeliveryEnabled    bool          `mapstructure:"deliveryEnabled"`
	DeliveryInterval   time.Duration `mapstructure:"deliveryInterval"`
	JobTimeout         time.Duration `mapstructure:"jobTimeout"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
	CompletionTimeout  time.Duration `mapstructure:"completionTimeout"`
	MinTrackVariants   int           `mapstructure:"minTrackVariants"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		GenerationEnabled:  true,
		GenerationInterval: 5 * time.Second,
		DeliveryEnabled:    true,
		DeliveryInterval:   10 * time.Second,
		JobTimeout:         2 * time.Minute,
		LockTTL:            5 * time.Minute,
		CompletionTimeout:  10 * time.Minute,
		MinTrackVariants:   2,
	}
}

type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

// NewStaticPipelineConfigHolder pins the pipeline config without watching a file.
func NewStaticPipelineConfigHolder(cfg PipelineConfig) *PipelineConfigHolder {
	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPipelineConfigHolder(log *zap.Logger) (*PipelineConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("pipeline-config")

	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/songgift")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SONGGIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPipelineConfig()
	v.SetDefault("pipeline.generationEnabled", defaults.GenerationEnabled)
	v.SetDefault("pipeline.generationInterval", defaults.GenerationInterval)
	v.SetDefault("pipeline.deliveryEnabled", defaults.DeliveryEnabled)
	v.SetDefault("pipeline.deliveryInterval", defaults.DeliveryInterval)
	v.SetDefault("pipeline.jobTimeout", defaults.JobTimeout)
	v.SetDefault("pipeline.lockTTL", defaults.LockTTL)
	v.SetDefault("pipeline.completionTimeout", defaults.CompletionTimeout)
	v.SetDefault("pipeline.minTrackVariants", defaults.MinTrackVariants)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := validatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPipelineConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validatePipelineConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	if h == nil {
		return DefaultPipelineConfig()
	}
	cfg, ok := h.current.Load().(PipelineConfig)
	if !ok {
		return DefaultPipelineConfig()
	}
	return cfg
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if cfg.GenerationInterval <= 0 {
		return errors.New("pipeline.generationInterval must be positive")
	}
	if cfg.DeliveryInterval <= 0 {
		return errors.New("pipeline.deliveryInterval must be positive")
	}
	if cfg.CompletionTimeout <= 0 {
		return errors.New("pipeline.completionTimeout must be positive")
	}
	if cfg.MinTrackVariants < 1 {
		return errors.New("pipeline.minTrackVariants must be at least 1")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("pipeline.lockTTL must be positive")
	}
	return nil
}
