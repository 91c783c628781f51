package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sweepInterval = 10 * time.Minute
	sweepIdle     = time.Hour
)

var Module = fx.Module("rate.limit",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc    fx.Lifecycle
	Cfg   config.Config
	Clock clock.Clock
	Log   *zap.Logger
}

func New(p Params) (*IntakeLimiter, error) {
	log := p.Log.Named("ratelimit")
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled {
		log.Info("order intake rate limit disabled")
		return nil, nil
	}

	switch limitCfg.Backend {
	case config.RateLimitBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     p.Cfg.Lock.RedisAddr,
			Password: p.Cfg.Lock.RedisPassword,
			DB:       p.Cfg.Lock.RedisDB,
		})
		p.Lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		log.Info("using redis rate limit", zap.String("addr", p.Cfg.Lock.RedisAddr),
			zap.Float64("rate", limitCfg.Rate), zap.Int("burst", limitCfg.Burst))
		return NewIntakeLimiter(NewRedisBucket(client), limitCfg.Backend, limitCfg.Rate, limitCfg.Burst)
	case config.RateLimitBackendMemory:
		bucket := NewMemoryBucket(p.Clock)
		startSweeper(p.Lc, bucket, log)
		log.Info("using in-process rate limit",
			zap.Float64("rate", limitCfg.Rate), zap.Int("burst", limitCfg.Burst))
		return NewIntakeLimiter(bucket, limitCfg.Backend, limitCfg.Rate, limitCfg.Burst)
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", limitCfg.Backend)
	}
}

func startSweeper(lc fx.Lifecycle, bucket *MemoryBucket, log *zap.Logger) {
	stop := make(chan struct{})
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(sweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if n := bucket.Sweep(sweepIdle); n > 0 {
							log.Debug("swept idle rate limit keys", zap.Int("count", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
