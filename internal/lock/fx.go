package lock

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("lock",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Pipeline *config.PipelineConfigHolder `optional:"true"`
}

func New(p Params) (Locker, error) {
	log := p.Log.Named("lock")

	switch p.Cfg.Lock.Backend {
	case config.LockBackendRedis:
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
		log.Info("using redis locks", zap.String("addr", p.Cfg.Lock.RedisAddr))
		return NewRedis(client, func() time.Duration { return p.Pipeline.Get().LockTTL }, p.Log), nil
	case config.LockBackendFile:
		log.Info("using file locks", zap.String("dir", p.Cfg.Lock.Dir))
		return NewFile(p.Cfg.Lock.Dir)
	case config.LockBackendMemory:
		log.Info("using in-process locks")
		return NewMemory(), nil
	default:
		if !db.IsPostgres(p.DB) {
			log.Warn("advisory locks need postgres; falling back to in-process locks",
				zap.String("db", p.DB.Dialector.Name()))
			return NewMemory(), nil
		}
		log.Info("using postgres advisory locks")
		return NewPostgres(p.DB, p.Log), nil
	}
}
