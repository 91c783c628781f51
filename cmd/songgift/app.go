package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/delivery"
	"github.com/smallbiznis/songgift/internal/generation"
	"github.com/smallbiznis/songgift/internal/lock"
	"github.com/smallbiznis/songgift/internal/observability"
	"github.com/smallbiznis/songgift/internal/order"
	"github.com/smallbiznis/songgift/internal/orderevent"
	"github.com/smallbiznis/songgift/internal/prompttemplate"
	"github.com/smallbiznis/songgift/internal/providers"
	"github.com/smallbiznis/songgift/internal/scheduler"
	"github.com/smallbiznis/songgift/internal/settings"
	"github.com/smallbiznis/songgift/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// coreModules wires everything a command needs to touch orders, without
// starting the HTTP server or the background ticks.
func coreModules(role string) fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Role = role
			return cfg
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		providers.Module,

		// Functional Domains
		order.Module,
		orderevent.Module,
		settings.Module,
		prompttemplate.Module,
		generation.Module,
		delivery.Module,
		scheduler.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
