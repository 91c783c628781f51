package scheduler

import (
	"context"

	"github.com/smallbiznis/songgift/internal/delivery"
	"github.com/smallbiznis/songgift/internal/generation"
	"go.uber.org/fx"
)

// Module provides the scheduler without starting it; commands that want
// background ticks also include Runner.
var Module = fx.Module("scheduler",
	fx.Provide(
		ProvideConfig,
		New,
		func(s *generation.Service) GenerationRunner { return s },
		func(s *delivery.Service) DeliveryRunner { return s },
	),
)

var Runner = fx.Invoke(NewScheduler)

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return sched.Stop(stopCtx)
		},
	})
}
