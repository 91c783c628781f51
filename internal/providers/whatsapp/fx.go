package whatsapp

import (
	"github.com/smallbiznis/songgift/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.whatsapp",
	fx.Provide(NewRegistryFromConfig),
)

func NewRegistryFromConfig(cfg config.Config, log *zap.Logger) *Registry {
	return NewRegistry(
		NewMockFactory(log),
		NewYCloudFactory(cfg.Providers.YCloudBaseURL, cfg.Providers.DeliveryTimeout),
	)
}
