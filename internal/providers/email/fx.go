package email

import (
	"github.com/smallbiznis/songgift/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Email.Provider != "smtp" || cfg.Email.Host == "" {
		log.Info("email provider disabled; using noop", zap.String("provider", cfg.Email.Provider))
		return NewNoOp(log)
	}
	return NewSMTP(Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		Timeout:  cfg.Providers.DeliveryTimeout,
	})
}
