package migration

import (
	"context"

	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, templates templatedomain.Service, settings settingsdomain.Service, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return Run(ctx, conn, templates, settings, log)
			},
		})
	}),
)

// Run applies the schema and seeds the default templates and settings row.
func Run(ctx context.Context, conn *gorm.DB, templates templatedomain.Service, settings settingsdomain.Service, log *zap.Logger) error {
	if err := Apply(conn); err != nil {
		return err
	}
	if err := templates.EnsureDefaults(ctx); err != nil {
		return err
	}
	if _, err := settings.View(ctx); err != nil {
		return err
	}
	log.Info("schema ready", zap.String("dialect", conn.Dialector.Name()))
	return nil
}
