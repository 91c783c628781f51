package providers

import (
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/providers/email"
	"github.com/smallbiznis/songgift/internal/providers/music"
	"github.com/smallbiznis/songgift/internal/providers/textgen"
	"github.com/smallbiznis/songgift/internal/providers/whatsapp"
	settingsservice "github.com/smallbiznis/songgift/internal/settings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	whatsapp.Module,
	fx.Provide(
		newTextGenerator,
		newMusicGenerator,
		func(r *whatsapp.Registry) settingsservice.ProviderChecker { return r },
	),
)

func newTextGenerator(cfg config.Config) textgen.Generator {
	return textgen.NewClient(textgen.Config{
		BaseURL:      cfg.Providers.TextBaseURL,
		DefaultModel: cfg.Providers.DefaultTextModel,
		Timeout:      cfg.Providers.TextTimeout,
	})
}

func newMusicGenerator(cfg config.Config) music.Generator {
	return music.NewClient(music.Config{
		BaseURL: cfg.Providers.MusicBaseURL,
		Timeout: cfg.Providers.MusicTimeout,
	})
}
