package webhook

import "go.uber.org/fx"

var Module = fx.Module("webhook.music",
	fx.Provide(New),
)
