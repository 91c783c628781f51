package delivery

import (
	"github.com/smallbiznis/songgift/internal/providers/whatsapp"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery",
	fx.Provide(
		New,
		func(r *whatsapp.Registry) WhatsAppFactory { return r },
	),
)
