package orderevent

import (
	"github.com/smallbiznis/songgift/internal/orderevent/repository"
	"github.com/smallbiznis/songgift/internal/orderevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orderevent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
