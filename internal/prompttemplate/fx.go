package prompttemplate

import (
	"github.com/smallbiznis/songgift/internal/prompttemplate/repository"
	"github.com/smallbiznis/songgift/internal/prompttemplate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("prompttemplate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
