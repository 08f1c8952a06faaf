package usage

import (
	"github.com/smallbiznis/warrantyhub/internal/usage/repository"
	"github.com/smallbiznis/warrantyhub/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.New),
)
