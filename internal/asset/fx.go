package asset

import (
	"github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/asset/repository"
	"github.com/smallbiznis/warrantyhub/internal/asset/service"
	coverageservice "github.com/smallbiznis/warrantyhub/internal/coverage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("asset.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(
		fx.Annotate(
			coverageservice.New,
			fx.As(fx.Self()),
			fx.As(new(domain.CoverageResolver)),
		),
	),
	fx.Provide(service.New),
)
