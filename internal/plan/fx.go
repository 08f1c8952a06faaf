package plan

import (
	"github.com/smallbiznis/warrantyhub/internal/cache"
	"github.com/smallbiznis/warrantyhub/internal/plan/repository"
	"github.com/smallbiznis/warrantyhub/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(cache.NewPlanListCache),
	fx.Provide(service.New),
)
