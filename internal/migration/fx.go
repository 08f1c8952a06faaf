package migration

import (
	"context"

	"github.com/smallbiznis/warrantyhub/internal/config"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"github.com/smallbiznis/warrantyhub/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Plans   plandomain.Service
	Catalog *config.PlanCatalogHolder
}

// Apply migrates the schema and seeds the plan catalog.
func Apply(ctx context.Context, p Params) error {
	if err := Run(p.DB); err != nil {
		return err
	}
	p.Log.Info("schema migrated", zap.String("dialect", p.DB.Dialector.Name()))
	return seed.EnsurePlans(ctx, p.Plans, p.Catalog, p.Log)
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		return Apply(context.Background(), p)
	}),
)
