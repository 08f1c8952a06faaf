package feature

import (
	"github.com/smallbiznis/warrantyhub/internal/feature/domain"
	"github.com/smallbiznis/warrantyhub/internal/feature/service"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"go.uber.org/fx"
)

// Each fx.As group binds one interface. A single group with several targets
// would map them onto the constructor results by position.
var Module = fx.Module("feature.service",
	fx.Provide(
		fx.Annotate(
			service.New,
			fx.As(new(domain.Service)),
			fx.As(new(orgdomain.SeatReserver)),
			fx.As(new(orgdomain.FeatureInvalidator)),
		),
	),
)
