package signup

import (
	"github.com/smallbiznis/warrantyhub/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("signup.service",
	fx.Provide(token.NewIssuer),
	fx.Provide(NewEventProvisioner),
	fx.Provide(NewService),
)
