package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

type Service interface {
	// Authorize checks actor ("user:<id>" or "system") for action on object
	// inside orgID. It returns ErrForbidden when the policy denies it.
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
