package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, activeOnly bool) ([]Plan, error)
	Insert(ctx context.Context, plan *Plan) error
	Replace(ctx context.Context, plan *Plan) (int64, error)
	ToggleActive(ctx context.Context, id string, now time.Time) (int64, error)
}

// ListCache holds the rendered plan list between admin mutations.
type ListCache interface {
	GetPlans(ctx context.Context, activeOnly bool) ([]Plan, bool)
	SetPlans(ctx context.Context, activeOnly bool, plans []Plan)
	Invalidate(ctx context.Context)
}
