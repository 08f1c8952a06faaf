package domain

import (
	"context"
	"errors"
)

type Service interface {
	GetPlan(ctx context.Context, planID string) Plan
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
	Create(ctx context.Context, req UpsertRequest) (*Plan, error)
	Update(ctx context.Context, planID string, req UpsertRequest) (*Plan, error)
	ToggleActive(ctx context.Context, planID string) (bool, error)
	EnsureDefaults(ctx context.Context, plans []Plan) error
}

// UpsertRequest is the full plan record for admin create and update.
type UpsertRequest struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	DisplayName          string       `json:"display_name"`
	Description          string       `json:"description"`
	PriceMonthly         int64        `json:"price_monthly"`
	PriceYearly          int64        `json:"price_yearly"`
	GatewayPlanIDMonthly string       `json:"gateway_plan_id_monthly"`
	GatewayPlanIDYearly  string       `json:"gateway_plan_id_yearly"`
	Features             PlanFeatures `json:"features"`
	IsActive             bool         `json:"is_active"`
	IsPopular            bool         `json:"is_popular"`
	SortOrder            int          `json:"sort_order"`
}

var (
	ErrNotFound      = errors.New("plan_not_found")
	ErrDuplicatePlan = errors.New("plan_already_exists")
	ErrInvalidID     = errors.New("invalid_plan_id")
	ErrInvalidName   = errors.New("invalid_plan_name")
	ErrInvalidPrice  = errors.New("invalid_plan_price")
)
