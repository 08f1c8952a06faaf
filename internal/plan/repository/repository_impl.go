package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/warrantyhub/internal/plan/domain"
	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id string) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	var plans []domain.Plan
	stmt := r.db.WithContext(ctx).Model(&domain.Plan{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	err := stmt.Order("sort_order ASC").Order("seq ASC").Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) Insert(ctx context.Context, plan *domain.Plan) error {
	err := r.db.WithContext(ctx).Create(plan).Error
	if dbpkg.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicatePlan
	}
	return err
}

func (r *repository) Replace(ctx context.Context, plan *domain.Plan) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Plan{}).
		Where("id = ?", plan.ID).
		Updates(map[string]any{
			"name":                    plan.Name,
			"display_name":            plan.DisplayName,
			"description":             plan.Description,
			"price_monthly":           plan.PriceMonthly,
			"price_yearly":            plan.PriceYearly,
			"gateway_plan_id_monthly": plan.GatewayPlanIDMonthly,
			"gateway_plan_id_yearly":  plan.GatewayPlanIDYearly,
			"features":                plan.Features,
			"is_active":               plan.IsActive,
			"is_popular":              plan.IsPopular,
			"sort_order":              plan.SortOrder,
			"updated_at":              plan.UpdatedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ToggleActive(ctx context.Context, id string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE pricing_plans SET is_active = NOT is_active, updated_at = ? WHERE id = ?`,
		now.UTC(),
		id,
	)
	return res.RowsAffected, res.Error
}
