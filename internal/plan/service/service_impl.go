package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cache domain.ListCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	cache domain.ListCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

// GetPlan never fails: unknown ids and read errors resolve to the free plan.
func (s *Service) GetPlan(ctx context.Context, planID string) domain.Plan {
	id := strings.TrimSpace(planID)
	if id != "" {
		plan, err := s.repo.Get(ctx, id)
		switch {
		case err != nil:
			s.log.Warn("plan lookup failed, using free plan", zap.String("plan_id", id), zap.Error(err))
		case plan != nil:
			return *plan
		}
	}

	if id != domain.FreePlanID {
		free, err := s.repo.Get(ctx, domain.FreePlanID)
		if err == nil && free != nil {
			return *free
		}
		if err != nil {
			s.log.Warn("free plan lookup failed", zap.Error(err))
		}
	}
	return domain.FallbackFreePlan()
}

func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	if s.cache != nil {
		if plans, ok := s.cache.GetPlans(ctx, activeOnly); ok {
			return plans, nil
		}
	}

	plans, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetPlans(ctx, activeOnly, plans)
	}
	return plans, nil
}

func (s *Service) Create(ctx context.Context, req domain.UpsertRequest) (*domain.Plan, error) {
	plan, err := s.buildPlan(req.ID, req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	plan.Seq = s.genID.Generate().Int64()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	if err := s.repo.Insert(ctx, plan); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	s.log.Info("plan created", zap.String("plan_id", plan.ID))
	return plan, nil
}

func (s *Service) Update(ctx context.Context, planID string, req domain.UpsertRequest) (*domain.Plan, error) {
	plan, err := s.buildPlan(planID, req)
	if err != nil {
		return nil, err
	}
	plan.UpdatedAt = s.clock.Now()

	var updated *domain.Plan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.Replace(ctx, plan)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		updated, err = repo.Get(ctx, plan.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	return updated, nil
}

// ToggleActive flips is_active and returns the new state.
func (s *Service) ToggleActive(ctx context.Context, planID string) (bool, error) {
	id := strings.TrimSpace(planID)
	if id == "" {
		return false, domain.ErrInvalidID
	}

	var active bool
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.ToggleActive(ctx, id, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		plan, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrNotFound
		}
		active = plan.IsActive
		return nil
	})
	if err != nil {
		return false, err
	}
	s.invalidate(ctx)

	s.log.Info("plan toggled", zap.String("plan_id", id), zap.Bool("is_active", active))
	return active, nil
}

// EnsureDefaults inserts catalog entries that do not exist yet. Existing rows
// are left untouched so admin edits survive restarts.
func (s *Service) EnsureDefaults(ctx context.Context, plans []domain.Plan) error {
	hasFree := false
	for i := range plans {
		if plans[i].ID == domain.FreePlanID {
			hasFree = true
		}
	}
	if !hasFree {
		plans = append([]domain.Plan{domain.FallbackFreePlan()}, plans...)
	}

	inserted := 0
	for _, plan := range plans {
		existing, err := s.repo.Get(ctx, plan.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		now := s.clock.Now()
		plan.Seq = s.genID.Generate().Int64()
		plan.CreatedAt = now
		plan.UpdatedAt = now
		if err := s.repo.Insert(ctx, &plan); err != nil && !errors.Is(err, domain.ErrDuplicatePlan) {
			return err
		}
		inserted++
	}
	if inserted > 0 {
		s.invalidate(ctx)
		s.log.Info("plan catalog seeded", zap.Int("inserted", inserted))
	}
	return nil
}

func (s *Service) buildPlan(id string, req domain.UpsertRequest) (*domain.Plan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.PriceMonthly < 0 || req.PriceYearly < 0 {
		return nil, domain.ErrInvalidPrice
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = name
	}

	return &domain.Plan{
		ID:                   id,
		Name:                 name,
		DisplayName:          displayName,
		Description:          strings.TrimSpace(req.Description),
		PriceMonthly:         req.PriceMonthly,
		PriceYearly:          req.PriceYearly,
		GatewayPlanIDMonthly: strings.TrimSpace(req.GatewayPlanIDMonthly),
		GatewayPlanIDYearly:  strings.TrimSpace(req.GatewayPlanIDYearly),
		Features:             datatypes.NewJSONType(req.Features),
		IsActive:             req.IsActive,
		IsPopular:            req.IsPopular,
		SortOrder:            req.SortOrder,
	}, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
