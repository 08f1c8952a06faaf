package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/cache"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/smallbiznis/warrantyhub/internal/events"
	"github.com/smallbiznis/warrantyhub/internal/feature/domain"
	obsmetrics "github.com/smallbiznis/warrantyhub/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Orgs      orgdomain.Repository
	Plans     plandomain.Service
	Usage     usagedomain.Service
	Publisher events.Publisher    `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	orgs      orgdomain.Repository
	plans     plandomain.Service
	usage     usagedomain.Service
	publisher events.Publisher
	metrics   *obsmetrics.Metrics
	cache     cache.Cache[snowflake.ID, domain.FeatureSet]
	ttl       time.Duration
}

func New(p Params) *Service {
	return &Service{
		log:       p.Log.Named("feature.service"),
		orgs:      p.Orgs,
		plans:     p.Plans,
		usage:     p.Usage,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		cache:     cache.NewTTLCache[snowflake.ID, domain.FeatureSet](),
		ttl:       p.Config.Tenancy.FeatureCacheTTL,
	}
}

// EffectiveFeatures resolves plan features plus overrides. Expired
// subscriptions get exactly the free plan. Unknown organizations and read
// failures resolve to an empty set.
func (s *Service) EffectiveFeatures(ctx context.Context, orgID snowflake.ID) domain.FeatureSet {
	if orgID == 0 {
		return domain.FeatureSet{}
	}
	if cached, ok := s.cache.Get(orgID); ok {
		return cached.Clone()
	}

	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		s.log.Warn("organization lookup failed", zap.String("org_id", orgID.String()), zap.Error(err))
		return domain.FeatureSet{}
	}
	if org == nil {
		return domain.FeatureSet{}
	}

	var features domain.FeatureSet
	if org.SubscriptionStatus == orgdomain.StatusExpired {
		free := s.plans.GetPlan(ctx, plandomain.FreePlanID)
		features = domain.FeatureSet(free.Features.Data().ToMap())
	} else {
		plan := s.plans.GetPlan(ctx, org.PlanID)
		features = domain.FeatureSet(plan.Features.Data().ToMap())
		for key, value := range org.FeatureOverrides {
			features[key] = value
		}
	}

	if s.ttl > 0 {
		s.cache.Set(orgID, features, s.ttl)
	}
	return features.Clone()
}

func (s *Service) HasFeature(ctx context.Context, orgID snowflake.ID, flag string) bool {
	return s.EffectiveFeatures(ctx, orgID).Bool(flag)
}

func (s *Service) RequireFeature(ctx context.Context, orgID snowflake.ID, flag string) error {
	if s.HasFeature(ctx, orgID, flag) {
		return nil
	}
	return &domain.FeatureError{Flag: flag}
}

// CheckLimit reports whether one more unit of kind fits: current < limit,
// with -1 meaning unlimited.
func (s *Service) CheckLimit(ctx context.Context, orgID snowflake.ID, kind string) domain.LimitResult {
	flag, ok := domain.LimitFlag(kind)
	if !ok {
		return domain.LimitResult{Kind: kind, Allowed: true, Limit: plandomain.Unlimited, Message: "Unknown limit type"}
	}

	limit := s.EffectiveFeatures(ctx, orgID).Int(flag)
	current := s.current(ctx, orgID, kind)

	res := domain.LimitResult{Kind: kind, Current: current, Limit: limit}
	switch {
	case limit == plandomain.Unlimited:
		res.Allowed = true
		res.Message = "Unlimited"
	case current < limit:
		res.Allowed = true
		res.Message = domain.UsedMessage(kind, current, limit)
	default:
		res.Message = domain.BlockedMessage(kind, limit)
	}

	s.metrics.RecordLimitCheck(ctx, kind, res.Allowed)
	return res
}

// Reserve claims amount units of kind in one conditional update, so
// concurrent callers can never push the counter past the limit.
func (s *Service) Reserve(ctx context.Context, orgID snowflake.ID, kind string, amount int) error {
	flag, ok := domain.LimitFlag(kind)
	if !ok {
		return usagedomain.ErrUnknownKind
	}

	limit := s.EffectiveFeatures(ctx, orgID).Int(flag)
	granted := false
	if limit >= 0 || limit == plandomain.Unlimited {
		var err error
		granted, err = s.usage.ReserveWithin(ctx, orgID, kind, amount, limit)
		if err != nil {
			return err
		}
	}
	s.metrics.RecordLimitCheck(ctx, kind, granted)
	if granted {
		return nil
	}

	limitErr := &domain.LimitError{Kind: kind, Current: s.current(ctx, orgID, kind), Limit: limit}
	s.publishLimitExceeded(ctx, orgID, limitErr)
	return limitErr
}

func (s *Service) Release(ctx context.Context, orgID snowflake.ID, kind string, amount int) error {
	return s.usage.DecrementUsage(ctx, orgID, kind, amount)
}

func (s *Service) Invalidate(orgID snowflake.ID) {
	s.cache.Delete(orgID)
}

func (s *Service) current(ctx context.Context, orgID snowflake.ID, kind string) int64 {
	record, err := s.usage.GetUsage(ctx, orgID)
	if err != nil {
		if !errors.Is(err, usagedomain.ErrNotFound) && !errors.Is(err, usagedomain.ErrInvalidOrg) {
			s.log.Warn("usage lookup failed", zap.String("org_id", orgID.String()), zap.Error(err))
		}
		return 0
	}
	count, _ := record.Count(kind)
	return count
}

func (s *Service) publishLimitExceeded(ctx context.Context, orgID snowflake.ID, limitErr *domain.LimitError) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.UsageLimitExceededTopic, orgID, map[string]any{
		"organization_id": orgID.String(),
		"kind":            limitErr.Kind,
		"current":         limitErr.Current,
		"limit":           limitErr.Limit,
	})
	if err != nil {
		s.log.Warn("failed to record limit exceeded event", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}
