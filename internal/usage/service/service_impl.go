package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("usage.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// NewRecord builds the opening usage record for an organization: zeroed
// counters over the current calendar month in the reference zone.
func NewRecord(id, orgID snowflake.ID, now time.Time, loc *time.Location, users int64) *domain.UsageRecord {
	start, end := clock.MonthBounds(now, loc)
	return &domain.UsageRecord{
		ID:          id,
		OrgID:       orgID,
		UserCount:   users,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

func (s *Service) GetUsage(ctx context.Context, orgID snowflake.ID) (*domain.UsageRecord, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	record, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

// IncrementUsage is a no-op when the organization has no usage record yet.
func (s *Service) IncrementUsage(ctx context.Context, orgID snowflake.ID, kind string, amount int) error {
	column, err := s.column(orgID, kind, amount)
	if err != nil {
		return err
	}
	affected, err := s.repo.Add(ctx, orgID, column, int64(amount), s.now())
	if err != nil {
		return err
	}
	if affected == 0 {
		s.log.Debug("usage increment matched no record", zap.String("org_id", orgID.String()), zap.String("kind", kind))
	}
	return nil
}

// DecrementUsage never takes a counter below zero.
func (s *Service) DecrementUsage(ctx context.Context, orgID snowflake.ID, kind string, amount int) error {
	column, err := s.column(orgID, kind, amount)
	if err != nil {
		return err
	}
	affected, err := s.repo.Subtract(ctx, orgID, column, int64(amount), s.now())
	if err != nil {
		return err
	}
	if affected == 0 {
		s.log.Debug("usage decrement matched no record", zap.String("org_id", orgID.String()), zap.String("kind", kind))
	}
	return nil
}

func (s *Service) ReserveWithin(ctx context.Context, orgID snowflake.ID, kind string, amount int, limit int64) (bool, error) {
	column, err := s.column(orgID, kind, amount)
	if err != nil {
		return false, err
	}

	var affected int64
	if limit < 0 {
		affected, err = s.repo.Add(ctx, orgID, column, int64(amount), s.now())
	} else {
		affected, err = s.repo.AddWithin(ctx, orgID, column, int64(amount), limit, s.now())
	}
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	// Zero rows is either a refusal or a missing record.
	record, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (s *Service) IncrementAIChats(ctx context.Context, orgID snowflake.ID, amount int) error {
	if orgID == 0 {
		return domain.ErrInvalidOrg
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.repo.Add(ctx, orgID, "ai_chats_this_month", int64(amount), s.now())
	return err
}

// RollPeriods moves every record whose period has ended to the current month
// and resets the monthly counters. Resource counters carry over.
func (s *Service) RollPeriods(ctx context.Context) (int64, error) {
	now := s.now()
	start, end := clock.MonthBounds(now, s.clock.Location())
	rolled, err := s.repo.RollPeriods(ctx, start.UTC(), end.UTC(), now)
	if err != nil {
		return 0, err
	}
	if rolled > 0 {
		s.log.Info("usage periods rolled", zap.Int64("records", rolled), zap.Time("period_start", start))
	}
	return rolled, nil
}

func (s *Service) column(orgID snowflake.ID, kind string, amount int) (string, error) {
	if orgID == 0 {
		return "", domain.ErrInvalidOrg
	}
	if amount <= 0 {
		return "", domain.ErrInvalidAmount
	}
	column, ok := domain.CounterColumn(kind)
	if !ok {
		return "", domain.ErrUnknownKind
	}
	return column, nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
