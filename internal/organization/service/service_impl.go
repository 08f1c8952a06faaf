package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/auth/password"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/events"
	"github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Publisher events.Publisher
	Seats     domain.SeatReserver       `optional:"true"`
	Features  domain.FeatureInvalidator `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	publisher events.Publisher
	seats     domain.SeatReserver
	features  domain.FeatureInvalidator
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
		seats:     p.Seats,
		features:  p.Features,
	}
}

// GetByID returns active organizations only.
func (s *Service) GetByID(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, domain.ErrNotFound
	}
	org, err := s.repo.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

// SetFeatureOverrides replaces the organization's overrides. Keys are flag
// names; values are booleans or numbers.
func (s *Service) SetFeatureOverrides(ctx context.Context, orgID snowflake.ID, overrides map[string]any) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	clean := datatypes.JSONMap{}
	for key, value := range overrides {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		clean[key] = value
	}

	var org *domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateOrganization(ctx, orgID, map[string]any{
			"feature_overrides": clean,
			"updated_at":        s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		org, err = repo.GetOrganization(ctx, orgID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(orgID)

	s.log.Info("feature overrides updated", zap.String("org_id", orgID.String()), zap.Int("keys", len(clean)))
	return org, nil
}

func (s *Service) UpdateSubscriptionStatus(ctx context.Context, orgID snowflake.ID, req domain.StatusUpdate) error {
	if orgID == 0 {
		return domain.ErrInvalidOrg
	}
	if !domain.ValidStatus(req.Status) {
		return domain.ErrInvalidStatus
	}

	fields := map[string]any{
		"subscription_status": req.Status,
		"updated_at":          s.clock.Now(),
	}
	if planID := strings.TrimSpace(req.PlanID); planID != "" {
		fields["plan_id"] = planID
	}
	if subID := strings.TrimSpace(req.SubscriptionID); subID != "" {
		fields["subscription_id"] = subID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).UpdateOrganization(ctx, orgID, fields)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		return s.publisher.WithTx(tx).Publish(ctx, events.SubscriptionStatusChangedTopic, orgID, map[string]string{
			"organization_id": orgID.String(),
			"status":          req.Status,
			"plan_id":         req.PlanID,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(orgID)

	s.log.Info("subscription status updated",
		zap.String("org_id", orgID.String()),
		zap.String("status", req.Status),
		zap.String("plan_id", req.PlanID),
	)
	return nil
}

// HandleSubscriptionActivated takes the plan from the subscription notes and
// defaults to the pro plan.
func (s *Service) HandleSubscriptionActivated(ctx context.Context, orgID snowflake.ID, sub domain.SubscriptionPayload) error {
	planID := strings.TrimSpace(sub.Notes["plan_id"])
	if planID == "" {
		planID = plandomain.ProPlanID
	}
	return s.UpdateSubscriptionStatus(ctx, orgID, domain.StatusUpdate{
		Status:         domain.StatusActive,
		PlanID:         planID,
		SubscriptionID: sub.ID,
	})
}

func (s *Service) HandleSubscriptionCancelled(ctx context.Context, orgID snowflake.ID) error {
	return s.UpdateSubscriptionStatus(ctx, orgID, domain.StatusUpdate{
		Status: domain.StatusCancelled,
		PlanID: plandomain.FreePlanID,
	})
}

func (s *Service) HandlePaymentFailed(ctx context.Context, orgID snowflake.ID) error {
	return s.UpdateSubscriptionStatus(ctx, orgID, domain.StatusUpdate{Status: domain.StatusPastDue})
}

// ExpireTrials moves trialing organizations whose trial has ended to expired.
func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired := make([]snowflake.ID, 0)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		publisher := s.publisher.WithTx(tx)

		orgs, err := repo.ListTrialsEndedBefore(ctx, now)
		if err != nil {
			return err
		}
		for _, org := range orgs {
			affected, err := repo.UpdateOrganization(ctx, org.ID, map[string]any{
				"subscription_status": domain.StatusExpired,
				"updated_at":          now,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				continue
			}
			err = publisher.Publish(ctx, events.SubscriptionStatusChangedTopic, org.ID, map[string]string{
				"organization_id": org.ID.String(),
				"status":          domain.StatusExpired,
				"plan_id":         org.PlanID,
			})
			if err != nil {
				return err
			}
			expired = append(expired, org.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range expired {
		s.invalidate(id)
	}
	if len(expired) > 0 {
		s.log.Info("trials expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (s *Service) ListUsers(ctx context.Context, orgID snowflake.ID) ([]*domain.OrgUser, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	return s.repo.ListUsers(ctx, orgID)
}

// AddUser claims a users seat before inserting and returns it on failure.
// The owner role is only reachable through ChangeRole.
func (s *Service) AddUser(ctx context.Context, orgID snowflake.ID, req domain.AddUserRequest) (*domain.OrgUser, error) {
	if _, err := s.GetByID(ctx, orgID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < domain.MinPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleStaff
	}
	if !domain.ValidRole(role) || role == domain.RoleOwner {
		return nil, domain.ErrInvalidRole
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrEmailTaken
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	if s.seats != nil {
		if err := s.seats.Reserve(ctx, orgID, domain.LimitKindUsers, 1); err != nil {
			return nil, err
		}
	}

	user := &domain.OrgUser{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         role,
		Permissions:  datatypes.NewJSONSlice(cleanPermissions(req.Permissions)),
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.InsertUser(ctx, user); err != nil {
		s.releaseSeat(ctx, orgID)
		return nil, err
	}

	s.log.Info("org user added",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("role", role),
	)
	return user, nil
}

// ChangeRole refuses to leave an organization without an active owner.
// Promoting a user to owner makes them the organization's owner of record.
func (s *Service) ChangeRole(ctx context.Context, orgID, userID snowflake.ID, role string) (*domain.OrgUser, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}

	var updated *domain.OrgUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.GetUser(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		if user.Role == role {
			updated = user
			return nil
		}

		if user.Role == domain.RoleOwner {
			owners, err := repo.CountActiveOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return domain.ErrLastOwner
			}
		}

		if _, err := repo.UpdateUser(ctx, orgID, userID, map[string]any{"role": role}); err != nil {
			return err
		}
		if role == domain.RoleOwner {
			_, err := repo.UpdateOrganization(ctx, orgID, map[string]any{
				"owner_id":   userID,
				"updated_at": s.clock.Now(),
			})
			if err != nil {
				return err
			}
		}

		updated, err = repo.GetUser(ctx, orgID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("org user role changed",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", role),
	)
	return updated, nil
}

func (s *Service) releaseSeat(ctx context.Context, orgID snowflake.ID) {
	if s.seats == nil {
		return
	}
	if err := s.seats.Release(ctx, orgID, domain.LimitKindUsers, 1); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("failed to release user seat", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}

func (s *Service) invalidate(orgID snowflake.ID) {
	if s.features != nil {
		s.features.Invalidate(orgID)
	}
}

func cleanPermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
