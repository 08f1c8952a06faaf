package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/auth/password"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/events"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
	"github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"github.com/smallbiznis/warrantyhub/internal/organization/repository"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type seatStub struct {
	reserved int
	released int
	err      error
}

func (s *seatStub) Reserve(ctx context.Context, orgID snowflake.ID, kind string, amount int) error {
	if s.err != nil {
		return s.err
	}
	s.reserved += amount
	return nil
}

func (s *seatStub) Release(ctx context.Context, orgID snowflake.ID, kind string, amount int) error {
	s.released += amount
	return nil
}

type invalidatorStub struct {
	calls []snowflake.ID
}

func (i *invalidatorStub) Invalidate(orgID snowflake.ID) {
	i.calls = append(i.calls, orgID)
}

type orgFixture struct {
	db       *gorm.DB
	svc      domain.Service
	node     *snowflake.Node
	clock    *clock.FakeClock
	seats    *seatStub
	features *invalidatorStub
}

func setupOrgService(t *testing.T) *orgFixture {
	t.Helper()
	db, err := dbpkg.NewTest(&domain.Organization{}, &domain.OrgUser{}, &events.DomainEvent{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	f := &orgFixture{db: db, node: node, clock: clk, seats: &seatStub{}, features: &invalidatorStub{}}
	f.svc = New(Params{
		DB:        db,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.NewRepository(db),
		Publisher: events.NewOutboxPublisher(db, node, clk),
		Seats:     f.seats,
		Features:  f.features,
	})
	return f
}

func (f *orgFixture) createOrg(t *testing.T, slug, status string, trialEnds *time.Time) (*domain.Organization, *domain.OrgUser) {
	t.Helper()
	now := f.clock.Now()
	org := &domain.Organization{
		ID:                 f.node.Generate(),
		Name:               slug,
		Slug:               slug,
		Email:              slug + "@example.test",
		PlanID:             plandomain.FreePlanID,
		SubscriptionStatus: status,
		TrialEndsAt:        trialEnds,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	owner := &domain.OrgUser{
		ID:           f.node.Generate(),
		OrgID:        org.ID,
		Name:         "Owner",
		Email:        slug + "@example.test",
		PasswordHash: "x",
		Role:         domain.RoleOwner,
		Permissions:  datatypes.NewJSONSlice([]string{domain.PermissionAll}),
		IsActive:     true,
		CreatedAt:    now,
	}
	org.OwnerID = owner.ID
	require.NoError(t, f.db.Create(org).Error)
	require.NoError(t, f.db.Create(owner).Error)
	return org, owner
}

func (f *orgFixture) reload(t *testing.T, id snowflake.ID) domain.Organization {
	t.Helper()
	var org domain.Organization
	require.NoError(t, f.db.First(&org, "id = ?", id).Error)
	return org
}

func TestGetOrganization(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()
	org, _ := f.createOrg(t, "acme", domain.StatusTrialing, nil)

	got, err := f.svc.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)

	got, err = f.svc.GetBySlug(ctx, " ACME ")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	_, err = f.svc.GetBySlug(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.db.Model(&domain.Organization{}).Where("id = ?", org.ID).Update("is_active", false).Error)
	_, err = f.svc.GetByID(ctx, org.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetByID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidOrg)
}

func TestSetFeatureOverrides(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()
	org, _ := f.createOrg(t, "acme", domain.StatusActive, nil)

	updated, err := f.svc.SetFeatureOverrides(ctx, org.ID, map[string]any{
		plandomain.FlagMaxDevices: -1,
		" ":                       true,
	})
	require.NoError(t, err)
	assert.Len(t, updated.FeatureOverrides, 1)
	// Overrides read back from the JSON column decode numbers as json.Number.
	assert.Equal(t, int64(-1), featuredomain.FeatureSet(updated.FeatureOverrides).Int(plandomain.FlagMaxDevices))
	assert.Equal(t, []snowflake.ID{org.ID}, f.features.calls)

	_, err = f.svc.SetFeatureOverrides(ctx, 999, map[string]any{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubscriptionWebhooks(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()
	org, _ := f.createOrg(t, "acme", domain.StatusTrialing, nil)

	require.NoError(t, f.svc.HandleSubscriptionActivated(ctx, org.ID, domain.SubscriptionPayload{
		ID:    "sub_123",
		Notes: map[string]string{"plan_id": plandomain.EnterprisePlanID},
	}))
	got := f.reload(t, org.ID)
	assert.Equal(t, domain.StatusActive, got.SubscriptionStatus)
	assert.Equal(t, plandomain.EnterprisePlanID, got.PlanID)
	assert.Equal(t, "sub_123", got.SubscriptionID)

	require.NoError(t, f.svc.HandlePaymentFailed(ctx, org.ID))
	got = f.reload(t, org.ID)
	assert.Equal(t, domain.StatusPastDue, got.SubscriptionStatus)
	assert.Equal(t, plandomain.EnterprisePlanID, got.PlanID)

	require.NoError(t, f.svc.HandleSubscriptionCancelled(ctx, org.ID))
	got = f.reload(t, org.ID)
	assert.Equal(t, domain.StatusCancelled, got.SubscriptionStatus)
	assert.Equal(t, plandomain.FreePlanID, got.PlanID)
	assert.Equal(t, "sub_123", got.SubscriptionID)

	require.NoError(t, f.svc.HandleSubscriptionActivated(ctx, org.ID, domain.SubscriptionPayload{ID: "sub_456"}))
	assert.Equal(t, plandomain.ProPlanID, f.reload(t, org.ID).PlanID)

	var count int64
	require.NoError(t, f.db.Model(&events.DomainEvent{}).Where("topic = ?", events.SubscriptionStatusChangedTopic).Count(&count).Error)
	assert.EqualValues(t, 4, count)
	assert.Len(t, f.features.calls, 4)
}

func TestUpdateSubscriptionStatusValidates(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()

	err := f.svc.UpdateSubscriptionStatus(ctx, 1, domain.StatusUpdate{Status: "paused"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	err = f.svc.UpdateSubscriptionStatus(ctx, 1, domain.StatusUpdate{Status: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpireTrials(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()

	past := f.clock.Now().Add(-time.Hour)
	future := f.clock.Now().Add(time.Hour)
	ended, _ := f.createOrg(t, "ended", domain.StatusTrialing, &past)
	running, _ := f.createOrg(t, "running", domain.StatusTrialing, &future)
	paid, _ := f.createOrg(t, "paid", domain.StatusActive, &past)

	count, err := f.svc.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, domain.StatusExpired, f.reload(t, ended.ID).SubscriptionStatus)
	assert.Equal(t, domain.StatusTrialing, f.reload(t, running.ID).SubscriptionStatus)
	assert.Equal(t, domain.StatusActive, f.reload(t, paid.ID).SubscriptionStatus)

	count, err = f.svc.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddUser(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()
	org, _ := f.createOrg(t, "acme", domain.StatusActive, nil)

	user, err := f.svc.AddUser(ctx, org.ID, domain.AddUserRequest{
		Name:        "Tech",
		Email:       " Tech@Acme.Test ",
		Password:    "longenough",
		Permissions: []string{"devices:read", "devices:read", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "tech@acme.test", user.Email)
	assert.Equal(t, domain.RoleStaff, user.Role)
	assert.Equal(t, []string{"devices:read"}, []string(user.Permissions))
	assert.True(t, password.Verify("longenough", user.PasswordHash))
	assert.Equal(t, 1, f.seats.reserved)

	_, err = f.svc.AddUser(ctx, org.ID, domain.AddUserRequest{Name: "Dup", Email: "TECH@acme.test", Password: "longenough"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = f.svc.AddUser(ctx, org.ID, domain.AddUserRequest{Name: "x", Email: "x@acme.test", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrPasswordTooShort)

	_, err = f.svc.AddUser(ctx, org.ID, domain.AddUserRequest{Name: "x", Email: "x@acme.test", Password: "longenough", Role: domain.RoleOwner})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	users, err := f.svc.ListUsers(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestAddUserLimitExceeded(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()
	org, _ := f.createOrg(t, "acme", domain.StatusActive, nil)

	limit := errors.New("limit")
	f.seats.err = limit
	_, err := f.svc.AddUser(ctx, org.ID, domain.AddUserRequest{Name: "x", Email: "x@acme.test", Password: "longenough"})
	assert.ErrorIs(t, err, limit)

	users, err := f.svc.ListUsers(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestChangeRoleKeepsAnOwner(t *testing.T) {
	f := setupOrgService(t)
	ctx := context.Background()
	org, owner := f.createOrg(t, "acme", domain.StatusActive, nil)

	_, err := f.svc.ChangeRole(ctx, org.ID, owner.ID, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	admin, err := f.svc.AddUser(ctx, org.ID, domain.AddUserRequest{Name: "Admin", Email: "admin@acme.test", Password: "longenough", Role: domain.RoleAdmin})
	require.NoError(t, err)

	promoted, err := f.svc.ChangeRole(ctx, org.ID, admin.ID, domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, promoted.Role)
	assert.Equal(t, admin.ID, f.reload(t, org.ID).OwnerID)

	demoted, err := f.svc.ChangeRole(ctx, org.ID, owner.ID, domain.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, demoted.Role)

	_, err = f.svc.ChangeRole(ctx, org.ID, admin.ID, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	_, err = f.svc.ChangeRole(ctx, org.ID, 424242, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.svc.ChangeRole(ctx, org.ID, admin.ID, "root")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}
