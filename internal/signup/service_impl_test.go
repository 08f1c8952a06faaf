package signup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/auth/token"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/smallbiznis/warrantyhub/internal/events"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	orgrepository "github.com/smallbiznis/warrantyhub/internal/organization/repository"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"github.com/smallbiznis/warrantyhub/internal/signup/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	usagerepository "github.com/smallbiznis/warrantyhub/internal/usage/repository"
	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type signupFixture struct {
	db     *gorm.DB
	svc    domain.Service
	clock  *clock.FakeClock
	tokens *token.Issuer
}

type fixtureOption func(p *Params)

func setupSignup(t *testing.T, opts ...fixtureOption) *signupFixture {
	t.Helper()
	db, err := dbpkg.NewTest(&orgdomain.Organization{}, &orgdomain.OrgUser{}, &usagedomain.UsageRecord{}, &events.DomainEvent{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	// 01:30 on 1 April in the reference zone.
	clk := clock.NewFakeClock(time.Date(2025, 3, 31, 20, 0, 0, 0, time.UTC))
	cfg := config.Config{AuthJWTSecret: "test-secret", AuthTokenTTL: time.Hour}
	cfg.Tenancy.TrialDays = 14
	issuer, err := token.NewIssuer(cfg, clk)
	require.NoError(t, err)

	p := Params{
		DB:          db,
		Log:         zaptest.NewLogger(t),
		GenID:       node,
		Clock:       clk,
		Config:      cfg,
		Orgs:        orgrepository.NewRepository(db),
		Usage:       usagerepository.NewRepository(db),
		Provisioner: NewEventProvisioner(events.NewOutboxPublisher(db, node, clk)),
		Tokens:      issuer,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &signupFixture{db: db, svc: NewService(p), clock: clk, tokens: issuer}
}

func validRequest(name, email string) domain.Request {
	return domain.Request{
		Name:          name,
		OwnerName:     "Asha Rao",
		OwnerEmail:    email,
		OwnerPassword: "password123",
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestGenerateSlug(t *testing.T) {
	cases := map[string]string{
		"Acme IT & Co.":        "acme-it-co",
		"  Hello__World  ":     "helloworld",
		"a - - b":              "a-b",
		"--Trim Me--":          "trim-me",
		"Café Électrique 24x7": "caf-lectrique-24x7",
		"!!!":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, GenerateSlug(in), in)
	}
}

func TestCheckSlug(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()
	_, err := f.svc.CreateOrganization(ctx, domain.Request{
		Name: "Taken Co", Slug: "takenco", OwnerName: "x", OwnerEmail: "x@taken.test", OwnerPassword: "password123",
	})
	require.NoError(t, err)

	cases := []struct {
		slug      string
		available bool
		reason    string
	}{
		{"freshslug", true, ""},
		{" FreshSlug ", true, ""},
		{"admin", false, "reserved"},
		{"support", false, "reserved"},
		{"abc", false, "4-32"},
		{strings.Repeat("a", 33), false, "4-32"},
		{"test_company!", false, "lowercase"},
		{"test_company", false, "lowercase"},
		{"-lead", false, "lowercase"},
		{"takenco", false, "taken"},
	}
	for _, tc := range cases {
		got, err := f.svc.CheckSlug(ctx, tc.slug)
		require.NoError(t, err)
		assert.Equal(t, tc.available, got.Available, tc.slug)
		if tc.reason != "" {
			assert.Contains(t, strings.ToLower(got.Reason), strings.ToLower(tc.reason), tc.slug)
		}
	}
}

func TestCreateOrganization(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()

	req := validRequest("Acme IT & Co.", " Owner@Acme.Test ")
	req.OwnerPhone = "+91 98450 00000"
	res, err := f.svc.CreateOrganization(ctx, req)
	require.NoError(t, err)

	org := res.Organization
	assert.Equal(t, "acme-it-co", org.Slug)
	assert.Equal(t, plandomain.FreePlanID, org.PlanID)
	assert.Equal(t, orgdomain.StatusTrialing, org.SubscriptionStatus)
	require.NotNil(t, org.TrialEndsAt)
	assert.True(t, org.TrialEndsAt.Equal(f.clock.Now().AddDate(0, 0, 14)))
	assert.Equal(t, res.Owner.ID, org.OwnerID)

	owner := res.Owner
	assert.Equal(t, "owner@acme.test", owner.Email)
	assert.Equal(t, orgdomain.RoleOwner, owner.Role)
	assert.Equal(t, []string{orgdomain.PermissionAll}, []string(owner.Permissions))
	assert.NotEqual(t, "password123", owner.PasswordHash)

	var usage usagedomain.UsageRecord
	require.NoError(t, f.db.First(&usage, "org_id = ?", org.ID).Error)
	assert.EqualValues(t, 1, usage.UserCount)
	assert.Zero(t, usage.DeviceCount)
	assert.True(t, usage.PeriodStart.Equal(time.Date(2025, 3, 31, 18, 30, 0, 0, time.UTC)), usage.PeriodStart)
	assert.True(t, usage.PeriodEnd.Equal(time.Date(2025, 4, 30, 18, 30, 0, 0, time.UTC)), usage.PeriodEnd)

	var event events.DomainEvent
	require.NoError(t, f.db.First(&event, "topic = ?", events.OrganizationCreatedTopic).Error)
	assert.Equal(t, org.ID, event.OrgID)

	sub, err := f.tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, org.ID, sub.OrgID)
	assert.Equal(t, owner.ID, sub.UserID)
}

func TestCreateOrganizationDisambiguatesSlug(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()

	want := []string{"acme-it-co", "acme-it-co-1", "acme-it-co-2"}
	for i, slug := range want {
		email := "owner" + string(rune('a'+i)) + "@acme.test"
		res, err := f.svc.CreateOrganization(ctx, validRequest("Acme IT & Co.", email))
		require.NoError(t, err)
		assert.Equal(t, slug, res.Organization.Slug)
	}
}

func TestCreateOrganizationSkipsReservedDerivedSlug(t *testing.T) {
	f := setupSignup(t)
	res, err := f.svc.CreateOrganization(context.Background(), validRequest("Support", "a@support.test"))
	require.NoError(t, err)
	assert.Equal(t, "support-1", res.Organization.Slug)
}

func TestCreateOrganizationRejections(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()

	first := validRequest("Acme", "owner@acme.test")
	first.Slug = "acme-co"
	_, err := f.svc.CreateOrganization(ctx, first)
	require.NoError(t, err)

	dupSlug := validRequest("Other", "other@acme.test")
	dupSlug.Slug = "ACME-CO"
	_, err = f.svc.CreateOrganization(ctx, dupSlug)
	assert.ErrorIs(t, err, orgdomain.ErrSlugTaken)

	_, err = f.svc.CreateOrganization(ctx, validRequest("Other", "OWNER@acme.test"))
	assert.ErrorIs(t, err, orgdomain.ErrEmailTaken)

	reserved := validRequest("Other", "r@acme.test")
	reserved.Slug = "admin"
	_, err = f.svc.CreateOrganization(ctx, reserved)
	assert.ErrorIs(t, err, domain.ErrReservedSlug)

	bad := validRequest("Other", "b@acme.test")
	bad.Slug = "no"
	_, err = f.svc.CreateOrganization(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)

	short := validRequest("Other", "s@acme.test")
	short.OwnerPassword = "1234567"
	_, err = f.svc.CreateOrganization(ctx, short)
	assert.ErrorIs(t, err, orgdomain.ErrPasswordTooShort)

	_, err = f.svc.CreateOrganization(ctx, validRequest("???", "q@acme.test"))
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.CreateOrganization(ctx, validRequest("Other", "not-an-email"))
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	assert.EqualValues(t, 1, countRows(t, f.db, &orgdomain.Organization{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &orgdomain.OrgUser{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &usagedomain.UsageRecord{}))
}

type failingUsageRepo struct {
	usagedomain.Repository
}

func (r failingUsageRepo) WithTx(tx *gorm.DB) usagedomain.Repository {
	return failingUsageRepo{Repository: r.Repository.WithTx(tx)}
}

func (r failingUsageRepo) Insert(context.Context, *usagedomain.UsageRecord) error {
	return errors.New("disk full")
}

func TestCreateOrganizationRollsBackOnPartialFailure(t *testing.T) {
	f := setupSignup(t, func(p *Params) {
		p.Usage = failingUsageRepo{Repository: p.Usage}
	})

	_, err := f.svc.CreateOrganization(context.Background(), validRequest("Acme", "owner@acme.test"))
	require.Error(t, err)

	assert.Zero(t, countRows(t, f.db, &orgdomain.Organization{}))
	assert.Zero(t, countRows(t, f.db, &orgdomain.OrgUser{}))
	assert.Zero(t, countRows(t, f.db, &events.DomainEvent{}))
}

// blindSlugRepo makes the availability pre-check always pass so the unique
// index has to catch the collision.
type blindSlugRepo struct {
	orgdomain.Repository
}

func (blindSlugRepo) SlugExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestCreateOrganizationRetriesWhenSlugRaceLost(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()
	_, err := f.svc.CreateOrganization(ctx, validRequest("Acme", "first@acme.test"))
	require.NoError(t, err)

	blind := setupSignupOn(t, f, func(p *Params) {
		p.Orgs = blindSlugRepo{Repository: p.Orgs}
	})
	res, err := blind.CreateOrganization(ctx, validRequest("Acme", "second@acme.test"))
	require.NoError(t, err)
	assert.Equal(t, "acme-1", res.Organization.Slug)
	assert.EqualValues(t, 2, countRows(t, f.db, &orgdomain.Organization{}))
}

// setupSignupOn builds a second service over the fixture's database.
func setupSignupOn(t *testing.T, f *signupFixture, opt fixtureOption) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	p := Params{
		DB:          f.db,
		Log:         zaptest.NewLogger(t),
		GenID:       node,
		Clock:       f.clock,
		Orgs:        orgrepository.NewRepository(f.db),
		Usage:       usagerepository.NewRepository(f.db),
		Provisioner: NewEventProvisioner(events.NewOutboxPublisher(f.db, node, f.clock)),
		Tokens:      f.tokens,
	}
	opt(&p)
	return NewService(p)
}

func TestAuthenticate(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()
	res, err := f.svc.CreateOrganization(ctx, validRequest("Acme", "owner@acme.test"))
	require.NoError(t, err)

	session, err := f.svc.Authenticate(ctx, " OWNER@acme.test", "password123")
	require.NoError(t, err)
	assert.Equal(t, res.Owner.ID, session.User.ID)
	assert.Equal(t, res.Organization.ID, session.Organization.ID)
	require.NotNil(t, session.User.LastLogin)
	assert.NotEmpty(t, session.AccessToken)

	var stored orgdomain.OrgUser
	require.NoError(t, f.db.First(&stored, "id = ?", res.Owner.ID).Error)
	require.NotNil(t, stored.LastLogin)

	_, err = f.svc.Authenticate(ctx, "owner@acme.test", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.Authenticate(ctx, "nobody@acme.test", "password123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, f.db.Model(&orgdomain.Organization{}).Where("id = ?", res.Organization.ID).Update("is_active", false).Error)
	_, err = f.svc.Authenticate(ctx, "owner@acme.test", "password123")
	assert.ErrorIs(t, err, domain.ErrInactiveOrg)
}

func TestAuthenticateUpgradesLegacyHash(t *testing.T) {
	f := setupSignup(t)
	ctx := context.Background()
	res, err := f.svc.CreateOrganization(ctx, validRequest("Acme", "owner@acme.test"))
	require.NoError(t, err)

	legacy, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&orgdomain.OrgUser{}).Where("id = ?", res.Owner.ID).Update("password_hash", string(legacy)).Error)

	_, err = f.svc.Authenticate(ctx, "owner@acme.test", "password123")
	require.NoError(t, err)

	var stored orgdomain.OrgUser
	require.NoError(t, f.db.First(&stored, "id = ?", res.Owner.ID).Error)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"), stored.PasswordHash)
}
