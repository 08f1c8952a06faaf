package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/auth/password"
	"github.com/smallbiznis/warrantyhub/internal/auth/token"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	obsmetrics "github.com/smallbiznis/warrantyhub/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"github.com/smallbiznis/warrantyhub/internal/signup/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	usageservice "github.com/smallbiznis/warrantyhub/internal/usage/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultTrialDays = 14
	maxInsertRetries = 5
	maxSlugProbes    = 1000
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Orgs        orgdomain.Repository
	Usage       usagedomain.Repository
	Provisioner domain.Provisioner
	Tokens      *token.Issuer
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	trialDays   int
	orgs        orgdomain.Repository
	usage       usagedomain.Repository
	provisioner domain.Provisioner
	tokens      *token.Issuer
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	trialDays := p.Config.Tenancy.TrialDays
	if trialDays <= 0 {
		trialDays = defaultTrialDays
	}
	return &service{
		db:          p.DB,
		log:         p.Log.Named("signup.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		trialDays:   trialDays,
		orgs:        p.Orgs,
		usage:       p.Usage,
		provisioner: p.Provisioner,
		tokens:      p.Tokens,
		metrics:     p.Metrics,
	}
}

// CheckSlug reports whether slug can be chosen at signup. Rule violations
// come back as an unavailable result, not an error.
func (s *service) CheckSlug(ctx context.Context, raw string) (domain.SlugCheck, error) {
	candidate := normalizeSlug(raw)
	result := domain.SlugCheck{Slug: candidate}

	if reason, ok := validateSlug(candidate); !ok {
		result.Reason = reason
		return result, nil
	}
	exists, err := s.orgs.SlugExists(ctx, candidate)
	if err != nil {
		return result, err
	}
	if exists {
		result.Reason = "Subdomain already taken"
		return result, nil
	}
	result.Available = true
	return result, nil
}

// CreateOrganization writes the organization, its owner, the usage record
// and the created event in one transaction. The unique slug index decides
// races; derived slugs move on to the next suffix when they lose one.
func (s *service) CreateOrganization(ctx context.Context, req domain.Request) (*domain.Result, error) {
	res, err := s.createOrganization(ctx, req)
	if err != nil {
		s.metrics.RecordSignup(ctx, outcome(err))
		return nil, err
	}
	s.metrics.RecordSignup(ctx, "created")
	return res, nil
}

func (s *service) createOrganization(ctx context.Context, req domain.Request) (*domain.Result, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	ownerName := strings.TrimSpace(req.OwnerName)
	if ownerName == "" {
		return nil, domain.ErrInvalidOwnerName
	}
	email := strings.ToLower(strings.TrimSpace(req.OwnerEmail))
	if !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.OwnerPassword) < orgdomain.MinPasswordLength {
		return nil, orgdomain.ErrPasswordTooShort
	}

	explicit := normalizeSlug(req.Slug)
	base := explicit
	if explicit != "" {
		if _, ok := validateSlug(explicit); !ok {
			if isReservedSlug(explicit) {
				return nil, domain.ErrReservedSlug
			}
			return nil, domain.ErrInvalidSlug
		}
		exists, err := s.orgs.SlugExists(ctx, explicit)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, orgdomain.ErrSlugTaken
		}
	} else {
		base = GenerateSlug(name)
		if base == "" {
			return nil, domain.ErrInvalidName
		}
	}

	exists, err := s.orgs.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, orgdomain.ErrEmailTaken
	}

	hash, err := password.Hash(req.OwnerPassword)
	if err != nil {
		return nil, err
	}

	candidate, suffix := explicit, 0
	if explicit == "" {
		if candidate, suffix, err = s.nextFreeSlug(ctx, base, 0); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now().UTC()
	trialEnds := now.AddDate(0, 0, s.trialDays)

	var org *orgdomain.Organization
	var owner *orgdomain.OrgUser
	for attempt := 0; ; attempt++ {
		org, owner = s.newTenant(req, name, ownerName, email, hash, candidate, now, trialEnds)
		err = s.insertTenant(ctx, org, owner, now)
		if err == nil {
			break
		}
		if explicit != "" || !errors.Is(err, orgdomain.ErrSlugTaken) || attempt+1 >= maxInsertRetries {
			return nil, err
		}
		s.log.Debug("slug lost to concurrent signup", zap.String("slug", candidate))
		if candidate, suffix, err = s.nextFreeSlug(ctx, base, suffix+1); err != nil {
			return nil, err
		}
	}

	accessToken, expiresAt, err := s.tokens.Issue(token.Subject{
		UserID: owner.ID,
		OrgID:  org.ID,
		Role:   owner.Role,
		Email:  owner.Email,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("owner_id", owner.ID.String()),
	)
	return &domain.Result{
		Organization: org,
		Owner:        owner,
		AccessToken:  accessToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *service) newTenant(req domain.Request, name, ownerName, email, hash, slug string, now, trialEnds time.Time) (*orgdomain.Organization, *orgdomain.OrgUser) {
	orgID := s.genID.Generate()
	ownerID := s.genID.Generate()
	phone := strings.TrimSpace(req.OwnerPhone)

	org := &orgdomain.Organization{
		ID:                 orgID,
		Name:               name,
		Slug:               slug,
		OwnerID:            ownerID,
		Email:              email,
		Phone:              phone,
		Industry:           strings.TrimSpace(req.Industry),
		CompanySize:        strings.TrimSpace(req.CompanySize),
		PlanID:             plandomain.FreePlanID,
		SubscriptionStatus: orgdomain.StatusTrialing,
		TrialEndsAt:        &trialEnds,
		FeatureOverrides:   datatypes.JSONMap{},
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	owner := &orgdomain.OrgUser{
		ID:           ownerID,
		OrgID:        orgID,
		Name:         ownerName,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         orgdomain.RoleOwner,
		Permissions:  datatypes.NewJSONSlice([]string{orgdomain.PermissionAll}),
		IsActive:     true,
		CreatedAt:    now,
	}
	return org, owner
}

func (s *service) insertTenant(ctx context.Context, org *orgdomain.Organization, owner *orgdomain.OrgUser, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orgs := s.orgs.WithTx(tx)
		if err := orgs.InsertOrganization(ctx, org); err != nil {
			return err
		}
		if err := orgs.InsertUser(ctx, owner); err != nil {
			return err
		}
		record := usageservice.NewRecord(s.genID.Generate(), org.ID, now, s.clock.Location(), 1)
		if err := s.usage.WithTx(tx).Insert(ctx, record); err != nil {
			return fmt.Errorf("insert usage record: %w", err)
		}
		return s.provisioner.Provision(ctx, tx, org, owner)
	})
}

// nextFreeSlug probes base, base-1, base-2, ... starting at suffix from and
// skipping reserved words.
func (s *service) nextFreeSlug(ctx context.Context, base string, from int) (string, int, error) {
	for n := from; n < from+maxSlugProbes; n++ {
		candidate := base
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d", base, n)
		}
		if isReservedSlug(candidate) {
			continue
		}
		exists, err := s.orgs.SlugExists(ctx, candidate)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return candidate, n, nil
		}
	}
	return "", 0, orgdomain.ErrSlugTaken
}

// Authenticate answers ErrInvalidCredentials for both unknown emails and
// wrong passwords.
func (s *service) Authenticate(ctx context.Context, email, plain string) (*domain.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || plain == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.orgs.GetActiveUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(plain, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	org, err := s.orgs.GetOrganization(ctx, user.OrgID)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive {
		return nil, domain.ErrInactiveOrg
	}

	now := s.clock.Now().UTC()
	fields := map[string]any{"last_login": now}
	if password.NeedsRehash(user.PasswordHash) {
		if hash, err := password.Hash(plain); err == nil {
			fields["password_hash"] = hash
		}
	}
	if _, err := s.orgs.UpdateUser(ctx, user.OrgID, user.ID, fields); err != nil {
		s.log.Warn("failed to record login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	accessToken, expiresAt, err := s.tokens.Issue(token.Subject{
		UserID: user.ID,
		OrgID:  org.ID,
		Role:   user.Role,
		Email:  user.Email,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		User:         user,
		Organization: org,
		AccessToken:  accessToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, orgdomain.ErrSlugTaken):
		return "slug_taken"
	case errors.Is(err, orgdomain.ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, domain.ErrReservedSlug), errors.Is(err, domain.ErrInvalidSlug),
		errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidOwnerName),
		errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, orgdomain.ErrPasswordTooShort):
		return "invalid"
	default:
		return "error"
	}
}
