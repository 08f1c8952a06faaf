package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/organization/domain"
	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/smallbiznis/warrantyhub/pkg/db/option"
	"github.com/smallbiznis/warrantyhub/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	users repository.Repository[domain.OrgUser]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{db: db, users: repository.ProvideStore[domain.OrgUser](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx, users: r.users.WithTrx(tx)}
}

func (r *repo) InsertOrganization(ctx context.Context, org *domain.Organization) error {
	err := r.db.WithContext(ctx).Create(org).Error
	if dbpkg.IsDuplicateKeyErr(err) {
		return domain.ErrSlugTaken
	}
	return err
}

func (r *repo) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return r.firstOrganization(ctx, "id = ?", id)
}

func (r *repo) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.firstOrganization(ctx, "slug = ?", strings.ToLower(slug))
}

func (r *repo) firstOrganization(ctx context.Context, query string, args ...any) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where(query, args...).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("slug = ?", strings.ToLower(slug)).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) UpdateOrganization(ctx context.Context, id snowflake.ID, fields map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", id).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *repo) ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]domain.Organization, error) {
	var orgs []domain.Organization
	err := r.db.WithContext(ctx).
		Where("subscription_status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?", domain.StatusTrialing, cutoff).
		Order("id ASC").
		Find(&orgs).Error
	return orgs, err
}

func (r *repo) InsertUser(ctx context.Context, user *domain.OrgUser) error {
	err := r.users.Create(ctx, user)
	if dbpkg.IsDuplicateKeyErr(err) {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *repo) GetUser(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrgUser, error) {
	return r.users.FindOne(ctx, int64(orgID), &domain.OrgUser{ID: userID})
}

func (r *repo) GetActiveUserByEmail(ctx context.Context, email string) (*domain.OrgUser, error) {
	var user domain.OrgUser
	err := r.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", normalizeEmail(email), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repo) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrgUser{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListUsers(ctx context.Context, orgID snowflake.ID) ([]*domain.OrgUser, error) {
	return r.users.Find(ctx, int64(orgID), nil,
		option.WithSortBy(option.QuerySortBy{Column: "created_at"}),
	)
}

func (r *repo) CountActiveOwners(ctx context.Context, orgID snowflake.ID) (int64, error) {
	return r.users.Count(ctx, int64(orgID), &domain.OrgUser{Role: domain.RoleOwner, IsActive: true})
}

func (r *repo) UpdateUser(ctx context.Context, orgID, userID snowflake.ID, fields map[string]any) (int64, error) {
	return r.users.Update(ctx, int64(orgID), int64(userID), fields)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
