package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads return nil, nil when the row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateOrganization(ctx context.Context, id snowflake.ID, fields map[string]any) (int64, error)
	ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]Organization, error)

	InsertUser(ctx context.Context, user *OrgUser) error
	GetUser(ctx context.Context, orgID, userID snowflake.ID) (*OrgUser, error)
	GetActiveUserByEmail(ctx context.Context, email string) (*OrgUser, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListUsers(ctx context.Context, orgID snowflake.ID) ([]*OrgUser, error)
	CountActiveOwners(ctx context.Context, orgID snowflake.ID) (int64, error)
	UpdateUser(ctx context.Context, orgID, userID snowflake.ID, fields map[string]any) (int64, error)
}
