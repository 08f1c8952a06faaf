package repository

import (
	"context"

	"github.com/smallbiznis/warrantyhub/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic tenant-scoped store. Every call requires the owning
// organization and filters on org_id.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, orgID int64, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, orgID int64, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, orgID int64, resourceID int64, fields map[string]any) (int64, error)
	Delete(ctx context.Context, orgID int64, resourceID int64) (int64, error)
	DeleteWhere(ctx context.Context, orgID int64, query string, args ...any) (int64, error)
	Count(ctx context.Context, orgID int64, query *T, opts ...option.QueryOption) (int64, error)
}
