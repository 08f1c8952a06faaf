package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/warrantyhub/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) Find(ctx context.Context, orgID int64, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, orgID, query, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, orgID int64, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, orgID, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Update(ctx context.Context, orgID int64, resourceID int64, fields map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(new(T)).
		Where("org_id = ? AND id = ?", orgID, resourceID).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *store[T]) Delete(ctx context.Context, orgID int64, resourceID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, resourceID).
		Delete(new(T))
	return res.RowsAffected, res.Error
}

func (r *store[T]) DeleteWhere(ctx context.Context, orgID int64, query string, args ...any) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Where(query, args...).
		Delete(new(T))
	return res.RowsAffected, res.Error
}

// Count applies opts as extra filters.
func (r *store[T]) Count(ctx context.Context, orgID int64, query *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	stmt := r.db.WithContext(ctx).Model(new(T)).Where("org_id = ?", orgID)
	if query != nil {
		stmt = stmt.Where(query)
	}
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	err := stmt.Count(&count).Error
	return count, err
}

func (r *store[T]) buildQuery(ctx context.Context, orgID int64, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter != nil {
		db = db.Where(filter)
	}

	for _, opt := range opts {
		db = opt.Apply(db)
	}

	return db
}
