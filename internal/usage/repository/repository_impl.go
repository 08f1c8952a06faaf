package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, record *domain.UsageRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Get(ctx context.Context, orgID snowflake.ID) (*domain.UsageRecord, error) {
	var record domain.UsageRecord
	err := r.db.WithContext(ctx).Where("org_id = ?", orgID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) Add(ctx context.Context, orgID snowflake.ID, column string, delta int64, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			column:       gorm.Expr(fmt.Sprintf("%s + ?", column), delta),
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// Subtract floors the counter at zero.
func (r *repository) Subtract(ctx context.Context, orgID snowflake.ID, column string, delta int64, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			column:       gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s < ? THEN 0 ELSE %[1]s - ? END", column), delta, delta),
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) AddWithin(ctx context.Context, orgID snowflake.ID, column string, delta, limit int64, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("org_id = ?", orgID).
		Where(fmt.Sprintf("%s + ? <= ?", column), delta, limit).
		Updates(map[string]any{
			column:       gorm.Expr(fmt.Sprintf("%s + ?", column), delta),
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) RollPeriods(ctx context.Context, start, end, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("period_end <= ?", now).
		Updates(map[string]any{
			"ai_chats_this_month": 0,
			"period_start":        start,
			"period_end":          end,
			"updated_at":          now,
		})
	return res.RowsAffected, res.Error
}
