package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository mutates counters with single UPDATE statements. Every method
// returns rows affected so callers can tell a missing record from a refusal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, record *UsageRecord) error
	Get(ctx context.Context, orgID snowflake.ID) (*UsageRecord, error)
	Add(ctx context.Context, orgID snowflake.ID, column string, delta int64, now time.Time) (int64, error)
	Subtract(ctx context.Context, orgID snowflake.ID, column string, delta int64, now time.Time) (int64, error)
	AddWithin(ctx context.Context, orgID snowflake.ID, column string, delta, limit int64, now time.Time) (int64, error)
	RollPeriods(ctx context.Context, start, end, now time.Time) (int64, error)
}
