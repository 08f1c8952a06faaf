package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetUsage(ctx context.Context, orgID snowflake.ID) (*UsageRecord, error)
	IncrementUsage(ctx context.Context, orgID snowflake.ID, kind string, amount int) error
	DecrementUsage(ctx context.Context, orgID snowflake.ID, kind string, amount int) error
	// ReserveWithin adds amount only while the result stays within limit.
	// A negative limit means unlimited.
	ReserveWithin(ctx context.Context, orgID snowflake.ID, kind string, amount int, limit int64) (bool, error)
	IncrementAIChats(ctx context.Context, orgID snowflake.ID, amount int) error
	RollPeriods(ctx context.Context) (int64, error)
}

var (
	ErrNotFound      = errors.New("usage_record_not_found")
	ErrUnknownKind   = errors.New("unknown_usage_kind")
	ErrInvalidAmount = errors.New("invalid_usage_amount")
	ErrInvalidOrg    = errors.New("invalid_organization")
)
