// Package domain defines effective feature sets and quota results.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
)

type Service interface {
	EffectiveFeatures(ctx context.Context, orgID snowflake.ID) FeatureSet
	HasFeature(ctx context.Context, orgID snowflake.ID, flag string) bool
	RequireFeature(ctx context.Context, orgID snowflake.ID, flag string) error
	CheckLimit(ctx context.Context, orgID snowflake.ID, kind string) LimitResult
	Reserve(ctx context.Context, orgID snowflake.ID, kind string, amount int) error
	Release(ctx context.Context, orgID snowflake.ID, kind string, amount int) error
	Invalidate(orgID snowflake.ID)
}

// FeatureSet maps flag names to booleans or numbers. Unknown flags read as
// absent.
type FeatureSet map[string]any

// Bool reports whether flag is on. Numbers count as on when non-zero.
func (f FeatureSet) Bool(flag string) bool {
	switch v := f[flag].(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

// Int returns a numeric flag, or 0 when absent or not a number.
func (f FeatureSet) Int(flag string) int64 {
	n, _ := toInt64(f[flag])
	return n
}

func (f FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// LimitResult answers a quota check. Limit is -1 for unlimited.
type LimitResult struct {
	Kind    string `json:"kind"`
	Allowed bool   `json:"allowed"`
	Current int64  `json:"current"`
	Limit   int64  `json:"limit"`
	Message string `json:"message"`
}

// LimitFlag maps a limit kind to the plan flag that bounds it.
func LimitFlag(kind string) (string, bool) {
	switch kind {
	case usagedomain.KindDevices:
		return plandomain.FlagMaxDevices, true
	case usagedomain.KindUsers:
		return plandomain.FlagMaxUsers, true
	case usagedomain.KindCompanies:
		return plandomain.FlagMaxCompanies, true
	}
	return "", false
}

var (
	ErrLimitExceeded   = errors.New("limit_exceeded")
	ErrFeatureDisabled = errors.New("feature_disabled")
)

// LimitError is returned when a reservation would exceed the plan limit.
type LimitError struct {
	Kind    string
	Current int64
	Limit   int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit_exceeded: %s %d/%d", e.Kind, e.Current, e.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Message is the upgrade prompt shown to the tenant.
func (e *LimitError) Message() string {
	return BlockedMessage(e.Kind, e.Limit)
}

func UsedMessage(kind string, current, limit int64) string {
	return fmt.Sprintf("You have used %d of %d %s", current, limit, kind)
}

func BlockedMessage(kind string, limit int64) string {
	return fmt.Sprintf("You have reached the limit of %d %s. Please upgrade your plan.", limit, kind)
}

// FeatureError names the disabled flag.
type FeatureError struct {
	Flag string
}

func (e *FeatureError) Error() string {
	return "feature_disabled: " + e.Flag
}

func (e *FeatureError) Is(target error) bool {
	return target == ErrFeatureDisabled
}
