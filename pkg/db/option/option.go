package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a query before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryFunc func(db *gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type QuerySortBy struct {
	Column string
	Desc   bool
}

// WithQuerySortBy validates the requested column against an allow list.
// Unknown columns fall back to created_at.
func WithQuerySortBy(sortBy, orderBy string, allowed map[string]bool) QuerySortBy {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if !allowed[column] {
		column = "created_at"
	}
	return QuerySortBy{
		Column: column,
		Desc:   strings.EqualFold(strings.TrimSpace(orderBy), "desc"),
	}
}

func WithSortBy(s QuerySortBy) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", s.Column, dir)).Order("id ASC")
	})
}

func WithLimit(limit int) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOrgID(orgID int64) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where("org_id = ?", orgID)
	})
}

func WithWhere(query string, args ...any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}
