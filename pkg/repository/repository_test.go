package repository

import (
	"context"
	"testing"

	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/smallbiznis/warrantyhub/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID    int64  `gorm:"primaryKey"`
	OrgID int64  `gorm:"not null;index"`
	Name  string `gorm:"type:text"`
}

func TestStoreScopesByOrganization(t *testing.T) {
	db, err := dbpkg.NewTest(&widget{})
	require.NoError(t, err)
	ctx := context.Background()
	store := ProvideStore[widget](db)

	require.NoError(t, store.Create(ctx, &widget{ID: 1, OrgID: 10, Name: "a"}))
	require.NoError(t, store.Create(ctx, &widget{ID: 2, OrgID: 10, Name: "b"}))
	require.NoError(t, store.Create(ctx, &widget{ID: 3, OrgID: 20, Name: "a"}))

	items, err := store.Find(ctx, 10, nil, option.WithSortBy(option.WithQuerySortBy("id", "desc", map[string]bool{"id": true})))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ID)

	other, err := store.FindOne(ctx, 20, &widget{ID: 1})
	require.NoError(t, err)
	assert.Nil(t, other)

	affected, err := store.Update(ctx, 20, 1, map[string]any{"name": "z"})
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = store.Delete(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	count, err := store.Count(ctx, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStoreCountWithWhere(t *testing.T) {
	db, err := dbpkg.NewTest(&widget{})
	require.NoError(t, err)
	ctx := context.Background()
	store := ProvideStore[widget](db)

	require.NoError(t, store.Create(ctx, &widget{ID: 1, OrgID: 10, Name: "2025-01-01"}))
	require.NoError(t, store.Create(ctx, &widget{ID: 2, OrgID: 10, Name: "2026-01-01"}))
	require.NoError(t, store.Create(ctx, &widget{ID: 3, OrgID: 20, Name: "2026-01-01"}))

	count, err := store.Count(ctx, 10, nil, option.WithWhere("name >= ?", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
