package migration

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	planrepository "github.com/smallbiznis/warrantyhub/internal/plan/repository"
	planservice "github.com/smallbiznis/warrantyhub/internal/plan/service"
	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestApplyOnSQLite(t *testing.T) {
	db, err := dbpkg.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	plans := planservice.New(planservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  planrepository.NewRepository(db),
	})

	p := Params{
		DB:      db,
		Log:     log,
		Plans:   plans,
		Catalog: config.NewStaticPlanCatalogHolder(config.PlanCatalogConfig{}),
	}
	require.NoError(t, Apply(context.Background(), p))
	require.NoError(t, Apply(context.Background(), p))

	for _, table := range []string{"organizations", "org_users", "devices", "amc_device_assignments", "service_history", "domain_events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	free := plans.GetPlan(context.Background(), plandomain.FreePlanID)
	assert.Equal(t, plandomain.FreePlanID, free.ID)
}
