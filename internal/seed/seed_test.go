package seed

import (
	"context"
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

func TestPlansFromCatalogDefaults(t *testing.T) {
	plans, err := PlansFromCatalog(config.PlanCatalogConfig{})
	require.NoError(t, err)
	assert.Equal(t, plandomain.DefaultPlans(), plans)
}

func TestPlansFromCatalogDecodesFeatures(t *testing.T) {
	plans, err := PlansFromCatalog(config.PlanCatalogConfig{Plans: []config.PlanDefinition{
		{ID: "plan_free", Features: map[string]any{"max_devices": 5, "qr_codes": true}},
		{ID: "plan_team", DisplayName: "Team", PriceMonthly: 99900, Features: map[string]any{
			"max_devices":       "-1",
			"max_users":         25,
			"unreleased_widget": true,
		}},
	}})
	require.NoError(t, err)
	require.Len(t, plans, 2)

	free := plans[0].Features.Data()
	assert.Equal(t, 5, free.MaxDevices)
	assert.True(t, free.QRCodes)
	assert.Equal(t, "free", plans[0].Name)

	team := plans[1].Features.Data()
	assert.Equal(t, plandomain.Unlimited, team.MaxDevices)
	assert.Equal(t, 25, team.MaxUsers)
	assert.Equal(t, "Team", plans[1].DisplayName)
	assert.True(t, plans[1].IsActive)
}

func TestPlansFromCatalogRejectsBadValues(t *testing.T) {
	_, err := PlansFromCatalog(config.PlanCatalogConfig{Plans: []config.PlanDefinition{
		{ID: "plan_free", Features: map[string]any{"max_devices": "lots"}},
	}})
	assert.Error(t, err)
}

func TestEnsurePlansIsIdempotent(t *testing.T) {
	db, err := dbpkg.NewTest(&plandomain.Plan{})
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
	ctx := context.Background()

	holder := config.NewStaticPlanCatalogHolder(config.PlanCatalogConfig{})
	require.NoError(t, EnsurePlans(ctx, plans, holder, log))
	require.NoError(t, EnsurePlans(ctx, plans, holder, log))

	listed, err := plans.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, listed, len(plandomain.DefaultPlans()))
}
