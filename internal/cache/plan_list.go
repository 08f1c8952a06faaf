package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"go.uber.org/zap"
)

const (
	planListAllKey    = "plans:list:all"
	planListActiveKey = "plans:list:active"
	planListTTL       = 24 * time.Hour
)

type planListCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewPlanListCache returns nil when redis is not configured.
func NewPlanListCache(client *redis.Client, log *zap.Logger) plandomain.ListCache {
	if client == nil {
		return nil
	}
	return &planListCache{client: client, log: log.Named("plan.cache")}
}

func planListKey(activeOnly bool) string {
	if activeOnly {
		return planListActiveKey
	}
	return planListAllKey
}

func (c *planListCache) GetPlans(ctx context.Context, activeOnly bool) ([]plandomain.Plan, bool) {
	raw, err := c.client.Get(ctx, planListKey(activeOnly)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("plan list cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var plans []plandomain.Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		c.log.Warn("plan list cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return plans, true
}

func (c *planListCache) SetPlans(ctx context.Context, activeOnly bool, plans []plandomain.Plan) {
	raw, err := json.Marshal(plans)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, planListKey(activeOnly), raw, planListTTL).Err(); err != nil {
		c.log.Warn("plan list cache write failed", zap.Error(err))
	}
}

func (c *planListCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, planListAllKey, planListActiveKey).Err(); err != nil {
		c.log.Warn("plan list cache invalidation failed", zap.Error(err))
	}
}
