// Package seed fills the plan catalog on startup and during `migrate`.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/smallbiznis/warrantyhub/internal/config"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// PlansFromCatalog converts file definitions into catalog rows. An empty
// catalog yields the built-in plans.
func PlansFromCatalog(cfg config.PlanCatalogConfig) ([]plandomain.Plan, error) {
	if len(cfg.Plans) == 0 {
		return plandomain.DefaultPlans(), nil
	}

	plans := make([]plandomain.Plan, 0, len(cfg.Plans))
	for _, def := range cfg.Plans {
		features, err := decodeFeatures(def.Features)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", def.ID, err)
		}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			name = strings.TrimPrefix(def.ID, "plan_")
		}
		display := strings.TrimSpace(def.DisplayName)
		if display == "" {
			display = name
		}
		plans = append(plans, plandomain.Plan{
			ID:                   strings.TrimSpace(def.ID),
			Name:                 name,
			DisplayName:          display,
			Description:          def.Description,
			PriceMonthly:         def.PriceMonthly,
			PriceYearly:          def.PriceYearly,
			GatewayPlanIDMonthly: def.GatewayPlanIDMonthly,
			GatewayPlanIDYearly:  def.GatewayPlanIDYearly,
			Features:             datatypes.NewJSONType(features),
			IsActive:             true,
			IsPopular:            def.IsPopular,
			SortOrder:            def.SortOrder,
		})
	}
	return plans, nil
}

func decodeFeatures(raw map[string]any) (plandomain.PlanFeatures, error) {
	var features plandomain.PlanFeatures
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &features,
	})
	if err != nil {
		return features, err
	}
	if err := decoder.Decode(raw); err != nil {
		return features, err
	}
	return features, nil
}

// EnsurePlans inserts missing catalog plans. Existing rows are left alone so
// admin edits survive restarts.
func EnsurePlans(ctx context.Context, plans plandomain.Service, holder *config.PlanCatalogHolder, log *zap.Logger) error {
	catalog, err := PlansFromCatalog(holder.Get())
	if err != nil {
		return err
	}
	if err := plans.EnsureDefaults(ctx, catalog); err != nil {
		return err
	}
	log.Info("plan catalog ensured", zap.Int("plans", len(catalog)))
	return nil
}
