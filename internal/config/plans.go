package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanDefinition is the file representation of a catalog entry used to seed plans.
type PlanDefinition struct {
	ID                   string         `mapstructure:"id"`
	Name                 string         `mapstructure:"name"`
	DisplayName          string         `mapstructure:"displayName"`
	Description          string         `mapstructure:"description"`
	PriceMonthly         int64          `mapstructure:"priceMonthly"`
	PriceYearly          int64          `mapstructure:"priceYearly"`
	GatewayPlanIDMonthly string         `mapstructure:"gatewayPlanIdMonthly"`
	GatewayPlanIDYearly  string         `mapstructure:"gatewayPlanIdYearly"`
	Features             map[string]any `mapstructure:"features"`
	IsPopular            bool           `mapstructure:"isPopular"`
	SortOrder            int            `mapstructure:"sortOrder"`
}

type PlanCatalogConfig struct {
	Plans []PlanDefinition `mapstructure:"plans"`
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalogConfig
}

// NewPlanCatalogHolder reads plans.yml when present and keeps it fresh on change.
// Without a file the holder is empty and the built-in catalog is used.
func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/warrantyhub")
	v.AddConfigPath(".")

	holder := &PlanCatalogHolder{}
	holder.current.Store(PlanCatalogConfig{})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return holder, nil
		}
		return nil, err
	}

	var cfg PlanCatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return nil, err
	}
	if err := ValidatePlanCatalog(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalogConfig
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Warn("plan catalog reload failed", zap.Error(err))
			return
		}
		if err := ValidatePlanCatalog(updated); err != nil {
			log.Warn("invalid plan catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, mostly for tests.
func NewStaticPlanCatalogHolder(cfg PlanCatalogConfig) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalogConfig {
	if h == nil {
		return PlanCatalogConfig{}
	}
	return h.current.Load().(PlanCatalogConfig)
}

func ValidatePlanCatalog(cfg PlanCatalogConfig) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	hasFree := false
	for _, p := range cfg.Plans {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return errors.New("catalog.plans[].id is required")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("catalog.plans: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if id == "plan_free" {
			hasFree = true
		}
	}
	if !hasFree {
		return errors.New("catalog.plans must contain plan_free")
	}
	return nil
}
