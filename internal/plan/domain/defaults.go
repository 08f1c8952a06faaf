package domain

import "gorm.io/datatypes"

const (
	FreePlanID       = "plan_free"
	ProPlanID        = "plan_pro"
	EnterprisePlanID = "plan_enterprise"
)

var freeFeatures = PlanFeatures{
	MaxDevices:   10,
	MaxUsers:     2,
	MaxCompanies: 1,
	QRCodes:      true,
}

// FreeFeatures is the downgrade target for expired subscriptions when the
// stored free plan cannot be read.
func FreeFeatures() PlanFeatures {
	return freeFeatures
}

// DefaultPlans is the built-in catalog used when no plans file is provided.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:           FreePlanID,
			Name:         "free",
			DisplayName:  "Free",
			Description:  "Perfect for small teams getting started",
			PriceMonthly: 0,
			PriceYearly:  0,
			Features:     datatypes.NewJSONType(freeFeatures),
			IsActive:     true,
			SortOrder:    1,
		},
		{
			ID:           ProPlanID,
			Name:         "pro",
			DisplayName:  "Pro",
			Description:  "For growing businesses with more devices",
			PriceMonthly: 99900,
			PriceYearly:  999900,
			Features: datatypes.NewJSONType(PlanFeatures{
				MaxDevices:          100,
				MaxUsers:            10,
				MaxCompanies:        5,
				AISupportBot:        true,
				QRCodes:             true,
				PrioritySupport:     true,
				ExportReports:       true,
				OSTicketIntegration: true,
				EngineerPortal:      true,
			}),
			IsActive:  true,
			IsPopular: true,
			SortOrder: 2,
		},
		{
			ID:           EnterprisePlanID,
			Name:         "enterprise",
			DisplayName:  "Enterprise",
			Description:  "For large organizations with advanced needs",
			PriceMonthly: 299900,
			PriceYearly:  2999900,
			Features: datatypes.NewJSONType(PlanFeatures{
				MaxDevices:          Unlimited,
				MaxUsers:            Unlimited,
				MaxCompanies:        Unlimited,
				AISupportBot:        true,
				QRCodes:             true,
				APIAccess:           true,
				CustomBranding:      true,
				PrioritySupport:     true,
				WhiteLabel:          true,
				ExportReports:       true,
				OSTicketIntegration: true,
				EngineerPortal:      true,
			}),
			IsActive:  true,
			SortOrder: 3,
		},
	}
}

// FallbackFreePlan is returned when even the stored free plan is unavailable.
func FallbackFreePlan() Plan {
	return DefaultPlans()[0]
}
