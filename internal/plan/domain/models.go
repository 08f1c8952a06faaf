// Package domain contains the subscription plan catalog models.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Feature flag vocabulary. Limits use -1 for unlimited.
const (
	FlagMaxDevices          = "max_devices"
	FlagMaxUsers            = "max_users"
	FlagMaxCompanies        = "max_companies"
	FlagAISupportBot        = "ai_support_bot"
	FlagQRCodes             = "qr_codes"
	FlagAPIAccess           = "api_access"
	FlagCustomBranding      = "custom_branding"
	FlagPrioritySupport     = "priority_support"
	FlagWhiteLabel          = "white_label"
	FlagExportReports       = "export_reports"
	FlagOSTicketIntegration = "osticket_integration"
	FlagEngineerPortal      = "engineer_portal"
)

const Unlimited = -1

// PlanFeatures is the typed feature set carried by a plan.
type PlanFeatures struct {
	MaxDevices          int  `json:"max_devices"`
	MaxUsers            int  `json:"max_users"`
	MaxCompanies        int  `json:"max_companies"`
	AISupportBot        bool `json:"ai_support_bot"`
	QRCodes             bool `json:"qr_codes"`
	APIAccess           bool `json:"api_access"`
	CustomBranding      bool `json:"custom_branding"`
	PrioritySupport     bool `json:"priority_support"`
	WhiteLabel          bool `json:"white_label"`
	ExportReports       bool `json:"export_reports"`
	OSTicketIntegration bool `json:"osticket_integration"`
	EngineerPortal      bool `json:"engineer_portal"`
}

// ToMap flattens the features into the flag vocabulary.
func (f PlanFeatures) ToMap() map[string]any {
	return map[string]any{
		FlagMaxDevices:          f.MaxDevices,
		FlagMaxUsers:            f.MaxUsers,
		FlagMaxCompanies:        f.MaxCompanies,
		FlagAISupportBot:        f.AISupportBot,
		FlagQRCodes:             f.QRCodes,
		FlagAPIAccess:           f.APIAccess,
		FlagCustomBranding:      f.CustomBranding,
		FlagPrioritySupport:     f.PrioritySupport,
		FlagWhiteLabel:          f.WhiteLabel,
		FlagExportReports:       f.ExportReports,
		FlagOSTicketIntegration: f.OSTicketIntegration,
		FlagEngineerPortal:      f.EngineerPortal,
	}
}

// Plan is a catalog entry. Seq preserves insertion order for equal sort orders.
type Plan struct {
	ID                   string                           `gorm:"primaryKey;type:text" json:"id"`
	Name                 string                           `gorm:"type:text;not null" json:"name"`
	DisplayName          string                           `gorm:"type:text;not null" json:"display_name"`
	Description          string                           `gorm:"type:text" json:"description"`
	PriceMonthly         int64                            `gorm:"not null" json:"price_monthly"`
	PriceYearly          int64                            `gorm:"not null" json:"price_yearly"`
	GatewayPlanIDMonthly string                           `gorm:"type:text;column:gateway_plan_id_monthly" json:"gateway_plan_id_monthly,omitempty"`
	GatewayPlanIDYearly  string                           `gorm:"type:text;column:gateway_plan_id_yearly" json:"gateway_plan_id_yearly,omitempty"`
	Features             datatypes.JSONType[PlanFeatures] `gorm:"not null" json:"features"`
	IsActive             bool                             `gorm:"not null" json:"is_active"`
	IsPopular            bool                             `gorm:"not null" json:"is_popular"`
	SortOrder            int                              `gorm:"not null;index" json:"sort_order"`
	Seq                  int64                            `gorm:"not null" json:"-"`
	CreatedAt            time.Time                        `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time                        `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "pricing_plans" }
