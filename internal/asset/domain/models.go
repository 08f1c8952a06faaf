package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DeviceStatusActive  = "active"
	DeviceStatusRetired = "retired"
	DeviceStatusLost    = "lost"

	AssignmentActive  = "active"
	AssignmentExpired = "expired"
	AssignmentRevoked = "revoked"

	BillingCovered    = "covered"
	BillingChargeable = "chargeable"

	AMCTypeComprehensive    = "comprehensive"
	AMCTypeNonComprehensive = "non_comprehensive"

	MappingAllCompany    = "all_company"
	MappingSelected      = "selected_assets"
	MappingDeviceTypes   = "device_types"
	CoverageSourceManual = "manual"
)

// Company is a customer site the organization maintains devices for.
type Company struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	GSTNumber    string       `gorm:"type:text" json:"gst_number,omitempty"`
	Address      string       `gorm:"type:text" json:"address,omitempty"`
	ContactName  string       `gorm:"type:text" json:"contact_name"`
	ContactEmail string       `gorm:"type:text" json:"contact_email"`
	ContactPhone string       `gorm:"type:text" json:"contact_phone"`
	Notes        string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (Company) TableName() string { return "companies" }

// Device dates are calendar dates formatted YYYY-MM-DD.
type Device struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID `gorm:"not null;uniqueIndex:ux_devices_org_serial,priority:1;index" json:"org_id"`
	CompanyID       snowflake.ID `gorm:"not null;index" json:"company_id"`
	AssignedUser    string       `gorm:"type:text" json:"assigned_user,omitempty"`
	DeviceType      string       `gorm:"type:text;not null" json:"device_type"`
	Brand           string       `gorm:"type:text;not null" json:"brand"`
	Model           string       `gorm:"type:text;not null" json:"model"`
	SerialNumber    string       `gorm:"type:text;not null;uniqueIndex:ux_devices_org_serial,priority:2" json:"serial_number"`
	AssetTag        string       `gorm:"type:text;index" json:"asset_tag,omitempty"`
	PurchaseDate    string       `gorm:"type:varchar(10)" json:"purchase_date"`
	WarrantyEndDate string       `gorm:"type:varchar(10)" json:"warranty_end_date,omitempty"`
	Status          string       `gorm:"type:text;not null" json:"status"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (Device) TableName() string { return "devices" }

// Part expiry is derived from ReplacedDate and WarrantyMonths on every write.
type Part struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID              snowflake.ID `gorm:"not null;index" json:"org_id"`
	DeviceID           snowflake.ID `gorm:"not null;index" json:"device_id"`
	PartName           string       `gorm:"type:text;not null" json:"part_name"`
	ReplacedDate       string       `gorm:"type:varchar(10);not null" json:"replaced_date"`
	WarrantyMonths     int          `gorm:"not null" json:"warranty_months"`
	WarrantyExpiryDate string       `gorm:"type:varchar(10);not null" json:"warranty_expiry_date"`
	Notes              string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
}

func (Part) TableName() string { return "parts" }

// AMC is the legacy per-device maintenance record.
type AMC struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	DeviceID  snowflake.ID `gorm:"not null;index" json:"device_id"`
	StartDate string       `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate   string       `gorm:"type:varchar(10);not null" json:"end_date"`
	Notes     string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (AMC) TableName() string { return "amc" }

type CoverageIncludes struct {
	OnsiteSupport         bool `json:"onsite_support"`
	RemoteSupport         bool `json:"remote_support"`
	PreventiveMaintenance bool `json:"preventive_maintenance"`
}

type Exclusions struct {
	HardwareParts        bool `json:"hardware_parts"`
	Consumables          bool `json:"consumables"`
	Accessories          bool `json:"accessories"`
	ThirdPartySoftware   bool `json:"third_party_software"`
	PhysicalLiquidDamage bool `json:"physical_liquid_damage"`
}

// DefaultExclusions excludes everything until the contract says otherwise.
func DefaultExclusions() Exclusions {
	return Exclusions{
		HardwareParts:        true,
		Consumables:          true,
		Accessories:          true,
		ThirdPartySoftware:   true,
		PhysicalLiquidDamage: true,
	}
}

type Entitlements struct {
	OnsiteVisitsPerYear            *int   `json:"onsite_visits_per_year,omitempty"`
	RemoteSupportType              string `json:"remote_support_type"`
	RemoteSupportCount             *int   `json:"remote_support_count,omitempty"`
	PreventiveMaintenanceFrequency string `json:"preventive_maintenance_frequency"`
}

func DefaultEntitlements() Entitlements {
	return Entitlements{
		RemoteSupportType:              "unlimited",
		PreventiveMaintenanceFrequency: "quarterly",
	}
}

type AssetMapping struct {
	MappingType         string   `json:"mapping_type"`
	SelectedAssetIDs    []string `json:"selected_asset_ids"`
	SelectedDeviceTypes []string `json:"selected_device_types"`
}

// AMCContract is an organization-level maintenance contract for a company.
type AMCContract struct {
	ID               snowflake.ID                         `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID                         `gorm:"not null;index" json:"org_id"`
	CompanyID        snowflake.ID                         `gorm:"not null;index" json:"company_id"`
	Name             string                               `gorm:"type:text;not null" json:"name"`
	AMCType          string                               `gorm:"type:text;not null" json:"amc_type"`
	StartDate        string                               `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate          string                               `gorm:"type:varchar(10);not null" json:"end_date"`
	CoverageIncludes datatypes.JSONType[CoverageIncludes] `json:"coverage_includes"`
	Exclusions       datatypes.JSONType[Exclusions]       `json:"exclusions"`
	Entitlements     datatypes.JSONType[Entitlements]     `json:"entitlements"`
	AssetMapping     datatypes.JSONType[AssetMapping]     `json:"asset_mapping"`
	InternalNotes    string                               `gorm:"type:text" json:"internal_notes,omitempty"`
	CreatedAt        time.Time                            `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                            `gorm:"not null" json:"updated_at"`
}

func (AMCContract) TableName() string { return "amc_contracts" }

// AMCDeviceAssignment binds a contract to one device. Its window may differ
// from the contract's own dates.
type AMCDeviceAssignment struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index" json:"org_id"`
	ContractID     snowflake.ID `gorm:"not null;index" json:"amc_contract_id"`
	DeviceID       snowflake.ID `gorm:"not null;index" json:"device_id"`
	CoverageStart  string       `gorm:"type:varchar(10);not null" json:"coverage_start"`
	CoverageEnd    string       `gorm:"type:varchar(10);not null" json:"coverage_end"`
	CoverageSource string       `gorm:"type:text;not null" json:"coverage_source"`
	Status         string       `gorm:"type:text;not null;index" json:"status"`
	Notes          string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy      snowflake.ID `json:"created_by,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (AMCDeviceAssignment) TableName() string { return "amc_device_assignments" }

// ServiceHistory rows are written once and never updated.
type ServiceHistory struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null;index" json:"org_id"`
	DeviceID        snowflake.ID    `gorm:"not null;index" json:"device_id"`
	CompanyID       snowflake.ID    `gorm:"not null;index" json:"company_id"`
	TicketNumber    string          `gorm:"type:text;not null;uniqueIndex" json:"ticket_number"`
	ServiceDate     string          `gorm:"type:varchar(10);not null" json:"service_date"`
	ServiceType     string          `gorm:"type:text;not null" json:"service_type"`
	ProblemReported string          `gorm:"type:text" json:"problem_reported,omitempty"`
	ActionTaken     string          `gorm:"type:text;not null" json:"action_taken"`
	LaborCost       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"labor_cost"`
	PartsCost       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"parts_cost"`
	TotalCost       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_cost"`
	BillingType     string          `gorm:"type:text;not null" json:"billing_type"`
	AMCCovered      bool            `gorm:"not null" json:"amc_covered"`
	AMCContractID   *snowflake.ID   `json:"amc_contract_id,omitempty"`
	TechnicianName  string          `gorm:"type:text" json:"technician_name,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy       snowflake.ID    `json:"created_by,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (ServiceHistory) TableName() string { return "service_history" }
