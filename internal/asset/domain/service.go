package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	"github.com/smallbiznis/warrantyhub/pkg/db/pagination"
)

type Service interface {
	CreateCompany(ctx context.Context, orgID snowflake.ID, req CreateCompanyRequest) (*Company, error)
	ListCompanies(ctx context.Context, orgID snowflake.ID) ([]*Company, error)
	DeleteCompany(ctx context.Context, orgID, companyID snowflake.ID) error

	CreateDevice(ctx context.Context, orgID snowflake.ID, req CreateDeviceRequest) (*Device, error)
	GetDevice(ctx context.Context, orgID, deviceID snowflake.ID) (*Device, error)
	ListDevices(ctx context.Context, orgID snowflake.ID, req ListDevicesRequest) (*ListDevicesResponse, error)
	UpdateDevice(ctx context.Context, orgID, deviceID snowflake.ID, req UpdateDeviceRequest) (*Device, error)
	DeleteDevice(ctx context.Context, orgID, deviceID snowflake.ID) error

	CreatePart(ctx context.Context, orgID snowflake.ID, req CreatePartRequest) (*Part, error)
	UpdatePart(ctx context.Context, orgID, partID snowflake.ID, req UpdatePartRequest) (*Part, error)
	// ListParts and ListAMCs list the whole organization when deviceID is zero.
	ListParts(ctx context.Context, orgID, deviceID snowflake.ID) ([]*Part, error)

	CreateAMC(ctx context.Context, orgID snowflake.ID, req CreateAMCRequest) (*AMC, error)
	ListAMCs(ctx context.Context, orgID, deviceID snowflake.ID) ([]*AMC, error)
	CreateContract(ctx context.Context, orgID snowflake.ID, req CreateContractRequest) (*AMCContract, error)
	AssignContract(ctx context.Context, orgID snowflake.ID, req AssignContractRequest) (*AMCDeviceAssignment, error)
	RevokeAssignment(ctx context.Context, orgID, assignmentID snowflake.ID) (*AMCDeviceAssignment, error)

	RecordService(ctx context.Context, orgID snowflake.ID, req RecordServiceRequest) (*ServiceHistory, error)
	ListServiceHistory(ctx context.Context, orgID, deviceID snowflake.ID) ([]*ServiceHistory, error)

	Stats(ctx context.Context, orgID snowflake.ID) (*DashboardStats, error)
}

// DashboardStats summarizes one organization as of today in the reference zone.
// A warranty or AMC is active through its end date.
type DashboardStats struct {
	CompaniesCount    int64     `json:"companies_count"`
	UsersCount        int64     `json:"users_count"`
	DevicesCount      int64     `json:"devices_count"`
	PartsCount        int64     `json:"parts_count"`
	ActiveWarranties  int64     `json:"active_warranties"`
	ExpiredWarranties int64     `json:"expired_warranties"`
	ActiveAMC         int64     `json:"active_amc"`
	ActiveContracts   int64     `json:"active_contracts"`
	RecentDevices     []*Device `json:"recent_devices"`
}

// CoverageResolver answers the coverage verdict for a stored device.
type CoverageResolver interface {
	ResolveDeviceCoverage(ctx context.Context, orgID, deviceID snowflake.ID) (*coverage.Result, error)
}

type CreateCompanyRequest struct {
	Name         string `json:"name"`
	GSTNumber    string `json:"gst_number"`
	Address      string `json:"address"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Notes        string `json:"notes"`
}

type CreateDeviceRequest struct {
	CompanyID       string `json:"company_id"`
	AssignedUser    string `json:"assigned_user"`
	DeviceType      string `json:"device_type"`
	Brand           string `json:"brand"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	AssetTag        string `json:"asset_tag"`
	PurchaseDate    string `json:"purchase_date"`
	WarrantyEndDate string `json:"warranty_end_date"`
	Status          string `json:"status"`
}

type UpdateDeviceRequest struct {
	AssignedUser    *string `json:"assigned_user"`
	AssetTag        *string `json:"asset_tag"`
	WarrantyEndDate *string `json:"warranty_end_date"`
	Status          *string `json:"status"`
}

type ListDevicesRequest struct {
	CompanyID string `form:"company_id"`
	pagination.Pagination
}

type ListDevicesResponse struct {
	Devices  []*Device            `json:"devices"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type CreatePartRequest struct {
	DeviceID       string `json:"device_id"`
	PartName       string `json:"part_name"`
	ReplacedDate   string `json:"replaced_date"`
	WarrantyMonths int    `json:"warranty_months"`
	Notes          string `json:"notes"`
}

type UpdatePartRequest struct {
	PartName       *string `json:"part_name"`
	ReplacedDate   *string `json:"replaced_date"`
	WarrantyMonths *int    `json:"warranty_months"`
	Notes          *string `json:"notes"`
}

type CreateAMCRequest struct {
	DeviceID  string `json:"device_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Notes     string `json:"notes"`
}

type CreateContractRequest struct {
	CompanyID        string            `json:"company_id"`
	Name             string            `json:"name"`
	AMCType          string            `json:"amc_type"`
	StartDate        string            `json:"start_date"`
	EndDate          string            `json:"end_date"`
	CoverageIncludes *CoverageIncludes `json:"coverage_includes"`
	Exclusions       *Exclusions       `json:"exclusions"`
	Entitlements     *Entitlements     `json:"entitlements"`
	AssetMapping     *AssetMapping     `json:"asset_mapping"`
	InternalNotes    string            `json:"internal_notes"`
}

type AssignContractRequest struct {
	ContractID     string       `json:"amc_contract_id"`
	DeviceID       string       `json:"device_id"`
	CoverageStart  string       `json:"coverage_start"`
	CoverageEnd    string       `json:"coverage_end"`
	CoverageSource string       `json:"coverage_source"`
	Notes          string       `json:"notes"`
	CreatedBy      snowflake.ID `json:"-"`
}

// RecordServiceRequest leaves BillingType and AMCCovered to the coverage
// resolver when they are not supplied.
type RecordServiceRequest struct {
	DeviceID        string          `json:"device_id"`
	ServiceDate     string          `json:"service_date"`
	ServiceType     string          `json:"service_type"`
	ProblemReported string          `json:"problem_reported"`
	ActionTaken     string          `json:"action_taken"`
	LaborCost       decimal.Decimal `json:"labor_cost"`
	PartsCost       decimal.Decimal `json:"parts_cost"`
	BillingType     string          `json:"billing_type"`
	AMCCovered      *bool           `json:"amc_covered"`
	TechnicianName  string          `json:"technician_name"`
	Notes           string          `json:"notes"`
	CreatedBy       snowflake.ID    `json:"-"`
}

var (
	ErrInvalidOrg            = errors.New("invalid_organization")
	ErrInvalidID             = errors.New("invalid_id")
	ErrCompanyNotFound       = errors.New("company_not_found")
	ErrDeviceNotFound        = errors.New("device_not_found")
	ErrPartNotFound          = errors.New("part_not_found")
	ErrContractNotFound      = errors.New("contract_not_found")
	ErrAssignmentNotFound    = errors.New("assignment_not_found")
	ErrCompanyInUse          = errors.New("company_has_devices")
	ErrDuplicateSerial       = errors.New("duplicate_serial_number")
	ErrOverlappingAssignment = errors.New("overlapping_assignment")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidSerial         = errors.New("invalid_serial_number")
	ErrInvalidDevice         = errors.New("invalid_device")
	ErrInvalidDate           = errors.New("invalid_date")
	ErrInvalidDateRange      = errors.New("invalid_date_range")
	ErrInvalidWarrantyMonths = errors.New("invalid_warranty_months")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidBillingType    = errors.New("invalid_billing_type")
	ErrInvalidCost           = errors.New("invalid_cost")
	ErrInvalidServiceRecord  = errors.New("invalid_service_record")
	ErrInvalidContract       = errors.New("invalid_contract")
)
