package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads return nil, nil for missing rows. Every call is scoped
// to one organization.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertCompany(ctx context.Context, company *Company) error
	GetCompany(ctx context.Context, orgID, companyID snowflake.ID) (*Company, error)
	ListCompanies(ctx context.Context, orgID snowflake.ID) ([]*Company, error)
	DeleteCompany(ctx context.Context, orgID, companyID snowflake.ID) (int64, error)
	CountCompanyDevices(ctx context.Context, orgID, companyID snowflake.ID) (int64, error)

	InsertDevice(ctx context.Context, device *Device) error
	GetDevice(ctx context.Context, orgID, deviceID snowflake.ID) (*Device, error)
	FindDeviceByIdentifier(ctx context.Context, orgID snowflake.ID, identifier string) (*Device, error)
	SerialExists(ctx context.Context, orgID snowflake.ID, serial string) (bool, error)
	ListDevices(ctx context.Context, orgID snowflake.ID, filter DeviceFilter) ([]*Device, error)
	UpdateDevice(ctx context.Context, orgID, deviceID snowflake.ID, fields map[string]any) (int64, error)
	DeleteDevice(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error)

	InsertPart(ctx context.Context, part *Part) error
	GetPart(ctx context.Context, orgID, partID snowflake.ID) (*Part, error)
	ListParts(ctx context.Context, orgID, deviceID snowflake.ID) ([]*Part, error)
	UpdatePart(ctx context.Context, orgID, partID snowflake.ID, fields map[string]any) (int64, error)
	DeleteDeviceParts(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error)

	InsertAMC(ctx context.Context, amc *AMC) error
	ListAMCs(ctx context.Context, orgID, deviceID snowflake.ID) ([]*AMC, error)
	DeleteDeviceAMCs(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error)

	InsertContract(ctx context.Context, contract *AMCContract) error
	GetContract(ctx context.Context, orgID, contractID snowflake.ID) (*AMCContract, error)

	InsertAssignment(ctx context.Context, assignment *AMCDeviceAssignment) error
	GetAssignment(ctx context.Context, orgID, assignmentID snowflake.ID) (*AMCDeviceAssignment, error)
	ListActiveAssignments(ctx context.Context, orgID, deviceID snowflake.ID) ([]*AMCDeviceAssignment, error)
	UpdateAssignment(ctx context.Context, orgID, assignmentID snowflake.ID, fields map[string]any) (int64, error)
	DeleteDeviceAssignments(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error)

	InsertServiceRecord(ctx context.Context, record *ServiceHistory) error
	ListServiceRecords(ctx context.Context, orgID, deviceID snowflake.ID) ([]*ServiceHistory, error)

	// Date arguments are YYYY-MM-DD. An empty date counts every row.
	CountCompanies(ctx context.Context, orgID snowflake.ID) (int64, error)
	CountDevices(ctx context.Context, orgID snowflake.ID, warrantyFrom string) (int64, error)
	CountParts(ctx context.Context, orgID snowflake.ID) (int64, error)
	CountAMCs(ctx context.Context, orgID snowflake.ID, endFrom string) (int64, error)
	CountContracts(ctx context.Context, orgID snowflake.ID, endFrom string) (int64, error)
	RecentDevices(ctx context.Context, orgID snowflake.ID, limit int) ([]*Device, error)
}

// DeviceFilter pages devices by ascending id.
type DeviceFilter struct {
	CompanyID snowflake.ID
	AfterID   snowflake.ID
	Limit     int
}
