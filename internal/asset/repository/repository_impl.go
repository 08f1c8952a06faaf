package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/asset/domain"
	dbpkg "github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/smallbiznis/warrantyhub/pkg/db/option"
	"github.com/smallbiznis/warrantyhub/pkg/repository"
	"gorm.io/gorm"
)

var createdOrder = option.WithSortBy(option.QuerySortBy{Column: "created_at"})

type repo struct {
	db          *gorm.DB
	companies   repository.Repository[domain.Company]
	devices     repository.Repository[domain.Device]
	parts       repository.Repository[domain.Part]
	amcs        repository.Repository[domain.AMC]
	contracts   repository.Repository[domain.AMCContract]
	assignments repository.Repository[domain.AMCDeviceAssignment]
	services    repository.Repository[domain.ServiceHistory]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{
		db:          db,
		companies:   repository.ProvideStore[domain.Company](db),
		devices:     repository.ProvideStore[domain.Device](db),
		parts:       repository.ProvideStore[domain.Part](db),
		amcs:        repository.ProvideStore[domain.AMC](db),
		contracts:   repository.ProvideStore[domain.AMCContract](db),
		assignments: repository.ProvideStore[domain.AMCDeviceAssignment](db),
		services:    repository.ProvideStore[domain.ServiceHistory](db),
	}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return NewRepository(tx)
}

func (r *repo) InsertCompany(ctx context.Context, company *domain.Company) error {
	return r.companies.Create(ctx, company)
}

func (r *repo) GetCompany(ctx context.Context, orgID, companyID snowflake.ID) (*domain.Company, error) {
	return r.companies.FindOne(ctx, int64(orgID), &domain.Company{ID: companyID})
}

func (r *repo) ListCompanies(ctx context.Context, orgID snowflake.ID) ([]*domain.Company, error) {
	return r.companies.Find(ctx, int64(orgID), nil, option.WithSortBy(option.QuerySortBy{Column: "name"}))
}

func (r *repo) DeleteCompany(ctx context.Context, orgID, companyID snowflake.ID) (int64, error) {
	return r.companies.Delete(ctx, int64(orgID), int64(companyID))
}

func (r *repo) CountCompanyDevices(ctx context.Context, orgID, companyID snowflake.ID) (int64, error) {
	return r.devices.Count(ctx, int64(orgID), &domain.Device{CompanyID: companyID})
}

func (r *repo) InsertDevice(ctx context.Context, device *domain.Device) error {
	err := r.devices.Create(ctx, device)
	if dbpkg.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateSerial
	}
	return err
}

func (r *repo) GetDevice(ctx context.Context, orgID, deviceID snowflake.ID) (*domain.Device, error) {
	return r.devices.FindOne(ctx, int64(orgID), &domain.Device{ID: deviceID})
}

// FindDeviceByIdentifier matches serial number first, then asset tag, both
// case-insensitively.
func (r *repo) FindDeviceByIdentifier(ctx context.Context, orgID snowflake.ID, identifier string) (*domain.Device, error) {
	needle := strings.ToLower(strings.TrimSpace(identifier))
	for _, column := range []string{"serial_number", "asset_tag"} {
		device, err := r.devices.FindOne(ctx, int64(orgID), nil,
			option.WithWhere("LOWER("+column+") = ?", needle),
			createdOrder,
		)
		if err != nil || device != nil {
			return device, err
		}
	}
	return nil, nil
}

func (r *repo) SerialExists(ctx context.Context, orgID snowflake.ID, serial string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("org_id = ? AND LOWER(serial_number) = ?", orgID, strings.ToLower(strings.TrimSpace(serial))).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListDevices(ctx context.Context, orgID snowflake.ID, filter domain.DeviceFilter) ([]*domain.Device, error) {
	opts := []option.QueryOption{option.WithSortBy(option.QuerySortBy{Column: "id"})}
	if filter.CompanyID != 0 {
		opts = append(opts, option.WithWhere("company_id = ?", filter.CompanyID))
	}
	if filter.AfterID != 0 {
		opts = append(opts, option.WithWhere("id > ?", filter.AfterID))
	}
	opts = append(opts, option.WithLimit(filter.Limit))
	return r.devices.Find(ctx, int64(orgID), nil, opts...)
}

func (r *repo) UpdateDevice(ctx context.Context, orgID, deviceID snowflake.ID, fields map[string]any) (int64, error) {
	return r.devices.Update(ctx, int64(orgID), int64(deviceID), fields)
}

func (r *repo) DeleteDevice(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error) {
	return r.devices.Delete(ctx, int64(orgID), int64(deviceID))
}

func (r *repo) InsertPart(ctx context.Context, part *domain.Part) error {
	return r.parts.Create(ctx, part)
}

func (r *repo) GetPart(ctx context.Context, orgID, partID snowflake.ID) (*domain.Part, error) {
	return r.parts.FindOne(ctx, int64(orgID), &domain.Part{ID: partID})
}

func (r *repo) ListParts(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.Part, error) {
	return r.parts.Find(ctx, int64(orgID), &domain.Part{DeviceID: deviceID}, createdOrder)
}

func (r *repo) UpdatePart(ctx context.Context, orgID, partID snowflake.ID, fields map[string]any) (int64, error) {
	return r.parts.Update(ctx, int64(orgID), int64(partID), fields)
}

func (r *repo) DeleteDeviceParts(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error) {
	return r.parts.DeleteWhere(ctx, int64(orgID), "device_id = ?", deviceID)
}

func (r *repo) InsertAMC(ctx context.Context, amc *domain.AMC) error {
	return r.amcs.Create(ctx, amc)
}

func (r *repo) ListAMCs(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.AMC, error) {
	return r.amcs.Find(ctx, int64(orgID), &domain.AMC{DeviceID: deviceID}, createdOrder)
}

func (r *repo) DeleteDeviceAMCs(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error) {
	return r.amcs.DeleteWhere(ctx, int64(orgID), "device_id = ?", deviceID)
}

func (r *repo) InsertContract(ctx context.Context, contract *domain.AMCContract) error {
	return r.contracts.Create(ctx, contract)
}

func (r *repo) GetContract(ctx context.Context, orgID, contractID snowflake.ID) (*domain.AMCContract, error) {
	return r.contracts.FindOne(ctx, int64(orgID), &domain.AMCContract{ID: contractID})
}

func (r *repo) InsertAssignment(ctx context.Context, assignment *domain.AMCDeviceAssignment) error {
	return r.assignments.Create(ctx, assignment)
}

func (r *repo) GetAssignment(ctx context.Context, orgID, assignmentID snowflake.ID) (*domain.AMCDeviceAssignment, error) {
	return r.assignments.FindOne(ctx, int64(orgID), &domain.AMCDeviceAssignment{ID: assignmentID})
}

func (r *repo) ListActiveAssignments(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.AMCDeviceAssignment, error) {
	return r.assignments.Find(ctx, int64(orgID),
		&domain.AMCDeviceAssignment{DeviceID: deviceID, Status: domain.AssignmentActive},
		createdOrder,
	)
}

func (r *repo) UpdateAssignment(ctx context.Context, orgID, assignmentID snowflake.ID, fields map[string]any) (int64, error) {
	return r.assignments.Update(ctx, int64(orgID), int64(assignmentID), fields)
}

func (r *repo) DeleteDeviceAssignments(ctx context.Context, orgID, deviceID snowflake.ID) (int64, error) {
	return r.assignments.DeleteWhere(ctx, int64(orgID), "device_id = ?", deviceID)
}

func (r *repo) InsertServiceRecord(ctx context.Context, record *domain.ServiceHistory) error {
	err := r.services.Create(ctx, record)
	if dbpkg.IsDuplicateKeyErr(err) {
		return errors.Join(domain.ErrInvalidServiceRecord, err)
	}
	return err
}

func (r *repo) ListServiceRecords(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.ServiceHistory, error) {
	return r.services.Find(ctx, int64(orgID), &domain.ServiceHistory{DeviceID: deviceID},
		option.WithSortBy(option.QuerySortBy{Column: "service_date", Desc: true}),
	)
}

func (r *repo) CountCompanies(ctx context.Context, orgID snowflake.ID) (int64, error) {
	return r.companies.Count(ctx, int64(orgID), nil)
}

func (r *repo) CountDevices(ctx context.Context, orgID snowflake.ID, warrantyFrom string) (int64, error) {
	return r.devices.Count(ctx, int64(orgID), nil, dateFrom("warranty_end_date", warrantyFrom)...)
}

func (r *repo) CountParts(ctx context.Context, orgID snowflake.ID) (int64, error) {
	return r.parts.Count(ctx, int64(orgID), nil)
}

func (r *repo) CountAMCs(ctx context.Context, orgID snowflake.ID, endFrom string) (int64, error) {
	return r.amcs.Count(ctx, int64(orgID), nil, dateFrom("end_date", endFrom)...)
}

func (r *repo) CountContracts(ctx context.Context, orgID snowflake.ID, endFrom string) (int64, error) {
	return r.contracts.Count(ctx, int64(orgID), nil, dateFrom("end_date", endFrom)...)
}

func (r *repo) RecentDevices(ctx context.Context, orgID snowflake.ID, limit int) ([]*domain.Device, error) {
	return r.devices.Find(ctx, int64(orgID), nil,
		option.WithSortBy(option.QuerySortBy{Column: "created_at", Desc: true}),
		option.WithLimit(limit),
	)
}

// dateFrom filters a YYYY-MM-DD column, which sorts chronologically as text.
func dateFrom(column, from string) []option.QueryOption {
	if from == "" {
		return nil
	}
	return []option.QueryOption{option.WithWhere(column+" >= ?", from)}
}
