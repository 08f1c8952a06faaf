package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
	"github.com/smallbiznis/warrantyhub/internal/ratelimit"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"github.com/smallbiznis/warrantyhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	deviceLockPrefix     = "warrantyhub:devices:"
	assignmentLockPrefix = "warrantyhub:assignments:"
	lockWait             = 2 * time.Second
	ticketSuffixLength   = 8
	recentDeviceCount    = 5
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Features featuredomain.Service
	Usage    usagedomain.Service
	Coverage domain.CoverageResolver
	Locker   *ratelimit.Locker `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	features featuredomain.Service
	usage    usagedomain.Service
	coverage domain.CoverageResolver
	locker   *ratelimit.Locker
	lockTTL  time.Duration
}

func New(p Params) domain.Service {
	lockTTL := p.Config.Tenancy.DeviceLockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("asset.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		features: p.Features,
		usage:    p.Usage,
		coverage: p.Coverage,
		locker:   p.Locker,
		lockTTL:  lockTTL,
	}
}

func (s *Service) CreateCompany(ctx context.Context, orgID snowflake.ID, req domain.CreateCompanyRequest) (*domain.Company, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	if err := s.features.Reserve(ctx, orgID, usagedomain.KindCompanies, 1); err != nil {
		return nil, err
	}

	company := &domain.Company{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		Name:         name,
		GSTNumber:    strings.ToUpper(strings.TrimSpace(req.GSTNumber)),
		Address:      strings.TrimSpace(req.Address),
		ContactName:  strings.TrimSpace(req.ContactName),
		ContactEmail: strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
		Notes:        strings.TrimSpace(req.Notes),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.InsertCompany(ctx, company); err != nil {
		s.release(ctx, orgID, usagedomain.KindCompanies)
		return nil, err
	}
	return company, nil
}

func (s *Service) ListCompanies(ctx context.Context, orgID snowflake.ID) ([]*domain.Company, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	return s.repo.ListCompanies(ctx, orgID)
}

// DeleteCompany refuses while devices still reference the company.
func (s *Service) DeleteCompany(ctx context.Context, orgID, companyID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrInvalidOrg
	}
	company, err := s.repo.GetCompany(ctx, orgID, companyID)
	if err != nil {
		return err
	}
	if company == nil {
		return domain.ErrCompanyNotFound
	}
	devices, err := s.repo.CountCompanyDevices(ctx, orgID, companyID)
	if err != nil {
		return err
	}
	if devices > 0 {
		return domain.ErrCompanyInUse
	}
	affected, err := s.repo.DeleteCompany(ctx, orgID, companyID)
	if err != nil {
		return err
	}
	if affected > 0 {
		s.release(ctx, orgID, usagedomain.KindCompanies)
	}
	return nil
}

// CreateDevice claims a device slot before inserting and gives it back when
// the insert fails. The serial check and insert run under a per-org lock.
func (s *Service) CreateDevice(ctx context.Context, orgID snowflake.ID, req domain.CreateDeviceRequest) (*domain.Device, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	device, err := s.buildDevice(ctx, orgID, req)
	if err != nil {
		return nil, err
	}

	err = s.locker.WithLock(ctx, deviceLockPrefix+orgID.String(), s.lockTTL, lockWait, func(ctx context.Context) error {
		exists, err := s.repo.SerialExists(ctx, orgID, device.SerialNumber)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateSerial
		}
		if err := s.features.Reserve(ctx, orgID, usagedomain.KindDevices, 1); err != nil {
			return err
		}
		if err := s.repo.InsertDevice(ctx, device); err != nil {
			s.release(ctx, orgID, usagedomain.KindDevices)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

func (s *Service) buildDevice(ctx context.Context, orgID snowflake.ID, req domain.CreateDeviceRequest) (*domain.Device, error) {
	companyID, err := parseID(req.CompanyID)
	if err != nil {
		return nil, err
	}
	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		return nil, domain.ErrInvalidSerial
	}
	deviceType := strings.ToLower(strings.TrimSpace(req.DeviceType))
	brand := strings.TrimSpace(req.Brand)
	model := strings.TrimSpace(req.Model)
	if deviceType == "" || brand == "" || model == "" {
		return nil, domain.ErrInvalidDevice
	}
	purchase, err := normalizeDate(req.PurchaseDate)
	if err != nil {
		return nil, err
	}
	warrantyEnd, err := normalizeOptionalDate(req.WarrantyEndDate)
	if err != nil {
		return nil, err
	}
	status, err := normalizeStatus(req.Status)
	if err != nil {
		return nil, err
	}

	company, err := s.repo.GetCompany(ctx, orgID, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrCompanyNotFound
	}

	now := s.clock.Now()
	return &domain.Device{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		CompanyID:       companyID,
		AssignedUser:    strings.TrimSpace(req.AssignedUser),
		DeviceType:      deviceType,
		Brand:           brand,
		Model:           model,
		SerialNumber:    serial,
		AssetTag:        strings.TrimSpace(req.AssetTag),
		PurchaseDate:    purchase,
		WarrantyEndDate: warrantyEnd,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Service) GetDevice(ctx context.Context, orgID, deviceID snowflake.ID) (*domain.Device, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	device, err := s.repo.GetDevice(ctx, orgID, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, domain.ErrDeviceNotFound
	}
	return device, nil
}

func (s *Service) ListDevices(ctx context.Context, orgID snowflake.ID, req domain.ListDevicesRequest) (*domain.ListDevicesResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	filter := domain.DeviceFilter{Limit: req.Limit() + 1}
	if strings.TrimSpace(req.CompanyID) != "" {
		companyID, err := parseID(req.CompanyID)
		if err != nil {
			return nil, err
		}
		filter.CompanyID = companyID
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	devices, err := s.repo.ListDevices(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	page, info := pagination.BuildCursorPage(devices, req.Limit(), func(d *domain.Device) string {
		return d.ID.String()
	})
	if page == nil {
		page = []*domain.Device{}
	}
	return &domain.ListDevicesResponse{Devices: page, PageInfo: info}, nil
}

func (s *Service) UpdateDevice(ctx context.Context, orgID, deviceID snowflake.ID, req domain.UpdateDeviceRequest) (*domain.Device, error) {
	if _, err := s.GetDevice(ctx, orgID, deviceID); err != nil {
		return nil, err
	}

	fields := map[string]any{"updated_at": s.clock.Now()}
	if req.AssignedUser != nil {
		fields["assigned_user"] = strings.TrimSpace(*req.AssignedUser)
	}
	if req.AssetTag != nil {
		fields["asset_tag"] = strings.TrimSpace(*req.AssetTag)
	}
	if req.WarrantyEndDate != nil {
		end, err := normalizeOptionalDate(*req.WarrantyEndDate)
		if err != nil {
			return nil, err
		}
		fields["warranty_end_date"] = end
	}
	if req.Status != nil {
		status, err := normalizeStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		fields["status"] = status
	}

	if _, err := s.repo.UpdateDevice(ctx, orgID, deviceID, fields); err != nil {
		return nil, err
	}
	return s.GetDevice(ctx, orgID, deviceID)
}

// DeleteDevice removes the device with its parts, legacy AMC records and
// contract assignments, then returns the device slot. Service history stays.
func (s *Service) DeleteDevice(ctx context.Context, orgID, deviceID snowflake.ID) error {
	if _, err := s.GetDevice(ctx, orgID, deviceID); err != nil {
		return err
	}

	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.DeleteDeviceParts(ctx, orgID, deviceID); err != nil {
			return err
		}
		if _, err := repo.DeleteDeviceAMCs(ctx, orgID, deviceID); err != nil {
			return err
		}
		if _, err := repo.DeleteDeviceAssignments(ctx, orgID, deviceID); err != nil {
			return err
		}
		var err error
		affected, err = repo.DeleteDevice(ctx, orgID, deviceID)
		return err
	})
	if err != nil {
		return err
	}
	if affected > 0 {
		s.release(ctx, orgID, usagedomain.KindDevices)
	}
	return nil
}

func (s *Service) CreatePart(ctx context.Context, orgID snowflake.ID, req domain.CreatePartRequest) (*domain.Part, error) {
	deviceID, err := parseID(req.DeviceID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.PartName)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	replaced, expiry, err := partDates(req.ReplacedDate, req.WarrantyMonths)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDevice(ctx, orgID, deviceID); err != nil {
		return nil, err
	}

	part := &domain.Part{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		DeviceID:           deviceID,
		PartName:           name,
		ReplacedDate:       replaced,
		WarrantyMonths:     req.WarrantyMonths,
		WarrantyExpiryDate: expiry,
		Notes:              strings.TrimSpace(req.Notes),
		CreatedAt:          s.clock.Now(),
	}
	if err := s.repo.InsertPart(ctx, part); err != nil {
		return nil, err
	}
	return part, nil
}

// UpdatePart always rewrites the expiry from the merged replaced date and
// warranty months.
func (s *Service) UpdatePart(ctx context.Context, orgID, partID snowflake.ID, req domain.UpdatePartRequest) (*domain.Part, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	part, err := s.repo.GetPart(ctx, orgID, partID)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, domain.ErrPartNotFound
	}

	if req.PartName != nil {
		name := strings.TrimSpace(*req.PartName)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		part.PartName = name
	}
	if req.ReplacedDate != nil {
		part.ReplacedDate = *req.ReplacedDate
	}
	if req.WarrantyMonths != nil {
		part.WarrantyMonths = *req.WarrantyMonths
	}
	if req.Notes != nil {
		part.Notes = strings.TrimSpace(*req.Notes)
	}
	replaced, expiry, err := partDates(part.ReplacedDate, part.WarrantyMonths)
	if err != nil {
		return nil, err
	}
	part.ReplacedDate = replaced
	part.WarrantyExpiryDate = expiry

	_, err = s.repo.UpdatePart(ctx, orgID, partID, map[string]any{
		"part_name":            part.PartName,
		"replaced_date":        part.ReplacedDate,
		"warranty_months":      part.WarrantyMonths,
		"warranty_expiry_date": part.WarrantyExpiryDate,
		"notes":                part.Notes,
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

func (s *Service) CreateAMC(ctx context.Context, orgID snowflake.ID, req domain.CreateAMCRequest) (*domain.AMC, error) {
	deviceID, err := parseID(req.DeviceID)
	if err != nil {
		return nil, err
	}
	start, end, err := dateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDevice(ctx, orgID, deviceID); err != nil {
		return nil, err
	}

	amc := &domain.AMC{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		DeviceID:  deviceID,
		StartDate: start,
		EndDate:   end,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertAMC(ctx, amc); err != nil {
		return nil, err
	}
	return amc, nil
}

func (s *Service) CreateContract(ctx context.Context, orgID snowflake.ID, req domain.CreateContractRequest) (*domain.AMCContract, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	companyID, err := parseID(req.CompanyID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	amcType := strings.ToLower(strings.TrimSpace(req.AMCType))
	switch amcType {
	case "":
		amcType = domain.AMCTypeComprehensive
	case domain.AMCTypeComprehensive, domain.AMCTypeNonComprehensive:
	default:
		return nil, domain.ErrInvalidContract
	}
	start, end, err := dateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	company, err := s.repo.GetCompany(ctx, orgID, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrCompanyNotFound
	}

	includes := domain.CoverageIncludes{}
	if req.CoverageIncludes != nil {
		includes = *req.CoverageIncludes
	}
	exclusions := domain.DefaultExclusions()
	if req.Exclusions != nil {
		exclusions = *req.Exclusions
	}
	entitlements := domain.DefaultEntitlements()
	if req.Entitlements != nil {
		entitlements = *req.Entitlements
	}
	mapping := domain.AssetMapping{MappingType: domain.MappingAllCompany}
	if req.AssetMapping != nil {
		mapping = *req.AssetMapping
		switch mapping.MappingType {
		case "":
			mapping.MappingType = domain.MappingAllCompany
		case domain.MappingAllCompany, domain.MappingSelected, domain.MappingDeviceTypes:
		default:
			return nil, domain.ErrInvalidContract
		}
	}

	now := s.clock.Now()
	contract := &domain.AMCContract{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		CompanyID:        companyID,
		Name:             name,
		AMCType:          amcType,
		StartDate:        start,
		EndDate:          end,
		CoverageIncludes: datatypes.NewJSONType(includes),
		Exclusions:       datatypes.NewJSONType(exclusions),
		Entitlements:     datatypes.NewJSONType(entitlements),
		AssetMapping:     datatypes.NewJSONType(mapping),
		InternalNotes:    strings.TrimSpace(req.InternalNotes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertContract(ctx, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

// AssignContract binds a contract to a device of the same company. The window
// defaults to the contract dates and may not overlap another active
// assignment of the device.
func (s *Service) AssignContract(ctx context.Context, orgID snowflake.ID, req domain.AssignContractRequest) (*domain.AMCDeviceAssignment, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	contractID, err := parseID(req.ContractID)
	if err != nil {
		return nil, err
	}
	deviceID, err := parseID(req.DeviceID)
	if err != nil {
		return nil, err
	}
	contract, err := s.repo.GetContract(ctx, orgID, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}
	device, err := s.GetDevice(ctx, orgID, deviceID)
	if err != nil {
		return nil, err
	}
	if device.CompanyID != contract.CompanyID {
		return nil, domain.ErrInvalidDevice
	}

	startRaw, endRaw := req.CoverageStart, req.CoverageEnd
	if strings.TrimSpace(startRaw) == "" {
		startRaw = contract.StartDate
	}
	if strings.TrimSpace(endRaw) == "" {
		endRaw = contract.EndDate
	}
	start, end, err := dateRange(startRaw, endRaw)
	if err != nil {
		return nil, err
	}
	source := strings.TrimSpace(req.CoverageSource)
	if source == "" {
		source = domain.CoverageSourceManual
	}

	assignment := &domain.AMCDeviceAssignment{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		ContractID:     contractID,
		DeviceID:       deviceID,
		CoverageStart:  start,
		CoverageEnd:    end,
		CoverageSource: source,
		Status:         domain.AssignmentActive,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedBy:      req.CreatedBy,
		CreatedAt:      s.clock.Now(),
	}

	err = s.locker.WithLock(ctx, assignmentLockPrefix+deviceID.String(), s.lockTTL, lockWait, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			active, err := repo.ListActiveAssignments(ctx, orgID, deviceID)
			if err != nil {
				return err
			}
			for _, existing := range active {
				if overlaps(start, end, existing.CoverageStart, existing.CoverageEnd) {
					return domain.ErrOverlappingAssignment
				}
			}
			return repo.InsertAssignment(ctx, assignment)
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *Service) RevokeAssignment(ctx context.Context, orgID, assignmentID snowflake.ID) (*domain.AMCDeviceAssignment, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	assignment, err := s.repo.GetAssignment(ctx, orgID, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, domain.ErrAssignmentNotFound
	}
	if assignment.Status == domain.AssignmentRevoked {
		return assignment, nil
	}
	if _, err := s.repo.UpdateAssignment(ctx, orgID, assignmentID, map[string]any{"status": domain.AssignmentRevoked}); err != nil {
		return nil, err
	}
	assignment.Status = domain.AssignmentRevoked
	return assignment, nil
}

// RecordService writes an immutable history row. Billing type and AMC flag
// come from the device's current coverage unless the caller supplies both.
func (s *Service) RecordService(ctx context.Context, orgID snowflake.ID, req domain.RecordServiceRequest) (*domain.ServiceHistory, error) {
	deviceID, err := parseID(req.DeviceID)
	if err != nil {
		return nil, err
	}
	serviceType := strings.ToLower(strings.TrimSpace(req.ServiceType))
	action := strings.TrimSpace(req.ActionTaken)
	if serviceType == "" || action == "" {
		return nil, domain.ErrInvalidServiceRecord
	}
	if req.LaborCost.IsNegative() || req.PartsCost.IsNegative() {
		return nil, domain.ErrInvalidCost
	}
	billing := strings.ToLower(strings.TrimSpace(req.BillingType))
	switch billing {
	case "", domain.BillingCovered, domain.BillingChargeable:
	default:
		return nil, domain.ErrInvalidBillingType
	}

	now := s.clock.Now()
	serviceDate := clock.DateOf(now, s.clock.Location()).Format(coverage.DateLayout)
	if strings.TrimSpace(req.ServiceDate) != "" {
		serviceDate, err = normalizeDate(req.ServiceDate)
		if err != nil {
			return nil, err
		}
	}

	device, err := s.GetDevice(ctx, orgID, deviceID)
	if err != nil {
		return nil, err
	}

	record := &domain.ServiceHistory{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		DeviceID:        deviceID,
		CompanyID:       device.CompanyID,
		TicketNumber:    newTicketNumber(now, s.clock.Location()),
		ServiceDate:     serviceDate,
		ServiceType:     serviceType,
		ProblemReported: strings.TrimSpace(req.ProblemReported),
		ActionTaken:     action,
		LaborCost:       req.LaborCost.Round(2),
		PartsCost:       req.PartsCost.Round(2),
		TotalCost:       req.LaborCost.Add(req.PartsCost).Round(2),
		BillingType:     billing,
		TechnicianName:  strings.TrimSpace(req.TechnicianName),
		Notes:           strings.TrimSpace(req.Notes),
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
	}
	if req.AMCCovered != nil {
		record.AMCCovered = *req.AMCCovered
	}

	if billing == "" || req.AMCCovered == nil {
		result, err := s.coverage.ResolveDeviceCoverage(ctx, orgID, deviceID)
		if err != nil {
			return nil, err
		}
		if req.AMCCovered == nil {
			record.AMCCovered = result.AMCCovered()
		}
		if billing == "" {
			record.BillingType = domain.BillingChargeable
			if record.AMCCovered {
				record.BillingType = domain.BillingCovered
			}
		}
		if result.AMCCovered() && result.Winner.Kind == coverage.SourceContract {
			contractID := result.Winner.ContractID
			record.AMCContractID = &contractID
		}
	}

	if err := s.repo.InsertServiceRecord(ctx, record); err != nil {
		return nil, err
	}
	s.log.Info("service recorded",
		zap.String("org_id", orgID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("ticket_number", record.TicketNumber),
		zap.String("billing_type", record.BillingType),
	)
	return record, nil
}

func (s *Service) ListServiceHistory(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.ServiceHistory, error) {
	if _, err := s.GetDevice(ctx, orgID, deviceID); err != nil {
		return nil, err
	}
	return s.repo.ListServiceRecords(ctx, orgID, deviceID)
}

func (s *Service) ListParts(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.Part, error) {
	if err := s.checkDeviceFilter(ctx, orgID, deviceID); err != nil {
		return nil, err
	}
	return s.repo.ListParts(ctx, orgID, deviceID)
}

func (s *Service) ListAMCs(ctx context.Context, orgID, deviceID snowflake.ID) ([]*domain.AMC, error) {
	if err := s.checkDeviceFilter(ctx, orgID, deviceID); err != nil {
		return nil, err
	}
	return s.repo.ListAMCs(ctx, orgID, deviceID)
}

func (s *Service) checkDeviceFilter(ctx context.Context, orgID, deviceID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrInvalidOrg
	}
	if deviceID == 0 {
		return nil
	}
	_, err := s.GetDevice(ctx, orgID, deviceID)
	return err
}

func (s *Service) Stats(ctx context.Context, orgID snowflake.ID) (*domain.DashboardStats, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	today := clock.Today(s.clock).Format(coverage.DateLayout)

	var (
		stats domain.DashboardStats
		err   error
	)
	if stats.CompaniesCount, err = s.repo.CountCompanies(ctx, orgID); err != nil {
		return nil, err
	}
	if stats.DevicesCount, err = s.repo.CountDevices(ctx, orgID, ""); err != nil {
		return nil, err
	}
	if stats.ActiveWarranties, err = s.repo.CountDevices(ctx, orgID, today); err != nil {
		return nil, err
	}
	stats.ExpiredWarranties = stats.DevicesCount - stats.ActiveWarranties
	if stats.PartsCount, err = s.repo.CountParts(ctx, orgID); err != nil {
		return nil, err
	}
	if stats.ActiveAMC, err = s.repo.CountAMCs(ctx, orgID, today); err != nil {
		return nil, err
	}
	if stats.ActiveContracts, err = s.repo.CountContracts(ctx, orgID, today); err != nil {
		return nil, err
	}
	if stats.RecentDevices, err = s.repo.RecentDevices(ctx, orgID, recentDeviceCount); err != nil {
		return nil, err
	}

	record, err := s.usage.GetUsage(ctx, orgID)
	switch {
	case err == nil:
		stats.UsersCount = record.UserCount
	case errors.Is(err, usagedomain.ErrNotFound):
	default:
		return nil, err
	}

	return &stats, nil
}

// release returns one usage slot. A failed decrement only skews the counter
// upward, so it is logged rather than surfaced.
func (s *Service) release(ctx context.Context, orgID snowflake.ID, kind string) {
	if err := s.features.Release(ctx, orgID, kind, 1); err != nil {
		s.log.Warn("failed to release usage",
			zap.String("org_id", orgID.String()),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizeDate(raw string) (string, error) {
	d, err := coverage.NormalizeDate(raw)
	if err != nil {
		return "", domain.ErrInvalidDate
	}
	return d, nil
}

func normalizeOptionalDate(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return normalizeDate(raw)
}

func dateRange(startRaw, endRaw string) (string, string, error) {
	start, err := normalizeDate(startRaw)
	if err != nil {
		return "", "", err
	}
	end, err := normalizeDate(endRaw)
	if err != nil {
		return "", "", err
	}
	if end < start {
		return "", "", domain.ErrInvalidDateRange
	}
	return start, end, nil
}

func partDates(replacedRaw string, months int) (string, string, error) {
	if months < 0 {
		return "", "", domain.ErrInvalidWarrantyMonths
	}
	replaced, err := normalizeDate(replacedRaw)
	if err != nil {
		return "", "", err
	}
	expiry, err := coverage.ComputeWarrantyExpiry(replaced, months)
	if err != nil {
		if errors.Is(err, coverage.ErrInvalidMonths) {
			return "", "", domain.ErrInvalidWarrantyMonths
		}
		return "", "", domain.ErrInvalidDate
	}
	return replaced, expiry, nil
}

func normalizeStatus(raw string) (string, error) {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch status {
	case "":
		return domain.DeviceStatusActive, nil
	case domain.DeviceStatusActive, domain.DeviceStatusRetired, domain.DeviceStatusLost:
		return status, nil
	}
	return "", domain.ErrInvalidStatus
}

// overlaps compares YYYY-MM-DD strings, which sort chronologically.
func overlaps(startA, endA, startB, endB string) bool {
	return startA <= endB && startB <= endA
}

func newTicketNumber(now time.Time, loc *time.Location) string {
	id := ulid.Make().String()
	return "SVC-" + clock.DateOf(now, loc).Format("20060102") + "-" + id[len(id)-ticketSuffixLength:]
}
