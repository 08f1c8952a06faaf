package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	obsmetrics "github.com/smallbiznis/warrantyhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const unknownCompany = "Unknown"

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Repo    assetdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	repo    assetdomain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		log:     p.Log.Named("coverage.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// ResolveDeviceCoverage gathers every source that may cover the device and
// resolves them on today's reference-zone date.
func (s *Service) ResolveDeviceCoverage(ctx context.Context, orgID, deviceID snowflake.ID) (*coverage.Result, error) {
	if orgID == 0 {
		return nil, assetdomain.ErrInvalidOrg
	}
	device, err := s.repo.GetDevice(ctx, orgID, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, assetdomain.ErrDeviceNotFound
	}
	amcs, err := s.repo.ListAMCs(ctx, orgID, deviceID)
	if err != nil {
		return nil, err
	}
	res, err := s.resolve(ctx, device, amcs)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ResolvePartCoverage reports whether the part warranty covers today.
func (s *Service) ResolvePartCoverage(part *assetdomain.Part) bool {
	if part == nil {
		return false
	}
	return coverage.IsActive(part.WarrantyExpiryDate, clock.Today(s.clock))
}

// Lookup finds a device by serial number or asset tag, case-insensitively,
// and reports its coverage. Misses return ErrNotFound with no detail.
func (s *Service) Lookup(ctx context.Context, orgID snowflake.ID, query string) (*coverage.LookupResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < coverage.MinQueryLength {
		return nil, coverage.ErrInvalidQuery
	}
	if orgID == 0 {
		return nil, coverage.ErrNotFound
	}

	device, err := s.repo.FindDeviceByIdentifier(ctx, orgID, query)
	if err != nil {
		return nil, err
	}
	if device == nil {
		s.metrics.RecordCoverageLookup(ctx, "not_found", "")
		return nil, coverage.ErrNotFound
	}

	today := clock.Today(s.clock)
	out := &coverage.LookupResult{
		Device: coverage.DeviceSummary{
			DeviceType:      device.DeviceType,
			Brand:           device.Brand,
			Model:           device.Model,
			SerialNumber:    device.SerialNumber,
			AssetTag:        device.AssetTag,
			PurchaseDate:    device.PurchaseDate,
			WarrantyEndDate: device.WarrantyEndDate,
			WarrantyActive:  device.WarrantyEndDate != "" && coverage.IsActive(device.WarrantyEndDate, today),
			Status:          device.Status,
		},
		CompanyName:  unknownCompany,
		AssignedUser: device.AssignedUser,
		Parts:        []coverage.PartCoverage{},
	}

	company, err := s.repo.GetCompany(ctx, orgID, device.CompanyID)
	if err != nil {
		return nil, err
	}
	if company != nil {
		out.CompanyName = company.Name
	}

	parts, err := s.repo.ListParts(ctx, orgID, device.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		out.Parts = append(out.Parts, coverage.PartCoverage{
			PartName:           p.PartName,
			ReplacedDate:       p.ReplacedDate,
			WarrantyMonths:     p.WarrantyMonths,
			WarrantyExpiryDate: p.WarrantyExpiryDate,
			WarrantyActive:     coverage.IsActive(p.WarrantyExpiryDate, today),
		})
	}

	amcs, err := s.repo.ListAMCs(ctx, orgID, device.ID)
	if err != nil {
		return nil, err
	}
	if latest := latestAMC(amcs); latest != nil {
		out.AMC = &coverage.AMCInfo{
			StartDate: latest.StartDate,
			EndDate:   latest.EndDate,
			Active:    coverage.IsActive(latest.EndDate, today),
		}
	}

	res, err := s.resolve(ctx, device, amcs)
	if err != nil {
		return nil, err
	}
	out.Coverage = res
	return out, nil
}

func (s *Service) resolve(ctx context.Context, device *assetdomain.Device, amcs []*assetdomain.AMC) (coverage.Result, error) {
	assignments, err := s.repo.ListActiveAssignments(ctx, device.OrgID, device.ID)
	if err != nil {
		return coverage.Result{}, err
	}

	candidates := make([]coverage.Source, 0, len(assignments)+len(amcs)+1)
	for _, a := range assignments {
		candidates = append(candidates, coverage.Source{
			Kind:         coverage.SourceContract,
			Start:        a.CoverageStart,
			End:          a.CoverageEnd,
			ContractID:   a.ContractID,
			AssignmentID: a.ID,
		})
	}
	for _, a := range amcs {
		candidates = append(candidates, coverage.Source{
			Kind:     coverage.SourceLegacyAMC,
			Start:    a.StartDate,
			End:      a.EndDate,
			RecordID: a.ID,
		})
	}
	if device.WarrantyEndDate != "" {
		candidates = append(candidates, coverage.Source{
			Kind:     coverage.SourceDeviceWarranty,
			End:      device.WarrantyEndDate,
			RecordID: device.ID,
		})
	}

	res := coverage.Resolve(candidates, clock.Today(s.clock))
	source := ""
	if res.Winner != nil {
		source = string(res.Winner.Kind)
	}
	s.metrics.RecordCoverageLookup(ctx, string(res.Verdict), source)
	return res, nil
}

// latestAMC picks the legacy record ending last.
func latestAMC(amcs []*assetdomain.AMC) *assetdomain.AMC {
	var latest *assetdomain.AMC
	for _, a := range amcs {
		if latest == nil || a.EndDate > latest.EndDate {
			latest = a
		}
	}
	return latest
}
