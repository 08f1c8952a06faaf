package server

import (
	"encoding/csv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	assetdomain "github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/pkg/db/pagination"
	"go.uber.org/zap"
)

const exportPageSize = 200

// requireFeature rejects the request when the organization's plan lacks flag.
func (s *Server) requireFeature(flag string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := currentActor(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.featureSvc.RequireFeature(c.Request.Context(), actor.OrgID, flag); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// -------- Companies --------

func (s *Server) CreateCompany(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	company, err := s.assetSvc.CreateCompany(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": company})
}

func (s *Server) ListCompanies(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	companies, err := s.assetSvc.ListCompanies(c.Request.Context(), actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": companies})
}

func (s *Server) DeleteCompany(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.assetSvc.DeleteCompany(c.Request.Context(), actor.OrgID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// -------- Devices --------

func (s *Server) CreateDevice(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	device, err := s.assetSvc.CreateDevice(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": device})
}

func (s *Server) GetDevice(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	device, err := s.assetSvc.GetDevice(c.Request.Context(), actor.OrgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": device})
}

func (s *Server) ListDevices(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query assetdomain.ListDevicesRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.assetSvc.ListDevices(c.Request.Context(), actor.OrgID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateDevice(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	device, err := s.assetSvc.UpdateDevice(c.Request.Context(), actor.OrgID, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": device})
}

func (s *Server) DeleteDevice(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.assetSvc.DeleteDevice(c.Request.Context(), actor.OrgID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetDeviceCoverage(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.coverageSvc.ResolveDeviceCoverage(c.Request.Context(), actor.OrgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ExportDevices streams every device of the organization as CSV.
func (s *Server) ExportDevices(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	var devices []*assetdomain.Device
	req := assetdomain.ListDevicesRequest{
		CompanyID:  strings.TrimSpace(c.Query("company_id")),
		Pagination: pagination.Pagination{PageSize: exportPageSize},
	}
	for {
		page, err := s.assetSvc.ListDevices(ctx, actor.OrgID, req)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		devices = append(devices, page.Devices...)
		if page.PageInfo == nil || !page.PageInfo.HasMore || page.PageInfo.NextPageToken == "" {
			break
		}
		req.PageToken = page.PageInfo.NextPageToken
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="devices.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "company_id", "device_type", "brand", "model", "serial_number", "asset_tag", "purchase_date", "warranty_end_date", "status"})
	for _, d := range devices {
		_ = w.Write([]string{
			d.ID.String(),
			d.CompanyID.String(),
			d.DeviceType,
			d.Brand,
			d.Model,
			d.SerialNumber,
			d.AssetTag,
			d.PurchaseDate,
			d.WarrantyEndDate,
			d.Status,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.log.Warn("device export truncated", zap.String("org_id", actor.OrgID.String()), zap.Error(err))
	}
}

// -------- Parts --------

func (s *Server) CreatePart(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.CreatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	part, err := s.assetSvc.CreatePart(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": part})
}

func (s *Server) ListParts(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	deviceID, err := optionalQueryID(c, "device_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	parts, err := s.assetSvc.ListParts(c.Request.Context(), actor.OrgID, deviceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": parts})
}

func (s *Server) UpdatePart(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.UpdatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	part, err := s.assetSvc.UpdatePart(c.Request.Context(), actor.OrgID, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": part})
}

// -------- AMC --------

func (s *Server) ListAMCs(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	deviceID, err := optionalQueryID(c, "device_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	amcs, err := s.assetSvc.ListAMCs(c.Request.Context(), actor.OrgID, deviceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": amcs})
}

func (s *Server) CreateAMC(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.CreateAMCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amc, err := s.assetSvc.CreateAMC(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": amc})
}

func (s *Server) CreateContract(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	contract, err := s.assetSvc.CreateContract(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": contract})
}

func (s *Server) AssignContract(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.AssignContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ContractID = contractID.String()
	req.CreatedBy = actor.ID

	assignment, err := s.assetSvc.AssignContract(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": assignment})
}

func (s *Server) RevokeAssignment(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	assignment, err := s.assetSvc.RevokeAssignment(c.Request.Context(), actor.OrgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

// -------- Service history --------

func (s *Server) RecordService(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assetdomain.RecordServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CreatedBy = actor.ID

	record, err := s.assetSvc.RecordService(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": record})
}

func (s *Server) ListServiceHistory(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records, err := s.assetSvc.ListServiceHistory(c.Request.Context(), actor.OrgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

// -------- Dashboard --------

func (s *Server) GetDashboard(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.assetSvc.Stats(c.Request.Context(), actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
