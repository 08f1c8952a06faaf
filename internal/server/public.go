package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"go.uber.org/zap"
)

type publicOrganization struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	CustomBranding bool   `json:"custom_branding"`
}

func (s *Server) GetPublicOrganization(c *gin.Context) {
	org, err := s.orgSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, s.publicError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": publicOrganization{
		Name:           org.Name,
		Slug:           org.Slug,
		CustomBranding: s.featureSvc.HasFeature(c.Request.Context(), org.ID, plandomain.FlagCustomBranding),
	}})
}

// PublicWarrantyLookup resolves a serial number or asset tag for anyone who
// knows the organization's subdomain.
func (s *Server) PublicWarrantyLookup(c *gin.Context) {
	ctx := c.Request.Context()
	org, err := s.orgSvc.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		AbortWithError(c, s.publicError(err))
		return
	}

	result, err := s.lookup.Lookup(ctx, org.ID, c.Query("q"))
	if err != nil {
		AbortWithError(c, s.publicError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// publicError keeps internal failures out of anonymous responses.
func (s *Server) publicError(err error) error {
	switch {
	case errors.Is(err, coverage.ErrInvalidQuery):
		return err
	case errors.Is(err, coverage.ErrNotFound), errors.Is(err, orgdomain.ErrNotFound):
		return ErrNotFound
	default:
		s.log.Error("public lookup failed", zap.Error(err))
		return ErrNotFound
	}
}
