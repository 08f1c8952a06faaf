package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
)

// ListPlans is the public pricing page; only active plans are shown.
func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListPlans(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) AdminListPlans(c *gin.Context) {
	activeOnly, err := parseOptionalBool(c.Query("active_only"))
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	plans, err := s.planSvc.ListPlans(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req plandomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) UpdatePlan(c *gin.Context) {
	var req plandomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}

func (s *Server) TogglePlan(c *gin.Context) {
	active, err := s.planSvc.ToggleActive(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": c.Param("id"), "is_active": active}})
}

func (s *Server) AdminGetOrganization(c *gin.Context) {
	orgID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	org, err := s.orgSvc.GetByID(ctx, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"organization": org,
		"features":     s.featureSvc.EffectiveFeatures(ctx, orgID),
	}})
}

func (s *Server) SetFeatureOverrides(c *gin.Context) {
	orgID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var overrides map[string]any
	if err := c.ShouldBindJSON(&overrides); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.orgSvc.SetFeatureOverrides(c.Request.Context(), orgID, overrides)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

type subscriptionStatusRequest struct {
	Status         string `json:"status"`
	PlanID         string `json:"plan_id"`
	SubscriptionID string `json:"subscription_id"`
}

func (s *Server) UpdateSubscriptionStatus(c *gin.Context) {
	orgID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req subscriptionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.orgSvc.UpdateSubscriptionStatus(c.Request.Context(), orgID, orgdomain.StatusUpdate{
		Status:         strings.TrimSpace(req.Status),
		PlanID:         strings.TrimSpace(req.PlanID),
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
