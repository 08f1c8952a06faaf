package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	signupdomain "github.com/smallbiznis/warrantyhub/internal/signup/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Signup(c *gin.Context) {
	var req signupdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.signupsvc.CreateOrganization(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"organization": result.Organization,
		"user":         result.Owner,
		"access_token": result.AccessToken,
		"expires_at":   result.ExpiresAt,
	}})
}

func (s *Server) CheckSubdomain(c *gin.Context) {
	check, err := s.signupsvc.CheckSlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": check})
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.signupsvc.Authenticate(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"organization": session.Organization,
		"user":         session.User,
		"access_token": session.AccessToken,
		"expires_at":   session.ExpiresAt,
	}})
}

func (s *Server) Me(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	org, err := s.orgSvc.GetByID(ctx, actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	users, err := s.orgSvc.ListUsers(ctx, actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var me *orgdomain.OrgUser
	for _, u := range users {
		if u.ID == actor.ID {
			me = u
			break
		}
	}
	if me == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"organization": org,
		"user":         me,
		"features":     s.featureSvc.EffectiveFeatures(ctx, actor.OrgID),
	}})
}
