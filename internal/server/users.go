package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
)

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) ListUsers(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	users, err := s.orgSvc.ListUsers(c.Request.Context(), actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) AddUser(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orgdomain.AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.orgSvc.AddUser(c.Request.Context(), actor.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) ChangeUserRole(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	userID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.orgSvc.ChangeRole(c.Request.Context(), actor.OrgID, userID, strings.TrimSpace(req.Role))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
