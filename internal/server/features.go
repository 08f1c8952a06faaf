package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
)

func (s *Server) GetFeatures(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.featureSvc.EffectiveFeatures(c.Request.Context(), actor.OrgID)})
}

func (s *Server) GetLimit(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	kind := strings.ToLower(strings.TrimSpace(c.Param("kind")))
	if _, ok := featuredomain.LimitFlag(kind); !ok {
		AbortWithError(c, newValidationError("kind", "invalid_kind", "unknown limit kind"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.featureSvc.CheckLimit(c.Request.Context(), actor.OrgID, kind)})
}
