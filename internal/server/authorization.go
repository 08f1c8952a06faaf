package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warrantyhub/internal/orgcontext"
)

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

type Actor struct {
	Type  ActorType
	OrgID snowflake.ID
	ID    snowflake.ID
}

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(
		c.Request.Context(),
		actor.subject(),
		actor.OrgID.String(),
		strings.TrimSpace(object),
		strings.TrimSpace(action),
	)
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil || c.Request == nil {
		return Actor{}, false
	}
	p, ok := orgcontext.PrincipalFromContext(c.Request.Context())
	if !ok || p.OrgID == 0 || p.UserID == 0 {
		return Actor{}, false
	}
	return Actor{Type: ActorUser, OrgID: p.OrgID, ID: p.UserID}, true
}

// currentActor is used by handlers behind OrgAuthRequired.
func currentActor(c *gin.Context) (Actor, error) {
	actor, ok := actorFromContext(c)
	if !ok {
		return Actor{}, ErrUnauthorized
	}
	return actor, nil
}

func (a Actor) subject() string {
	switch a.Type {
	case ActorUser:
		return fmt.Sprintf("user:%s", a.ID)
	case ActorSystem:
		return "system"
	default:
		return ""
	}
}
