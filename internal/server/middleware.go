package server

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/warrantyhub/internal/observability/context"
	"github.com/smallbiznis/warrantyhub/internal/orgcontext"
)

const (
	headerAuthorization = "Authorization"
	headerAdminToken    = "X-Admin-Token"
	bearerPrefix        = "Bearer "
)

// OrgAuthRequired accepts an org-user access token and stores the
// principal on the request context.
func (s *Server) OrgAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" || s.tokens == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sub, err := s.tokens.Parse(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithPrincipal(c.Request.Context(), orgcontext.Principal{
			UserID: sub.UserID,
			OrgID:  sub.OrgID,
			Role:   sub.Role,
		})
		ctx = obscontext.WithOrgID(ctx, sub.OrgID.String())
		ctx = obscontext.WithActor(ctx, string(ActorUser), sub.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminRequired guards the platform admin surface with a shared token. The
// surface is hidden entirely when no token is configured.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.Tenancy.AdminToken)
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}

		got := strings.TrimSpace(c.GetHeader(headerAdminToken))
		if got == "" {
			got = bearerToken(c)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), string(ActorSystem), "admin")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PublicLookupRateLimit throttles anonymous warranty lookups per slug and
// client address.
func (s *Server) PublicLookupRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.publicLimiter == nil {
			c.Next()
			return
		}

		slug := strings.ToLower(strings.TrimSpace(c.Param("slug")))
		res := s.publicLimiter.Allow(c.Request.Context(), slug, c.ClientIP())
		if res == nil || res.Allowed {
			c.Next()
			return
		}

		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "public_lookup", "rate")
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.RetryAfter > 0 {
			seconds := int(res.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		AbortWithError(c, ErrRateLimited)
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader(headerAuthorization))
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
