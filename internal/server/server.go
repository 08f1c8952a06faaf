package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/warrantyhub/internal/asset"
	assetdomain "github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/auth/token"
	"github.com/smallbiznis/warrantyhub/internal/authorization"
	"github.com/smallbiznis/warrantyhub/internal/cache"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	coverageservice "github.com/smallbiznis/warrantyhub/internal/coverage/service"
	"github.com/smallbiznis/warrantyhub/internal/events"
	"github.com/smallbiznis/warrantyhub/internal/feature"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
	"github.com/smallbiznis/warrantyhub/internal/observability"
	obslogger "github.com/smallbiznis/warrantyhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/warrantyhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/warrantyhub/internal/observability/tracing"
	"github.com/smallbiznis/warrantyhub/internal/organization"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"github.com/smallbiznis/warrantyhub/internal/plan"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	"github.com/smallbiznis/warrantyhub/internal/ratelimit"
	"github.com/smallbiznis/warrantyhub/internal/signup"
	signupdomain "github.com/smallbiznis/warrantyhub/internal/signup/domain"
	"github.com/smallbiznis/warrantyhub/internal/usage"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DomainModules wires every service the HTTP layer and the scheduler need.
var DomainModules = fx.Options(
	fx.Provide(cache.NewRedisClient),
	events.Module,
	ratelimit.Module,
	plan.Module,
	usage.Module,
	feature.Module,
	organization.Module,
	signup.Module,
	asset.Module,
	authorization.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// warrantyLookup answers the public coverage lookup.
type warrantyLookup interface {
	Lookup(ctx context.Context, orgID snowflake.ID, query string) (*coverage.LookupResult, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	tokens        *token.Issuer
	signupsvc     signupdomain.Service
	orgSvc        orgdomain.Service
	planSvc       plandomain.Service
	featureSvc    featuredomain.Service
	assetSvc      assetdomain.Service
	usageSvc      usagedomain.Service
	lookup        warrantyLookup
	coverageSvc   assetdomain.CoverageResolver
	authzSvc      authorization.Service
	publicLimiter *ratelimit.PublicLookupLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Tokens        *token.Issuer
	SignupSvc     signupdomain.Service
	OrgSvc        orgdomain.Service
	PlanSvc       plandomain.Service
	FeatureSvc    featuredomain.Service
	AssetSvc      assetdomain.Service
	UsageSvc      usagedomain.Service
	Coverage      *coverageservice.Service
	AuthzSvc      authorization.Service
	PublicLimiter *ratelimit.PublicLookupLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		tokens:        p.Tokens,
		signupsvc:     p.SignupSvc,
		orgSvc:        p.OrgSvc,
		planSvc:       p.PlanSvc,
		featureSvc:    p.FeatureSvc,
		assetSvc:      p.AssetSvc,
		usageSvc:      p.UsageSvc,
		lookup:        p.Coverage,
		coverageSvc:   p.Coverage,
		authzSvc:      p.AuthzSvc,
		publicLimiter: p.PublicLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.registerSignupRoutes()
	s.registerOrgRoutes()
	s.registerPublicRoutes()
	s.registerAdminRoutes()
	s.registerWebhookRoutes()
}

func (s *Server) registerSignupRoutes() {
	api := s.engine.Group("/api")

	api.POST("/signup", s.Signup)
	api.GET("/check-subdomain/:slug", s.CheckSubdomain)
	api.POST("/org/login", s.Login)
	api.GET("/plans", s.ListPlans)
}

func (s *Server) registerOrgRoutes() {
	org := s.engine.Group("/api/org", s.OrgAuthRequired())

	org.GET("/me", s.Me)
	org.GET("/features", s.GetFeatures)
	org.GET("/limits/:kind", s.GetLimit)
	org.GET("/dashboard", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionView), s.GetDashboard)

	// -------- Users --------
	org.GET("/users", s.authorizeOrgAction(authorization.ObjectOrgUser, authorization.ActionView), s.ListUsers)
	org.POST("/users", s.authorizeOrgAction(authorization.ObjectOrgUser, authorization.ActionCreate), s.AddUser)
	org.PATCH("/users/:id/role", s.authorizeOrgAction(authorization.ObjectOrgUser, authorization.ActionUpdate), s.ChangeUserRole)

	// -------- Companies --------
	org.GET("/companies", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionView), s.ListCompanies)
	org.POST("/companies", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionCreate), s.CreateCompany)
	org.DELETE("/companies/:id", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionDelete), s.DeleteCompany)

	// -------- Devices --------
	org.GET("/devices", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionView), s.ListDevices)
	org.POST("/devices", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionCreate), s.CreateDevice)
	org.GET("/devices/export", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionView), s.requireFeature(plandomain.FlagExportReports), s.ExportDevices)
	org.GET("/devices/:id", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionView), s.GetDevice)
	org.PATCH("/devices/:id", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionUpdate), s.UpdateDevice)
	org.DELETE("/devices/:id", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionDelete), s.DeleteDevice)
	org.GET("/devices/:id/coverage", s.authorizeOrgAction(authorization.ObjectDevice, authorization.ActionView), s.GetDeviceCoverage)
	org.GET("/devices/:id/service-history", s.authorizeOrgAction(authorization.ObjectServiceHistory, authorization.ActionView), s.ListServiceHistory)

	// -------- Parts --------
	org.GET("/parts", s.authorizeOrgAction(authorization.ObjectPart, authorization.ActionView), s.ListParts)
	org.POST("/parts", s.authorizeOrgAction(authorization.ObjectPart, authorization.ActionCreate), s.CreatePart)
	org.PATCH("/parts/:id", s.authorizeOrgAction(authorization.ObjectPart, authorization.ActionUpdate), s.UpdatePart)

	// -------- AMC --------
	org.GET("/amc", s.authorizeOrgAction(authorization.ObjectAMC, authorization.ActionView), s.ListAMCs)
	org.POST("/amc", s.authorizeOrgAction(authorization.ObjectAMC, authorization.ActionCreate), s.CreateAMC)
	org.POST("/amc-contracts", s.authorizeOrgAction(authorization.ObjectContract, authorization.ActionCreate), s.CreateContract)
	org.POST("/amc-contracts/:id/assignments", s.authorizeOrgAction(authorization.ObjectContract, authorization.ActionAssign), s.AssignContract)
	org.POST("/amc-assignments/:id/revoke", s.authorizeOrgAction(authorization.ObjectContract, authorization.ActionAssign), s.RevokeAssignment)

	// -------- Service history --------
	org.POST("/service-history", s.authorizeOrgAction(authorization.ObjectServiceHistory, authorization.ActionCreate), s.RecordService)

	// -------- Support --------
	org.POST("/support/chats", s.requireFeature(plandomain.FlagAISupportBot), s.RecordSupportChat)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/api/public")

	public.GET("/org/:slug", s.GetPublicOrganization)
	public.GET("/:slug/warranty", s.PublicLookupRateLimit(), s.PublicWarrantyLookup)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AdminRequired())

	admin.GET("/plans", s.AdminListPlans)
	admin.POST("/plans", s.CreatePlan)
	admin.PUT("/plans/:id", s.UpdatePlan)
	admin.POST("/plans/:id/toggle", s.TogglePlan)

	admin.GET("/organizations/:id", s.AdminGetOrganization)
	admin.PUT("/organizations/:id/feature-overrides", s.SetFeatureOverrides)
	admin.PUT("/organizations/:id/subscription", s.UpdateSubscriptionStatus)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhooks/subscription", s.HandleSubscriptionWebhook)
}
