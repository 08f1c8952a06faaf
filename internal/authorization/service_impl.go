package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectDevice         = "device"
	ObjectPart           = "part"
	ObjectAMC            = "amc"
	ObjectContract       = "contract"
	ObjectServiceHistory = "service_history"
	ObjectOrgUser        = "org_user"
	ObjectOrganization   = "organization"
	ObjectBilling        = "billing"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionAssign = "assign"
	ActionManage = "manage"
)

const (
	actorSystem     = "system"
	actorUserPrefix = "user:"
	roleSystem      = "role:system"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Orgs     orgdomain.Repository
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	orgs     orgdomain.Repository
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		orgs:     p.Orgs,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, user, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.logDenied(actor, orgID, object, action, err)
		return err
	}
	// A "*" grant or an explicit "object.action" grant bypasses the role.
	if user != nil && user.HasPermission(object+"."+action) {
		return nil
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actor, orgID, object, action, ErrForbidden)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, *orgdomain.OrgUser, error) {
	if actor == actorSystem {
		return roleSystem, nil, nil
	}
	if !strings.HasPrefix(actor, actorUserPrefix) {
		return "", nil, ErrInvalidActor
	}
	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, actorUserPrefix))
	if err != nil || userID == 0 {
		return "", nil, ErrInvalidActor
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return "", nil, ErrInvalidOrganization
	}

	user, err := s.orgs.GetUser(ctx, parsedOrgID, userID)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !user.IsActive {
		return "", nil, ErrForbidden
	}
	role := strings.ToLower(strings.TrimSpace(user.Role))
	if !orgdomain.ValidRole(role) {
		return "", nil, ErrForbidden
	}
	return "role:" + role, user, nil
}

// ensureGrouping keeps exactly one role link per subject and domain so a
// role change takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) logDenied(actor, orgID, object, action string, reason error) {
	s.log.Info("authorization denied",
		zap.String("actor", actor),
		zap.String("org_id", orgID),
		zap.String("object", object),
		zap.String("action", action),
		zap.Error(reason),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	staff := [][]string{
		{ObjectDevice, ActionView},
		{ObjectDevice, ActionCreate},
		{ObjectDevice, ActionUpdate},
		{ObjectPart, ActionView},
		{ObjectPart, ActionCreate},
		{ObjectPart, ActionUpdate},
		{ObjectAMC, ActionView},
		{ObjectAMC, ActionCreate},
		{ObjectContract, ActionView},
		{ObjectServiceHistory, ActionView},
		{ObjectServiceHistory, ActionCreate},
		{ObjectOrganization, ActionView},
	}
	admin := append([][]string{
		{ObjectDevice, ActionDelete},
		{ObjectContract, ActionCreate},
		{ObjectContract, ActionUpdate},
		{ObjectContract, ActionAssign},
		{ObjectOrgUser, ActionView},
		{ObjectOrgUser, ActionCreate},
	}, staff...)
	owner := append([][]string{
		{ObjectOrgUser, ActionUpdate},
		{ObjectOrganization, ActionUpdate},
		{ObjectBilling, ActionView},
		{ObjectBilling, ActionManage},
	}, admin...)
	system := [][]string{
		{ObjectOrganization, ActionUpdate},
		{ObjectBilling, ActionManage},
	}

	grants := map[string][][]string{
		"role:" + orgdomain.RoleStaff: staff,
		"role:" + orgdomain.RoleAdmin: admin,
		"role:" + orgdomain.RoleOwner: owner,
		roleSystem:                    system,
	}
	for role, rules := range grants {
		for _, rule := range rules {
			has, err := enforcer.HasPolicy(role, rule[0], rule[1])
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := enforcer.AddPolicy(role, rule[0], rule[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
