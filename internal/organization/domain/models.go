// Package domain contains persistence models for tenants and their users.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	StatusTrialing  = "trialing"
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// PermissionAll grants every capability.
const PermissionAll = "*"

// Organization represents a tenant.
type Organization struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name               string            `gorm:"type:text;not null" json:"name"`
	Slug               string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	OwnerID            snowflake.ID      `gorm:"not null;index" json:"owner_id"`
	Email              string            `gorm:"type:text;not null" json:"email"`
	Phone              string            `gorm:"type:text" json:"phone,omitempty"`
	Industry           string            `gorm:"type:text" json:"industry,omitempty"`
	CompanySize        string            `gorm:"type:text" json:"company_size,omitempty"`
	PlanID             string            `gorm:"type:text;not null" json:"plan_id"`
	SubscriptionID     string            `gorm:"type:text" json:"subscription_id,omitempty"`
	SubscriptionStatus string            `gorm:"type:text;not null;index" json:"subscription_status"`
	TrialEndsAt        *time.Time        `json:"trial_ends_at,omitempty"`
	FeatureOverrides   datatypes.JSONMap `json:"feature_overrides"`
	IsActive           bool              `gorm:"not null" json:"is_active"`
	IsVerified         bool              `gorm:"not null" json:"is_verified"`
	CreatedAt          time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrgUser is a login belonging to exactly one organization.
type OrgUser struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID                `gorm:"not null;index" json:"org_id"`
	Name          string                      `gorm:"type:text;not null" json:"name"`
	Email         string                      `gorm:"type:text;not null;uniqueIndex:ux_org_users_email" json:"email"`
	Phone         string                      `gorm:"type:text" json:"phone,omitempty"`
	PasswordHash  string                      `gorm:"type:text;not null" json:"-"`
	Role          string                      `gorm:"type:text;not null" json:"role"`
	Permissions   datatypes.JSONSlice[string] `json:"permissions"`
	IsActive      bool                        `gorm:"not null" json:"is_active"`
	EmailVerified bool                        `gorm:"not null" json:"email_verified"`
	LastLogin     *time.Time                  `json:"last_login,omitempty"`
	CreatedAt     time.Time                   `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (OrgUser) TableName() string { return "org_users" }

// HasPermission reports whether the user holds perm directly or through "*".
func (u OrgUser) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == PermissionAll || p == perm {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

func ValidStatus(status string) bool {
	switch status {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
