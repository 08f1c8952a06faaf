package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetByID(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	SetFeatureOverrides(ctx context.Context, orgID snowflake.ID, overrides map[string]any) (*Organization, error)
	UpdateSubscriptionStatus(ctx context.Context, orgID snowflake.ID, req StatusUpdate) error
	HandleSubscriptionActivated(ctx context.Context, orgID snowflake.ID, sub SubscriptionPayload) error
	HandleSubscriptionCancelled(ctx context.Context, orgID snowflake.ID) error
	HandlePaymentFailed(ctx context.Context, orgID snowflake.ID) error
	ExpireTrials(ctx context.Context) (int, error)

	ListUsers(ctx context.Context, orgID snowflake.ID) ([]*OrgUser, error)
	AddUser(ctx context.Context, orgID snowflake.ID, req AddUserRequest) (*OrgUser, error)
	ChangeRole(ctx context.Context, orgID, userID snowflake.ID, role string) (*OrgUser, error)
}

// StatusUpdate changes the subscription state. Empty PlanID and
// SubscriptionID leave the stored values untouched.
type StatusUpdate struct {
	Status         string
	PlanID         string
	SubscriptionID string
}

// SubscriptionPayload is the part of a gateway subscription webhook we use.
type SubscriptionPayload struct {
	ID    string            `json:"id"`
	Notes map[string]string `json:"notes"`
}

type AddUserRequest struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// SeatReserver claims and returns quota for a limited resource.
type SeatReserver interface {
	Reserve(ctx context.Context, orgID snowflake.ID, kind string, amount int) error
	Release(ctx context.Context, orgID snowflake.ID, kind string, amount int) error
}

// FeatureInvalidator drops cached effective features for an organization.
type FeatureInvalidator interface {
	Invalidate(orgID snowflake.ID)
}

const LimitKindUsers = "users"

var (
	ErrNotFound         = errors.New("organization_not_found")
	ErrUserNotFound     = errors.New("org_user_not_found")
	ErrInvalidOrg       = errors.New("invalid_organization")
	ErrInvalidStatus    = errors.New("invalid_subscription_status")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrPasswordTooShort = errors.New("password_too_short")
	ErrSlugTaken        = errors.New("slug_taken")
	ErrEmailTaken       = errors.New("email_taken")
	ErrLastOwner        = errors.New("last_owner")
)

// MinPasswordLength applies to every org-user password.
const MinPasswordLength = 8
