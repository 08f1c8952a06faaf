package domain

import (
	"context"
	"errors"
	"time"

	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"gorm.io/gorm"
)

type Service interface {
	CheckSlug(ctx context.Context, slug string) (SlugCheck, error)
	CreateOrganization(ctx context.Context, req Request) (*Result, error)
	Authenticate(ctx context.Context, email, password string) (*Session, error)
}

// Request is the public signup form. Slug is optional; when empty one is
// derived from Name.
type Request struct {
	Name          string `json:"organization_name"`
	Slug          string `json:"subdomain"`
	OwnerName     string `json:"owner_name"`
	OwnerEmail    string `json:"owner_email"`
	OwnerPassword string `json:"owner_password"`
	OwnerPhone    string `json:"owner_phone"`
	Industry      string `json:"industry"`
	CompanySize   string `json:"company_size"`
}

type Result struct {
	Organization *orgdomain.Organization
	Owner        *orgdomain.OrgUser
	AccessToken  string
	ExpiresAt    time.Time
}

// Session is an authenticated org user with a signed access token.
type Session struct {
	User         *orgdomain.OrgUser
	Organization *orgdomain.Organization
	AccessToken  string
	ExpiresAt    time.Time
}

type SlugCheck struct {
	Slug      string `json:"subdomain"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Provisioner runs follow-up work for a new organization inside the signup
// transaction.
type Provisioner interface {
	Provision(ctx context.Context, tx *gorm.DB, org *orgdomain.Organization, owner *orgdomain.OrgUser) error
}

var (
	ErrInvalidRequest     = errors.New("invalid_signup_request")
	ErrInvalidName        = errors.New("invalid_organization_name")
	ErrInvalidOwnerName   = errors.New("invalid_owner_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidSlug        = errors.New("invalid_slug")
	ErrReservedSlug       = errors.New("reserved_slug")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInactiveOrg        = errors.New("organization_inactive")
)
