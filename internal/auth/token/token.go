// Package token issues and validates org-user access tokens.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
)

const issuer = "warrantyhub"

var (
	ErrInvalidToken  = errors.New("invalid_token")
	ErrMissingSecret = errors.New("missing_jwt_secret")
)

// Claims carries the org-user identity inside an access token.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// Subject is the identity being issued a token.
type Subject struct {
	UserID snowflake.ID
	OrgID  snowflake.ID
	Role   string
	Email  string
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(cfg config.Config, clk clock.Clock) (*Issuer, error) {
	if cfg.AuthJWTSecret == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.AuthTokenTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{secret: []byte(cfg.AuthJWTSecret), ttl: ttl, clock: clk}, nil
}

// Issue signs an HS256 access token and returns it with its expiry.
func (i *Issuer) Issue(sub Subject) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID.String(),
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		OrgID: sub.OrgID.String(),
		Role:  sub.Role,
		Email: sub.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates the token and returns the subject it was issued to.
func (i *Issuer) Parse(raw string) (*Subject, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	orgID, err := snowflake.ParseString(claims.OrgID)
	if err != nil || orgID == 0 {
		return nil, ErrInvalidToken
	}

	return &Subject{
		UserID: snowflake.ID(userID),
		OrgID:  orgID,
		Role:   claims.Role,
		Email:  claims.Email,
	}, nil
}
