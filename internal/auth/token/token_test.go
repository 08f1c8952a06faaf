package token

import (
	"testing"
	"time"

	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, secret string, clk clock.Clock) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(config.Config{AuthJWTSecret: secret, AuthTokenTTL: time.Hour}, clk)
	require.NoError(t, err)
	return issuer
}

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	issuer := newIssuer(t, "secret", clk)

	raw, expires, err := issuer.Issue(Subject{UserID: 11, OrgID: 22, Role: "owner", Email: "a@b.co"})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expires)

	sub, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 11, sub.UserID)
	assert.EqualValues(t, 22, sub.OrgID)
	assert.Equal(t, "owner", sub.Role)
	assert.Equal(t, "a@b.co", sub.Email)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	issuer := newIssuer(t, "secret", clk)

	raw, _, err := issuer.Issue(Subject{UserID: 1, OrgID: 2, Role: "staff"})
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	raw, _, err := newIssuer(t, "one", clk).Issue(Subject{UserID: 1, OrgID: 2})
	require.NoError(t, err)

	_, err = newIssuer(t, "two", clk).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = newIssuer(t, "one", clk).Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(config.Config{}, clock.SystemClock{})
	assert.ErrorIs(t, err, ErrMissingSecret)
}
