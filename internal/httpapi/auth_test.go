package httpapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminToken_RoundTrip(t *testing.T) {
	auth := AdminAuth{Secret: "s3cret", Issuer: "evertag"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	token, err := MintAdminToken(auth, "ops", time.Hour, now)
	require.NoError(t, err)

	claims, err := ParseAdminToken(auth, token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestAdminToken_Rejections(t *testing.T) {
	auth := AdminAuth{Secret: "s3cret", Issuer: "evertag"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	token, err := MintAdminToken(auth, "ops", time.Hour, now)
	require.NoError(t, err)

	_, err = ParseAdminToken(auth, token, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseAdminToken(AdminAuth{Secret: "other", Issuer: "evertag"}, token, now)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseAdminToken(AdminAuth{Secret: "s3cret", Issuer: "someone-else"}, token, now)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestAdminToken_WrongRole(t *testing.T) {
	auth := AdminAuth{Secret: "s3cret"}
	now := time.Now()
	claims := AdminClaims{Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(auth.Secret))
	require.NoError(t, err)

	_, err = ParseAdminToken(auth, token, now)
	assert.Error(t, err)
}

func TestMintAdminToken_RequiresSecret(t *testing.T) {
	_, err := MintAdminToken(AdminAuth{}, "ops", time.Hour, time.Now())
	assert.Error(t, err)
}
