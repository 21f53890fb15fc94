package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AdminAuth is the HS256 key and issuer admin tokens are checked against.
type AdminAuth struct {
	Secret string
	Issuer string
}

// AdminClaims are carried by admin bearer tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const adminRole = "admin"

// MintAdminToken signs an admin token for subject valid for ttl from now.
func MintAdminToken(auth AdminAuth, subject string, ttl time.Duration, now time.Time) (string, error) {
	if auth.Secret == "" {
		return "", errors.New("admin secret is not configured")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(auth.Secret))
}

// ParseAdminToken validates a token and returns its claims.
func ParseAdminToken(auth AdminAuth, token string, now time.Time) (AdminClaims, error) {
	var claims AdminClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(auth.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(auth.Secret), nil
	}, opts...)
	if err != nil {
		return AdminClaims{}, err
	}
	if claims.Role != adminRole {
		return AdminClaims{}, fmt.Errorf("role %q is not allowed", claims.Role)
	}
	return claims, nil
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abortJSON(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := ParseAdminToken(s.deps.Admin, raw, time.Now())
		if err != nil {
			s.logger.Warn("rejected admin token", "error", err)
			abortJSON(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}
