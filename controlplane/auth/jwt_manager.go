package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// TenantIdClaim is the token claim carrying the tenant identity. Matching is
// case insensitive on extraction.
const TenantIdClaim = "tenantId"

type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

// Verifier decodes and verifies a bearer token if one is present, without
// rejecting requests that lack one. Tenant resolution decides what is
// required.
func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verifier(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

func (m *JwtManager) CreateTenantJwt(tenantId string, exp time.Duration) (string, error) {
	claims := map[string]interface{}{
		TenantIdClaim: tenantId,
		"exp":         time.Now().Add(exp),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}
