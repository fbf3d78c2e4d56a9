package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"dbplane/controlplane/catalog"
	"dbplane/controlplane/schema"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TenantIdHeader    = "X-Tenant-Id"
	CorrelationHeader = "X-Correlation-ID"
)

var tenantIdPattern = regexp.MustCompile(`^[a-z0-9-]{6,32}$`)

// ValidTenantId reports whether an id matches the tenant id grammar: 6 to 32
// characters of lowercase alphanumerics and hyphens.
func ValidTenantId(id string) bool {
	return tenantIdPattern.MatchString(id)
}

// TenantContext is the immutable per-request bundle attached after
// resolution.
type TenantContext struct {
	Id            string
	Connection    schema.TenantConnection
	CorrelationId string
}

type contextKey string

const tenantContextKey = contextKey("tenantContext")
const correlationIdKey = contextKey("correlationId")

func TenantFromContext(r *http.Request) (TenantContext, error) {
	tctx, ok := r.Context().Value(tenantContextKey).(TenantContext)
	if !ok {
		return TenantContext{}, fmt.Errorf("tenant context not found in request")
	}
	return tctx, nil
}

func CorrelationIdFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIdKey).(string); ok {
		return id
	}
	return ""
}

// CorrelationId propagates an inbound correlation id or generates one, and
// echoes it on the response so operators can tie failures to log entries.
func CorrelationId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)

		ctx := context.WithValue(r.Context(), correlationIdKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// publicPrefixes lists request paths exempt from tenant resolution: health
// probes, metrics, token issuance, tenant administration, and docs.
var publicPrefixes = []string{
	"/health", "/ready", "/metrics", "/token", "/tenants", "/docs",
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// TenantResolver establishes the tenant context for every non-public
// request. The tenant id comes from a verified token claim when available,
// else a best effort unverified decode of the bearer token, else the
// X-Tenant-Id header.
func TenantResolver(cat *catalog.Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tenantId := extractTenantId(r)
			if tenantId == "" {
				http.Error(w, "tenant id required", http.StatusBadRequest)
				return
			}
			if !ValidTenantId(tenantId) {
				http.Error(w, "invalid tenant id format", http.StatusBadRequest)
				return
			}

			conn, err := cat.GetConnections(r.Context(), tenantId)
			if err != nil {
				if errors.Is(err, schema.ErrTenantNotFound) {
					http.Error(w, fmt.Sprintf("tenant '%v' not found", tenantId), http.StatusNotFound)
					return
				}
				correlationId := CorrelationIdFromContext(r.Context())
				if errors.Is(err, schema.ErrConnectionsMissing) {
					// Data integrity alarm: an active tenant must have a
					// connection record.
					slog.Error("active tenant has no connection record", "tenant_id", tenantId, "correlation_id", correlationId)
				} else {
					slog.Error("error resolving tenant", "tenant_id", tenantId, "correlation_id", correlationId, "error", err)
				}
				http.Error(w, fmt.Sprintf("internal error, correlation id %v", correlationId), http.StatusInternalServerError)
				return
			}

			tctx := TenantContext{
				Id:            tenantId,
				Connection:    conn,
				CorrelationId: CorrelationIdFromContext(r.Context()),
			}
			ctx := context.WithValue(r.Context(), tenantContextKey, tctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractTenantId(r *http.Request) string {
	// Verified claims first, if the verifier middleware ran and accepted a
	// token.
	if _, claims, err := jwtauth.FromContext(r.Context()); err == nil {
		if id := claimValue(claims, TenantIdClaim); id != "" {
			return id
		}
	}

	// Best effort decode without signature verification: resolution must
	// work even when full authentication runs later in the pipeline.
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
			if id := claimValue(claims, TenantIdClaim); id != "" {
				return id
			}
		}
	}

	return r.Header.Get(TenantIdHeader)
}

func claimValue(claims map[string]interface{}, name string) string {
	for key, value := range claims {
		if strings.EqualFold(key, name) {
			if s, ok := value.(string); ok {
				return s
			}
		}
	}
	return ""
}
