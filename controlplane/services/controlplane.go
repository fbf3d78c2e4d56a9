package services

import (
	"log"
	"net/http"
	"os"
	"time"

	"dbplane/controlplane/auth"
	"dbplane/controlplane/catalog"
	"dbplane/controlplane/dynamicdata"
	"dbplane/controlplane/provision"
	"dbplane/controlplane/routing"
	"dbplane/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ControlPlane aggregates the tenant administration and dynamic data
// services behind one router with tenant resolution in front.
type ControlPlane struct {
	tenant    TenantService
	data      DataService
	documents DocumentService
	token     TokenService

	catalog *catalog.Catalog
	jwt     *auth.JwtManager
}

func NewControlPlane(
	cat *catalog.Catalog, orchestrator *provision.Orchestrator, router routing.Router,
	maxQueryRows int, secret []byte,
) ControlPlane {
	jwtManager := auth.NewJwtManager(secret)

	return ControlPlane{
		tenant: TenantService{orchestrator: orchestrator, catalog: cat},
		data: DataService{
			router: router,
			data:   dynamicdata.Relational{MaxRows: maxQueryRows},
		},
		documents: DocumentService{
			router: router,
			data:   dynamicdata.Document{MaxDocs: maxQueryRows},
		},
		token:   TokenService{jwt: jwtManager, tokenTtl: 15 * time.Minute},
		catalog: cat,
		jwt:     jwtManager,
	}
}

func (c *ControlPlane) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Use(auth.CorrelationId)
	r.Use(c.jwt.Verifier())
	r.Use(auth.TenantResolver(c.catalog))

	r.Mount("/tenants", c.tenant.Routes())
	r.Mount("/data", c.data.Routes())
	r.Mount("/documents", c.documents.Routes())

	r.Post("/token", c.token.IssueToken)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})
	r.Get("/ready", c.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Readiness verifies the catalog store is reachable.
func (c *ControlPlane) Readiness(w http.ResponseWriter, r *http.Request) {
	if _, err := c.catalog.ListTenants(r.Context()); err != nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	utils.WriteSuccess(w)
}
