package services

import (
	"log/slog"
	"net/http"
	"time"

	"dbplane/controlplane/catalog"
	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/provision"
	"dbplane/utils"

	"github.com/go-chi/chi/v5"
)

type TenantService struct {
	orchestrator *provision.Orchestrator
	catalog      *catalog.Catalog
}

func (s *TenantService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.CreateTenant)
	r.Get("/", s.ListTenants)
	r.Delete("/{tenant_id}", s.DisableTenant)
	r.Get("/{tenant_id}/schema", s.GetSchema)
	r.Put("/{tenant_id}/schema", s.UpdateSchema)

	return r
}

type createTenantRequest struct {
	Name             string                     `json:"name"`
	DatabaseKind     string                     `json:"databaseKind,omitempty"`
	SchemaDefinition *dbschema.SchemaDefinition `json:"schemaDefinition,omitempty"`
}

type createTenantResponse struct {
	TenantId string `json:"tenantId"`
}

func (s *TenantService) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var params createTenantRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	slog.Info("creating tenant", "name", params.Name, "kind", params.DatabaseKind)

	tenantId, err := s.orchestrator.CreateTenant(r.Context(), provision.CreateTenantRequest{
		Name:         params.Name,
		DatabaseKind: params.DatabaseKind,
		Schema:       params.SchemaDefinition,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJsonResponse(w, createTenantResponse{TenantId: tenantId})
}

type tenantInfo struct {
	Id           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	DatabaseKind string    `json:"databaseKind"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *TenantService) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.catalog.ListTenants(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	infos := make([]tenantInfo, 0, len(tenants))
	for _, tenant := range tenants {
		infos = append(infos, tenantInfo{
			Id:           tenant.Id,
			Name:         tenant.Name,
			Status:       tenant.Status,
			DatabaseKind: tenant.DatabaseKind,
			CreatedAt:    tenant.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *TenantService) DisableTenant(w http.ResponseWriter, r *http.Request) {
	tenantId, err := utils.URLParam(r, "tenant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	existed, err := s.catalog.DisableTenant(r.Context(), tenantId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !existed {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	slog.Info("tenant disabled", "tenant_id", tenantId)
	utils.WriteSuccess(w)
}

type tenantSchemaResponse struct {
	Version          int                        `json:"version"`
	SchemaDefinition *dbschema.SchemaDefinition `json:"schemaDefinition"`
}

func (s *TenantService) GetSchema(w http.ResponseWriter, r *http.Request) {
	tenantId, err := utils.URLParam(r, "tenant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	schemaDef, version, err := s.catalog.GetSchema(r.Context(), tenantId)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJsonResponse(w, tenantSchemaResponse{Version: version, SchemaDefinition: schemaDef})
}

type updateSchemaRequest struct {
	SchemaDefinition *dbschema.SchemaDefinition `json:"schemaDefinition"`
}

func (s *TenantService) UpdateSchema(w http.ResponseWriter, r *http.Request) {
	tenantId, err := utils.URLParam(r, "tenant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateSchemaRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.SchemaDefinition == nil {
		http.Error(w, "schemaDefinition is required", http.StatusBadRequest)
		return
	}

	slog.Info("updating tenant schema", "tenant_id", tenantId)

	if err := s.orchestrator.UpdateSchema(r.Context(), tenantId, params.SchemaDefinition); err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteSuccess(w)
}
