package services

import (
	"net/http"
	"strconv"

	"dbplane/controlplane/auth"
	"dbplane/controlplane/dynamicdata"
	"dbplane/controlplane/routing"
	"dbplane/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// DataService exposes the dynamic CRUD surface over a tenant's relational
// store. Every handler acquires a connection scoped to the resolved tenant
// and releases it before returning.
type DataService struct {
	router routing.Router
	data   dynamicdata.Relational
}

func (s *DataService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.ListTables)
	r.Get("/{table}", s.Query)
	r.Get("/{table}/schema", s.TableSchema)
	r.Post("/{table}", s.Insert)
	r.Put("/{table}", s.Update)
	r.Delete("/{table}", s.Delete)

	return r
}

// withTenantDb resolves the tenant context, opens the tenant's relational
// store, and guarantees release on every exit path.
func (s *DataService) withTenantDb(w http.ResponseWriter, r *http.Request, fn func(db *gorm.DB)) {
	tctx, err := auth.TenantFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	db, release, err := s.router.Relational(r.Context(), tctx.Connection)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()

	fn(db)
}

func (s *DataService) ListTables(w http.ResponseWriter, r *http.Request) {
	s.withTenantDb(w, r, func(db *gorm.DB) {
		tables, err := s.data.ListTables(db)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"tables": tables})
	})
}

func (s *DataService) TableSchema(w http.ResponseWriter, r *http.Request) {
	table, err := utils.URLParam(r, "table")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.withTenantDb(w, r, func(db *gorm.DB) {
		columns, err := s.data.TableSchema(db, table)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"table": table, "columns": columns})
	})
}

func (s *DataService) Query(w http.ResponseWriter, r *http.Request) {
	table, err := utils.URLParam(r, "table")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := dynamicdata.QueryOptions{
		Where:   r.URL.Query().Get("where"),
		OrderBy: r.URL.Query().Get("orderBy"),
		Limit:   intQueryParam(r, "limit"),
	}

	s.withTenantDb(w, r, func(db *gorm.DB) {
		records, err := s.data.Query(db, table, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"records": records})
	})
}

func (s *DataService) Insert(w http.ResponseWriter, r *http.Request) {
	table, err := utils.URLParam(r, "table")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var record map[string]interface{}
	if !utils.ParseRequestBody(w, r, &record) {
		return
	}

	s.withTenantDb(w, r, func(db *gorm.DB) {
		if err := s.data.Insert(db, table, record); err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteSuccess(w)
	})
}

func (s *DataService) Update(w http.ResponseWriter, r *http.Request) {
	table, err := utils.URLParam(r, "table")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var record map[string]interface{}
	if !utils.ParseRequestBody(w, r, &record) {
		return
	}

	s.withTenantDb(w, r, func(db *gorm.DB) {
		affected, err := s.data.Update(db, table, record, r.URL.Query().Get("where"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"updated": affected})
	})
}

func (s *DataService) Delete(w http.ResponseWriter, r *http.Request) {
	table, err := utils.URLParam(r, "table")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.withTenantDb(w, r, func(db *gorm.DB) {
		affected, err := s.data.Delete(db, table, r.URL.Query().Get("where"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"deleted": affected})
	})
}

func intQueryParam(r *http.Request, key string) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
