package services

import (
	"net/http"

	"dbplane/controlplane/auth"
	"dbplane/controlplane/dynamicdata"
	"dbplane/controlplane/routing"
	"dbplane/utils"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
)

// DocumentService is the dynamic CRUD surface over a tenant's document
// store.
type DocumentService struct {
	router routing.Router
	data   dynamicdata.Document
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.ListCollections)
	r.Get("/{collection}", s.Query)
	r.Post("/{collection}", s.Insert)
	r.Put("/{collection}/{id}", s.Update)
	r.Delete("/{collection}/{id}", s.Delete)

	return r
}

func (s *DocumentService) withTenantDb(w http.ResponseWriter, r *http.Request, fn func(db *mongo.Database)) {
	tctx, err := auth.TenantFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	db, release, err := s.router.Document(r.Context(), tctx.Connection)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()

	fn(db)
}

func (s *DocumentService) ListCollections(w http.ResponseWriter, r *http.Request) {
	s.withTenantDb(w, r, func(db *mongo.Database) {
		collections, err := s.data.ListCollections(r.Context(), db)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"collections": collections})
	})
}

func (s *DocumentService) Query(w http.ResponseWriter, r *http.Request) {
	collection, err := utils.URLParam(r, "collection")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := dynamicdata.DocumentQueryOptions{
		Filter: r.URL.Query().Get("filter"),
		Sort:   r.URL.Query().Get("sort"),
		Limit:  intQueryParam(r, "limit"),
	}

	s.withTenantDb(w, r, func(db *mongo.Database) {
		documents, err := s.data.Query(r.Context(), db, collection, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"documents": documents})
	})
}

func (s *DocumentService) Insert(w http.ResponseWriter, r *http.Request) {
	collection, err := utils.URLParam(r, "collection")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var document map[string]interface{}
	if !utils.ParseRequestBody(w, r, &document) {
		return
	}

	s.withTenantDb(w, r, func(db *mongo.Database) {
		id, err := s.data.Insert(r.Context(), db, collection, document)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"id": id})
	})
}

func (s *DocumentService) Update(w http.ResponseWriter, r *http.Request) {
	collection, err := utils.URLParam(r, "collection")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := utils.URLParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var document map[string]interface{}
	if !utils.ParseRequestBody(w, r, &document) {
		return
	}

	s.withTenantDb(w, r, func(db *mongo.Database) {
		if err := s.data.UpdateById(r.Context(), db, collection, id, document); err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteSuccess(w)
	})
}

func (s *DocumentService) Delete(w http.ResponseWriter, r *http.Request) {
	collection, err := utils.URLParam(r, "collection")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := utils.URLParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.withTenantDb(w, r, func(db *mongo.Database) {
		if err := s.data.DeleteById(r.Context(), db, collection, id); err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteSuccess(w)
	})
}
