package tests

import (
	"context"
	"sync"

	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/materialize"
	"dbplane/controlplane/routing"
	"dbplane/controlplane/schema"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RouterStub routes every relational connection descriptor to an in-process
// database, one per tenant, so the dynamic data surface can be exercised end
// to end without a live server.
type RouterStub struct {
	mu  sync.Mutex
	dbs map[string]*gorm.DB
}

func newRouterStub() *RouterStub {
	return &RouterStub{dbs: make(map[string]*gorm.DB)}
}

func (r *RouterStub) Relational(ctx context.Context, conn schema.TenantConnection) (*gorm.DB, func(), error) {
	if !conn.HasRelational() {
		return nil, nil, routing.ErrNoRelationalStore
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	db, ok := r.dbs[*conn.RelationalDsn]
	if !ok {
		var err error
		db, err = gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, nil, err
		}
		r.dbs[*conn.RelationalDsn] = db
	}

	return db.WithContext(ctx), func() {}, nil
}

func (r *RouterStub) Document(ctx context.Context, conn schema.TenantConnection) (*mongo.Database, func(), error) {
	return nil, nil, routing.ErrNoDocumentStore
}

// RelationalStoreStub provisions through the stub router, so materialized
// tables are visible to subsequent data requests for the same tenant.
type RelationalStoreStub struct {
	Router *RouterStub

	Dropped []string
}

func (s *RelationalStoreStub) EnsureDatabase(ctx context.Context, tenantId string, conn schema.TenantConnection) error {
	_, release, err := s.Router.Relational(ctx, conn)
	if err != nil {
		return err
	}
	release()
	return nil
}

func (s *RelationalStoreStub) DropDatabase(ctx context.Context, tenantId string) error {
	s.Dropped = append(s.Dropped, tenantId)
	return nil
}

func (s *RelationalStoreStub) Materialize(ctx context.Context, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error {
	db, release, err := s.Router.Relational(ctx, conn)
	if err != nil {
		return err
	}
	defer release()
	return materialize.Relational(db, schemaDef)
}

type DocumentStoreStub struct {
	Pings   int
	Dropped []string
}

func (s *DocumentStoreStub) Ping(ctx context.Context, conn schema.TenantConnection) error {
	s.Pings++
	return nil
}

func (s *DocumentStoreStub) DropDatabase(ctx context.Context, conn schema.TenantConnection) error {
	if conn.DocumentDbName != nil {
		s.Dropped = append(s.Dropped, *conn.DocumentDbName)
	}
	return nil
}

func (s *DocumentStoreStub) Materialize(ctx context.Context, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error {
	return nil
}
