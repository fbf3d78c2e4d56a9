package provision

import (
	"context"
	"fmt"
	"log/slog"

	"dbplane/controlplane/config"
	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/materialize"
	"dbplane/controlplane/routing"
	"dbplane/controlplane/schema"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RelationalStore and DocumentStore are the store-side capabilities the
// orchestrator needs. Tests substitute stubs to exercise the provisioning
// state machine without live databases.
type RelationalStore interface {
	EnsureDatabase(ctx context.Context, tenantId string, conn schema.TenantConnection) error
	DropDatabase(ctx context.Context, tenantId string) error
	Materialize(ctx context.Context, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error
}

type DocumentStore interface {
	Ping(ctx context.Context, conn schema.TenantConnection) error
	DropDatabase(ctx context.Context, conn schema.TenantConnection) error
	Materialize(ctx context.Context, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error
}

// PostgresStore provisions per-tenant databases through an administrative
// connection.
type PostgresStore struct {
	AdminDsn   string
	DbTemplate string
	Router     routing.Router
}

func (s *PostgresStore) dbName(tenantId string) string {
	return config.ExpandTemplate(s.DbTemplate, tenantId)
}

func (s *PostgresStore) adminDb(ctx context.Context) (*gorm.DB, func(), error) {
	db, err := gorm.Open(postgres.Open(s.AdminDsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error opening admin database connection: %w", err)
	}
	release := func() {
		if sqlDb, err := db.DB(); err == nil {
			sqlDb.Close()
		}
	}
	return db.WithContext(ctx), release, nil
}

// EnsureDatabase creates the tenant database if absent, then verifies the
// tenant connection string actually reaches it.
func (s *PostgresStore) EnsureDatabase(ctx context.Context, tenantId string, conn schema.TenantConnection) error {
	admin, release, err := s.adminDb(ctx)
	if err != nil {
		return err
	}
	defer release()

	name := s.dbName(tenantId)

	var count int64
	result := admin.Raw("SELECT count(*) FROM pg_database WHERE datname = $1", name).Scan(&count)
	if result.Error != nil {
		return fmt.Errorf("error checking for database '%v': %w", name, result.Error)
	}

	if count == 0 {
		// Database names cannot be bound parameters, but the name is derived
		// from a generated id and the configured template, never from input.
		if result := admin.Exec(fmt.Sprintf(`CREATE DATABASE "%v"`, name)); result.Error != nil {
			return fmt.Errorf("error creating database '%v': %w", name, result.Error)
		}
		slog.Info("created tenant database", "tenant_id", tenantId, "database", name)
	} else {
		slog.Info("tenant database already exists", "tenant_id", tenantId, "database", name)
	}

	db, releaseTenant, err := s.Router.Relational(ctx, conn)
	if err != nil {
		return fmt.Errorf("error verifying tenant database connectivity: %w", err)
	}
	defer releaseTenant()

	if result := db.Exec("SELECT 1"); result.Error != nil {
		return fmt.Errorf("tenant database connectivity check failed: %w", result.Error)
	}
	return nil
}

func (s *PostgresStore) DropDatabase(ctx context.Context, tenantId string) error {
	admin, release, err := s.adminDb(ctx)
	if err != nil {
		return err
	}
	defer release()

	name := s.dbName(tenantId)
	if result := admin.Exec(fmt.Sprintf(`DROP DATABASE IF EXISTS "%v"`, name)); result.Error != nil {
		return fmt.Errorf("error dropping database '%v': %w", name, result.Error)
	}
	return nil
}

func (s *PostgresStore) Materialize(ctx context.Context, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error {
	db, release, err := s.Router.Relational(ctx, conn)
	if err != nil {
		return err
	}
	defer release()

	return materialize.Relational(db, schemaDef)
}

// MongoStore provisions per-tenant document databases. The store creates
// databases lazily on first write, so provisioning is a reachability check.
type MongoStore struct {
	Router routing.Router
}

func (s *MongoStore) Ping(ctx context.Context, conn schema.TenantConnection) error {
	db, release, err := s.Router.Document(ctx, conn)
	if err != nil {
		return err
	}
	defer release()

	if err := db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("document store reachability check failed: %w", err)
	}
	return nil
}

func (s *MongoStore) DropDatabase(ctx context.Context, conn schema.TenantConnection) error {
	if !conn.HasDocument() {
		return routing.ErrNoDocumentStore
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*conn.DocumentUri))
	if err != nil {
		return fmt.Errorf("error connecting to document store: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Error("error disconnecting document store client", "error", err)
		}
	}()

	if err := client.Database(*conn.DocumentDbName).Drop(ctx); err != nil {
		return fmt.Errorf("error dropping document database '%v': %w", *conn.DocumentDbName, err)
	}
	return nil
}

func (s *MongoStore) Materialize(ctx context.Context, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error {
	db, release, err := s.Router.Document(ctx, conn)
	if err != nil {
		return err
	}
	defer release()

	return materialize.Document(ctx, db, schemaDef)
}
