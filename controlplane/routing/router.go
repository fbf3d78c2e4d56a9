package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dbplane/controlplane/schema"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNoRelationalStore = errors.New("tenant has no relational store")
	ErrNoDocumentStore   = errors.New("tenant has no document store")
)

// Router opens store handles scoped to a single tenant's connection
// descriptors. Handles are never shared across tenants: every acquisition
// returns a release function that must run on all exit paths.
type Router interface {
	Relational(ctx context.Context, conn schema.TenantConnection) (*gorm.DB, func(), error)
	Document(ctx context.Context, conn schema.TenantConnection) (*mongo.Database, func(), error)
}

type StoreRouter struct{}

func NewStoreRouter() *StoreRouter {
	return &StoreRouter{}
}

func (r *StoreRouter) Relational(ctx context.Context, conn schema.TenantConnection) (*gorm.DB, func(), error) {
	if !conn.HasRelational() {
		return nil, nil, ErrNoRelationalStore
	}

	db, err := gorm.Open(postgres.Open(*conn.RelationalDsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error opening tenant database connection: %w", err)
	}

	release := func() {
		sqlDb, err := db.DB()
		if err != nil {
			slog.Error("error retrieving underlying connection for release", "error", err)
			return
		}
		if err := sqlDb.Close(); err != nil {
			slog.Error("error closing tenant database connection", "error", err)
		}
	}

	return db.WithContext(ctx), release, nil
}

func (r *StoreRouter) Document(ctx context.Context, conn schema.TenantConnection) (*mongo.Database, func(), error) {
	if !conn.HasDocument() {
		return nil, nil, ErrNoDocumentStore
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*conn.DocumentUri))
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to tenant document store: %w", err)
	}

	release := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Error("error disconnecting tenant document store client", "error", err)
		}
	}

	return client.Database(*conn.DocumentDbName), release, nil
}
