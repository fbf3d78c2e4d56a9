package catalog

import (
	"context"
	"testing"
	"time"

	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/schema"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupCatalog(t *testing.T) *Catalog {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := schema.Migrate(db); err != nil {
		t.Fatal(err)
	}

	return New(NewGormStore(db), time.Minute)
}

func ptrString(s string) *string { return &s }

func newTenant(id, name string) (*schema.Tenant, *schema.TenantConnection) {
	tenant := &schema.Tenant{
		Id:           id,
		Name:         name,
		Status:       schema.StatusActive,
		DatabaseKind: schema.KindBoth,
	}
	conn := &schema.TenantConnection{
		TenantId:       id,
		RelationalDsn:  ptrString("host=db dbname=tenant_" + id),
		DocumentUri:    ptrString("mongodb://db/tenant_" + id),
		DocumentDbName: ptrString("tenant_" + id),
	}
	return tenant, conn
}

func TestCreateAndGetConnections(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	got, err := cat.GetConnections(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, *conn.RelationalDsn, *got.RelationalDsn)
	assert.True(t, got.HasRelational())
	assert.True(t, got.HasDocument())

	// Second read is served from cache.
	cached, err := cat.GetConnections(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got, cached)
}

func TestGetConnectionsUnknownTenant(t *testing.T) {
	cat := setupCatalog(t)

	_, err := cat.GetConnections(context.Background(), "tenant-zzz999")
	assert.ErrorIs(t, err, schema.ErrTenantNotFound)
}

func TestDuplicateActiveNameRejected(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	dup, dupConn := newTenant("tenant-bbb222", "acme")
	err := cat.CreateTenant(ctx, dup, dupConn)
	assert.ErrorIs(t, err, schema.ErrTenantNameTaken)
}

func TestNameReusableAfterDisable(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	existed, err := cat.DisableTenant(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, existed)

	reused, reusedConn := newTenant("tenant-bbb222", "acme")
	if err := cat.CreateTenant(ctx, reused, reusedConn); err != nil {
		t.Fatal(err)
	}
}

func TestDisableTenant(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	// Prime the connection cache, then verify disable invalidates it.
	if _, err := cat.GetConnections(ctx, "tenant-aaa111"); err != nil {
		t.Fatal(err)
	}

	existed, err := cat.DisableTenant(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, existed)

	_, err = cat.GetConnections(ctx, "tenant-aaa111")
	assert.ErrorIs(t, err, schema.ErrTenantNotFound)

	// Disable is idempotent for an existing tenant.
	existed, err = cat.DisableTenant(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, existed)

	existed, err = cat.DisableTenant(ctx, "tenant-zzz999")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, existed)
}

func TestSchemaRoundTrip(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	tenant.SchemaVersion = 1
	tenant.SchemaDefinition = ptrString(`{"version": 1, "name": "initial", "tables": []}`)
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	stored, version, err := cat.GetSchema(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, version)
	assert.Equal(t, "initial", stored.Name)

	updated := dbschema.DefaultSchema()
	if err := cat.UpdateSchema(ctx, "tenant-aaa111", updated); err != nil {
		t.Fatal(err)
	}

	// The update must be observed immediately despite the cache.
	stored, version, err = cat.GetSchema(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, version)
	assert.Equal(t, "default", stored.Name)
	assert.Len(t, stored.Tables, 1)
}

func TestConcurrentCreateWithSameName(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := schema.Migrate(db); err != nil {
		t.Fatal(err)
	}
	cat := New(NewGormStore(db), time.Minute)

	// A competing create commits an active tenant with the same name after
	// the duplicate-name check has already passed, so only the unique index
	// can reject the insert.
	raced := false
	err = db.Callback().Create().Before("gorm:create").Register("competing_create", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "tenants" {
			return
		}
		raced = true
		now := time.Now().UTC()
		winner := tx.Session(&gorm.Session{NewDB: true})
		if err := winner.Exec(
			"INSERT INTO tenants (id, name, status, database_kind, schema_version, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)",
			"tenant-bbb222", "acme", schema.StatusActive, schema.KindRelational, now, now,
		).Error; err != nil {
			tx.AddError(err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	tenant, conn := newTenant("tenant-aaa111", "acme")
	err = cat.CreateTenant(context.Background(), tenant, conn)
	assert.True(t, raced)
	assert.ErrorIs(t, err, schema.ErrTenantNameTaken)
}

func TestUpdateSchemaIncrementsStoredVersion(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	// Two updates with no interleaved reads: the version comes from the
	// stored row, not from anything the caller observed.
	if err := cat.UpdateSchema(ctx, "tenant-aaa111", dbschema.DefaultSchema()); err != nil {
		t.Fatal(err)
	}
	if err := cat.UpdateSchema(ctx, "tenant-aaa111", dbschema.DefaultSchema()); err != nil {
		t.Fatal(err)
	}

	_, version, err := cat.GetSchema(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, version)
}

func TestUpdateSchemaUnknownTenant(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	err := cat.UpdateSchema(ctx, "tenant-zzz999", dbschema.DefaultSchema())
	assert.ErrorIs(t, err, schema.ErrTenantNotFound)

	// A disabled tenant is gone as far as schema updates are concerned.
	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.DisableTenant(ctx, "tenant-aaa111"); err != nil {
		t.Fatal(err)
	}
	err = cat.UpdateSchema(ctx, "tenant-aaa111", dbschema.DefaultSchema())
	assert.ErrorIs(t, err, schema.ErrTenantNotFound)
}

func TestGetSchemaNilWhenNoneStored(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	tenant, conn := newTenant("tenant-aaa111", "acme")
	if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
		t.Fatal(err)
	}

	stored, version, err := cat.GetSchema(ctx, "tenant-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	assert.Nil(t, stored)
	assert.Equal(t, 0, version)
}

func TestListTenants(t *testing.T) {
	cat := setupCatalog(t)
	ctx := context.Background()

	for _, info := range []struct{ id, name string }{
		{"tenant-aaa111", "acme"}, {"tenant-bbb222", "globex"},
	} {
		tenant, conn := newTenant(info.id, info.name)
		if err := cat.CreateTenant(ctx, tenant, conn); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := cat.DisableTenant(ctx, "tenant-bbb222"); err != nil {
		t.Fatal(err)
	}

	tenants, err := cat.ListTenants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, tenants, 1)
	assert.Equal(t, "acme", tenants[0].Name)
}
