package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/schema"

	gocache "github.com/patrickmn/go-cache"
)

// Catalog is the tenant directory with a read-through TTL cache in front of
// the persistent store. Cache keys are namespaced per tenant and entity kind
// so connection and schema invalidation never interfere. Every mutation
// invalidates before returning, so a read following a write in the same
// process is always consistent.
type Catalog struct {
	store Store
	cache *gocache.Cache
}

func New(store Store, ttl time.Duration) *Catalog {
	return &Catalog{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func connKey(tenantId string) string   { return "conn:" + tenantId }
func schemaKey(tenantId string) string { return "schema:" + tenantId }

func (c *Catalog) CreateTenant(ctx context.Context, tenant *schema.Tenant, conn *schema.TenantConnection) error {
	if err := c.store.CreateTenant(ctx, tenant, conn); err != nil {
		return err
	}
	// A stale entry for a reused id must not outlive the new tenant.
	c.cache.Delete(connKey(tenant.Id))
	c.cache.Delete(schemaKey(tenant.Id))
	return nil
}

// GetConnections returns the connection descriptors for an active tenant.
// Reads through the cache with the configured TTL.
func (c *Catalog) GetConnections(ctx context.Context, tenantId string) (schema.TenantConnection, error) {
	if cached, ok := c.cache.Get(connKey(tenantId)); ok {
		return cached.(schema.TenantConnection), nil
	}

	conn, err := c.store.GetConnections(ctx, tenantId)
	if err != nil {
		return schema.TenantConnection{}, err
	}

	c.cache.SetDefault(connKey(tenantId), conn)
	return conn, nil
}

func (c *Catalog) GetTenant(ctx context.Context, tenantId string) (schema.Tenant, error) {
	return c.store.GetTenant(ctx, tenantId)
}

func (c *Catalog) TenantExists(ctx context.Context, tenantId string) (bool, error) {
	return c.store.TenantExists(ctx, tenantId)
}

func (c *Catalog) TenantNameExists(ctx context.Context, name string) (bool, error) {
	return c.store.TenantNameExists(ctx, name)
}

// DisableTenant flips a tenant to disabled. Idempotent: disabling an already
// disabled tenant succeeds, disabling a tenant that never existed returns
// false.
func (c *Catalog) DisableTenant(ctx context.Context, tenantId string) (bool, error) {
	existed, err := c.store.DisableTenant(ctx, tenantId)
	if err != nil {
		return false, err
	}
	c.cache.Delete(connKey(tenantId))
	c.cache.Delete(schemaKey(tenantId))
	return existed, nil
}

// GetSchema returns the tenant's stored schema definition, or nil if the
// tenant was created without one. Cached in a separate bucket from
// connections.
func (c *Catalog) GetSchema(ctx context.Context, tenantId string) (*dbschema.SchemaDefinition, int, error) {
	if cached, ok := c.cache.Get(schemaKey(tenantId)); ok {
		entry := cached.(schemaEntry)
		return entry.schema, entry.version, nil
	}

	serialized, version, err := c.store.GetSchema(ctx, tenantId)
	if err != nil {
		return nil, 0, err
	}

	var parsed *dbschema.SchemaDefinition
	if serialized != nil {
		parsed = &dbschema.SchemaDefinition{}
		if err := json.Unmarshal([]byte(*serialized), parsed); err != nil {
			slog.Error("stored schema definition cannot be parsed", "tenant_id", tenantId, "error", err)
			return nil, 0, fmt.Errorf("stored schema for tenant %v is corrupt: %w", tenantId, err)
		}
	}

	c.cache.SetDefault(schemaKey(tenantId), schemaEntry{schema: parsed, version: version})
	return parsed, version, nil
}

// UpdateSchema persists a new schema definition and invalidates the schema
// cache entry so the next read observes the update. The version bump happens
// in the store's update expression, never from a read in this process.
func (c *Catalog) UpdateSchema(ctx context.Context, tenantId string, newSchema *dbschema.SchemaDefinition) error {
	serialized, err := json.Marshal(newSchema)
	if err != nil {
		return fmt.Errorf("error serializing schema definition: %w", err)
	}

	if err := c.store.UpdateSchema(ctx, tenantId, string(serialized)); err != nil {
		return err
	}

	c.cache.Delete(schemaKey(tenantId))
	return nil
}

func (c *Catalog) ListTenants(ctx context.Context) ([]schema.Tenant, error) {
	return c.store.ListTenants(ctx)
}

type schemaEntry struct {
	schema  *dbschema.SchemaDefinition
	version int
}
