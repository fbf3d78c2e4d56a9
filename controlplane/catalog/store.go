package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dbplane/controlplane/schema"

	"gorm.io/gorm"
)

const defaultListLimit = 100

// Store is the persistence capability behind the catalog. The gorm
// implementation is the production one, tests may substitute their own.
type Store interface {
	CreateTenant(ctx context.Context, tenant *schema.Tenant, conn *schema.TenantConnection) error
	GetTenant(ctx context.Context, tenantId string) (schema.Tenant, error)
	GetConnections(ctx context.Context, tenantId string) (schema.TenantConnection, error)
	TenantExists(ctx context.Context, tenantId string) (bool, error)
	TenantNameExists(ctx context.Context, name string) (bool, error)
	DisableTenant(ctx context.Context, tenantId string) (bool, error)
	GetSchema(ctx context.Context, tenantId string) (*string, int, error)
	UpdateSchema(ctx context.Context, tenantId string, serialized string) error
	ListTenants(ctx context.Context) ([]schema.Tenant, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateTenant(ctx context.Context, tenant *schema.Tenant, conn *schema.TenantConnection) error {
	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var existing schema.Tenant
		result := txn.Limit(1).Find(&existing, "name = ? AND status = ?", tenant.Name, schema.StatusActive)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate tenant name", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return schema.ErrTenantNameTaken
		}

		if result := txn.Create(tenant); result.Error != nil {
			// The unique index on active names decides races the pre-check
			// above cannot see.
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return schema.ErrTenantNameTaken
			}
			slog.Error("sql error creating tenant", "tenant_id", tenant.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result := txn.Create(conn); result.Error != nil {
			slog.Error("sql error creating tenant connection", "tenant_id", tenant.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
}

func (s *gormStore) GetTenant(ctx context.Context, tenantId string) (schema.Tenant, error) {
	return schema.GetTenant(tenantId, s.db.WithContext(ctx))
}

func (s *gormStore) GetConnections(ctx context.Context, tenantId string) (schema.TenantConnection, error) {
	db := s.db.WithContext(ctx)
	if _, err := schema.GetActiveTenant(tenantId, db); err != nil {
		return schema.TenantConnection{}, err
	}
	return schema.GetConnection(tenantId, db)
}

func (s *gormStore) TenantExists(ctx context.Context, tenantId string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&schema.Tenant{}).
		Where("id = ? AND status = ?", tenantId, schema.StatusActive).Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking tenant existence", "tenant_id", tenantId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return count > 0, nil
}

func (s *gormStore) TenantNameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&schema.Tenant{}).
		Where("name = ? AND status = ?", name, schema.StatusActive).Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking tenant name existence", "name", name, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return count > 0, nil
}

func (s *gormStore) DisableTenant(ctx context.Context, tenantId string) (bool, error) {
	if _, err := schema.GetTenant(tenantId, s.db.WithContext(ctx)); err != nil {
		if errors.Is(err, schema.ErrTenantNotFound) {
			return false, nil
		}
		return false, err
	}

	result := s.db.WithContext(ctx).Model(&schema.Tenant{Id: tenantId}).
		Updates(map[string]interface{}{"status": schema.StatusDisabled, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		slog.Error("sql error disabling tenant", "tenant_id", tenantId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return true, nil
}

func (s *gormStore) GetSchema(ctx context.Context, tenantId string) (*string, int, error) {
	tenant, err := schema.GetActiveTenant(tenantId, s.db.WithContext(ctx))
	if err != nil {
		return nil, 0, err
	}
	return tenant.SchemaDefinition, tenant.SchemaVersion, nil
}

// UpdateSchema bumps the stored version in the update expression itself, so
// concurrent updates never persist the same version.
func (s *gormStore) UpdateSchema(ctx context.Context, tenantId string, serialized string) error {
	result := s.db.WithContext(ctx).Model(&schema.Tenant{}).
		Where("id = ? AND status = ?", tenantId, schema.StatusActive).
		Updates(map[string]interface{}{
			"schema_definition": serialized,
			"schema_version":    gorm.Expr("schema_version + 1"),
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		slog.Error("sql error updating tenant schema", "tenant_id", tenantId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return schema.ErrTenantNotFound
	}
	return nil
}

func (s *gormStore) ListTenants(ctx context.Context) ([]schema.Tenant, error) {
	var tenants []schema.Tenant
	result := s.db.WithContext(ctx).
		Where("status = ?", schema.StatusActive).Limit(defaultListLimit).Find(&tenants)
	if result.Error != nil {
		slog.Error("sql error listing tenants", "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return tenants, nil
}
