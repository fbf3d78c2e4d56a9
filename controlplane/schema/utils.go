package schema

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantNameTaken    = errors.New("tenant name is already in use")
	ErrConnectionsMissing = errors.New("tenant has no connection record")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetTenant(tenantId string, db *gorm.DB) (Tenant, error) {
	var tenant Tenant

	result := db.First(&tenant, "id = ?", tenantId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return tenant, ErrTenantNotFound
		}
		slog.Error("sql error in get tenant", "tenant_id", tenantId, "error", result.Error)
		return tenant, ErrDbAccessFailed
	}

	return tenant, nil
}

func GetActiveTenant(tenantId string, db *gorm.DB) (Tenant, error) {
	var tenant Tenant

	result := db.First(&tenant, "id = ? AND status = ?", tenantId, StatusActive)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return tenant, ErrTenantNotFound
		}
		slog.Error("sql error in get active tenant", "tenant_id", tenantId, "error", result.Error)
		return tenant, ErrDbAccessFailed
	}

	return tenant, nil
}

func GetConnection(tenantId string, db *gorm.DB) (TenantConnection, error) {
	var conn TenantConnection

	result := db.First(&conn, "tenant_id = ?", tenantId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return conn, ErrConnectionsMissing
		}
		slog.Error("sql error in get tenant connection", "tenant_id", tenantId, "error", result.Error)
		return conn, ErrDbAccessFailed
	}

	return conn, nil
}
