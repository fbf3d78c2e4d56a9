package schema

import (
	"time"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

const (
	KindRelational = "relational"
	KindDocument   = "document"
	KindBoth       = "both"
)

func ValidKind(kind string) bool {
	return kind == KindRelational || kind == KindDocument || kind == KindBoth
}

func KindHasRelational(kind string) bool {
	return kind == KindRelational || kind == KindBoth
}

func KindHasDocument(kind string) bool {
	return kind == KindDocument || kind == KindBoth
}

// Tenant is the catalog record for one tenant. Tenants are never deleted,
// disable is the terminal state.
type Tenant struct {
	Id string `gorm:"size:32;primaryKey"`

	Name string `gorm:"size:100;not null;index"`

	Status       string `gorm:"size:20;not null;default:'active'"`
	DatabaseKind string `gorm:"size:20;not null"`

	SchemaVersion    int
	SchemaDefinition *string

	CreatedAt time.Time
	UpdatedAt time.Time

	Connection *TenantConnection `gorm:"foreignKey:TenantId;constraint:OnDelete:CASCADE"`
}

// TenantConnection holds the materialized connection descriptors for one
// tenant, one to one with Tenant. Fields are nil when the tenant's database
// kind excludes that store. The row survives disable.
type TenantConnection struct {
	TenantId string `gorm:"size:32;primaryKey"`

	RelationalDsn  *string `gorm:"size:500"`
	DocumentUri    *string `gorm:"size:500"`
	DocumentDbName *string `gorm:"size:200"`
}

func (c *TenantConnection) HasRelational() bool {
	return c != nil && c.RelationalDsn != nil
}

func (c *TenantConnection) HasDocument() bool {
	return c != nil && c.DocumentUri != nil && c.DocumentDbName != nil
}
