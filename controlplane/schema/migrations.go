package schema

import (
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate brings the catalog database up to the current schema. The active
// tenant name uniqueness is a partial index so a disabled tenant frees its
// name for reuse.
func Migrate(db *gorm.DB) error {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "1_active_name_uniqueness",
			Migrate: func(txn *gorm.DB) error {
				return txn.Exec(
					"CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_active_name ON tenants(name) WHERE status = 'active'",
				).Error
			},
			Rollback: func(txn *gorm.DB) error {
				return txn.Exec("DROP INDEX IF EXISTS idx_tenants_active_name").Error
			},
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		slog.Info("clean catalog database detected, running full schema initialization")
		if err := txn.AutoMigrate(&Tenant{}, &TenantConnection{}); err != nil {
			return err
		}
		// InitSchema marks all migrations applied, so the partial index must
		// be created here as well.
		return txn.Exec(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_active_name ON tenants(name) WHERE status = 'active'",
		).Error
	})

	return migration.Migrate()
}
