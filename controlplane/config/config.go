package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// TenantPlaceholder is substituted with the tenant id when deriving per-tenant
// connection strings and database names from the configured templates.
const TenantPlaceholder = "{tenant}"

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogFile    string `env:"LOG_FILE"`

	// Catalog database (the control plane's own store).
	CatalogUri string `env:"CATALOG_URI,required"`

	// Per-tenant store templates, each containing the {tenant} placeholder.
	RelationalAdminDsn    string `env:"RELATIONAL_ADMIN_DSN"`
	RelationalDsnTemplate string `env:"RELATIONAL_DSN_TEMPLATE"`
	RelationalDbTemplate  string `env:"RELATIONAL_DB_TEMPLATE" envDefault:"tenant_{tenant}"`
	DocumentUriTemplate   string `env:"DOCUMENT_URI_TEMPLATE"`
	DocumentDbTemplate    string `env:"DOCUMENT_DB_TEMPLATE" envDefault:"tenant_{tenant}"`

	JwtSecret string `env:"JWT_SECRET,required"`

	CacheTtl        time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	TenantIdRetries int           `env:"TENANT_ID_RETRIES" envDefault:"10"`
	MaxQueryRows    int           `env:"MAX_QUERY_ROWS" envDefault:"1000"`

	// Optional yaml file overriding the built-in default tenant schema.
	DefaultSchemaPath string `env:"DEFAULT_SCHEMA_PATH"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing environment config: %w", err)
	}

	for name, template := range map[string]string{
		"RELATIONAL_DSN_TEMPLATE": cfg.RelationalDsnTemplate,
		"RELATIONAL_DB_TEMPLATE":  cfg.RelationalDbTemplate,
		"DOCUMENT_URI_TEMPLATE":   cfg.DocumentUriTemplate,
		"DOCUMENT_DB_TEMPLATE":    cfg.DocumentDbTemplate,
	} {
		if template != "" && !strings.Contains(template, TenantPlaceholder) {
			return Config{}, fmt.Errorf("%v must contain the %v placeholder", name, TenantPlaceholder)
		}
	}

	return cfg, nil
}

// ExpandTemplate substitutes the tenant id into a connection template.
func ExpandTemplate(template, tenantId string) string {
	return strings.ReplaceAll(template, TenantPlaceholder, tenantId)
}
