package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"dbplane/controlplane/catalog"
	"dbplane/controlplane/config"
	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/schema"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tenantsCreatedMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "tenants_provisioned_total", Help: "Tenants provisioned successfully"})
	provisionFailureMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "tenant_provision_failures_total", Help: "Tenant provisioning failures"})
	rollbackMetric         = promauto.NewCounter(prometheus.CounterOpts{Name: "tenant_rollbacks_total", Help: "Tenant provisioning rollbacks attempted"})
)

var (
	ErrNameRequired = errors.New("tenant name is required")
	ErrInvalidKind  = errors.New("invalid database kind")
	// ErrIdGenerationExhausted is an operational alarm, not a user error: the
	// id space is large enough that repeated collisions indicate a fault.
	ErrIdGenerationExhausted = errors.New("exhausted attempts generating a unique tenant id")
)

type Templates struct {
	RelationalDsn string
	DocumentUri   string
	DocumentDb    string
}

// Orchestrator runs the tenant creation state machine: catalog persist,
// store provisioning, schema materialization, with best effort rollback when
// a step after the catalog persist fails.
type Orchestrator struct {
	catalog    *catalog.Catalog
	relational RelationalStore
	document   DocumentStore

	templates     Templates
	idRetries     int
	defaultSchema *dbschema.SchemaDefinition
}

func NewOrchestrator(
	cat *catalog.Catalog, relational RelationalStore, document DocumentStore,
	templates Templates, idRetries int, defaultSchema *dbschema.SchemaDefinition,
) *Orchestrator {
	if defaultSchema == nil {
		defaultSchema = dbschema.DefaultSchema()
	}
	if idRetries <= 0 {
		idRetries = 10
	}
	return &Orchestrator{
		catalog:       cat,
		relational:    relational,
		document:      document,
		templates:     templates,
		idRetries:     idRetries,
		defaultSchema: defaultSchema,
	}
}

type CreateTenantRequest struct {
	Name         string
	DatabaseKind string
	Schema       *dbschema.SchemaDefinition
}

// CreateTenant provisions a tenant end to end and returns its generated id.
// Validation failures occur before any side effect. Failures after the
// catalog persist trigger rollback: the tenant row is disabled and both
// provisioned databases are dropped best effort, then the original error is
// returned.
func (o *Orchestrator) CreateTenant(ctx context.Context, req CreateTenantRequest) (string, error) {
	kind := req.DatabaseKind
	if kind == "" {
		kind = schema.KindBoth
	}

	if err := o.validateCreate(ctx, req.Name, kind, req.Schema); err != nil {
		return "", err
	}

	tenantId, err := o.generateTenantId(ctx)
	if err != nil {
		return "", err
	}

	tenant, conn := o.newTenantRecords(tenantId, req.Name, kind, req.Schema)

	if err := o.catalog.CreateTenant(ctx, tenant, conn); err != nil {
		return "", err
	}
	slog.Info("tenant catalog entry created", "tenant_id", tenantId, "name", req.Name, "kind", kind)

	if err := o.provisionStores(ctx, tenantId, *conn, req.Schema); err != nil {
		provisionFailureMetric.Inc()
		slog.Error("tenant provisioning failed, rolling back", "tenant_id", tenantId, "error", err)
		o.rollback(tenantId, *conn)
		return "", err
	}

	tenantsCreatedMetric.Inc()
	slog.Info("tenant provisioned", "tenant_id", tenantId, "name", req.Name)
	return tenantId, nil
}

func (o *Orchestrator) validateCreate(ctx context.Context, name, kind string, schemaDef *dbschema.SchemaDefinition) error {
	if name == "" {
		return ErrNameRequired
	}
	if !schema.ValidKind(kind) {
		return fmt.Errorf("%w: '%v'", ErrInvalidKind, kind)
	}

	// Best effort pre-check: the catalog's uniqueness constraint remains the
	// final arbiter under concurrent creation of the same name.
	taken, err := o.catalog.TenantNameExists(ctx, name)
	if err != nil {
		return err
	}
	if taken {
		return schema.ErrTenantNameTaken
	}

	if schemaDef != nil {
		if verr := dbschema.Validate(schemaDef); verr != nil {
			return verr
		}
	}
	return nil
}

func (o *Orchestrator) generateTenantId(ctx context.Context) (string, error) {
	for attempt := 0; attempt < o.idRetries; attempt++ {
		id, err := randomTenantId()
		if err != nil {
			return "", err
		}

		exists, err := o.catalog.TenantExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		slog.Warn("generated tenant id collided, retrying", "attempt", attempt+1)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrIdGenerationExhausted, o.idRetries)
}

func (o *Orchestrator) newTenantRecords(tenantId, name, kind string, schemaDef *dbschema.SchemaDefinition) (*schema.Tenant, *schema.TenantConnection) {
	tenant := &schema.Tenant{
		Id:           tenantId,
		Name:         name,
		Status:       schema.StatusActive,
		DatabaseKind: kind,
	}

	if schemaDef != nil {
		if serialized, err := json.Marshal(schemaDef); err == nil {
			s := string(serialized)
			tenant.SchemaDefinition = &s
			tenant.SchemaVersion = 1
		}
	}

	conn := &schema.TenantConnection{TenantId: tenantId}
	if schema.KindHasRelational(kind) {
		dsn := config.ExpandTemplate(o.templates.RelationalDsn, tenantId)
		conn.RelationalDsn = &dsn
	}
	if schema.KindHasDocument(kind) {
		uri := config.ExpandTemplate(o.templates.DocumentUri, tenantId)
		dbName := config.ExpandTemplate(o.templates.DocumentDb, tenantId)
		conn.DocumentUri = &uri
		conn.DocumentDbName = &dbName
	}

	return tenant, conn
}

func (o *Orchestrator) provisionStores(ctx context.Context, tenantId string, conn schema.TenantConnection, schemaDef *dbschema.SchemaDefinition) error {
	if conn.HasRelational() {
		if err := o.relational.EnsureDatabase(ctx, tenantId, conn); err != nil {
			return fmt.Errorf("relational provisioning failed: %w", err)
		}
	}

	if conn.HasDocument() {
		if err := o.document.Ping(ctx, conn); err != nil {
			return fmt.Errorf("document provisioning failed: %w", err)
		}
	}

	if schemaDef == nil {
		schemaDef = o.defaultSchema
	}

	if conn.HasRelational() {
		if err := o.relational.Materialize(ctx, conn, schemaDef); err != nil {
			return fmt.Errorf("relational schema materialization failed: %w", err)
		}
	}
	if conn.HasDocument() {
		if err := o.document.Materialize(ctx, conn, schemaDef); err != nil {
			return fmt.Errorf("document schema materialization failed: %w", err)
		}
	}

	return nil
}

// rollback disables the tenant row and attempts to drop both provisioned
// databases. It runs on a fresh context so caller cancellation cannot leave a
// tenant half cleaned up. Failures here are logged and deliberately
// discarded: they must never mask the error that triggered the rollback.
func (o *Orchestrator) rollback(tenantId string, conn schema.TenantConnection) {
	rollbackMetric.Inc()
	ctx := context.Background()

	if _, err := o.catalog.DisableTenant(ctx, tenantId); err != nil {
		slog.Error("rollback: error disabling tenant", "tenant_id", tenantId, "error", err)
	}

	if conn.HasRelational() {
		if err := o.relational.DropDatabase(ctx, tenantId); err != nil {
			slog.Error("rollback: error dropping relational database", "tenant_id", tenantId, "error", err)
		}
	}

	if conn.HasDocument() {
		if err := o.document.DropDatabase(ctx, conn); err != nil {
			slog.Error("rollback: error dropping document database", "tenant_id", tenantId, "error", err)
		}
	}

	slog.Info("rollback completed", "tenant_id", tenantId)
}

// UpdateSchema validates and re-materializes a tenant's schema. The
// materializers are additive and idempotent, so no diffing is needed and no
// existing structure is ever dropped.
func (o *Orchestrator) UpdateSchema(ctx context.Context, tenantId string, schemaDef *dbschema.SchemaDefinition) error {
	if verr := dbschema.Validate(schemaDef); verr != nil {
		return verr
	}

	conn, err := o.catalog.GetConnections(ctx, tenantId)
	if err != nil {
		return err
	}

	if conn.HasRelational() {
		if err := o.relational.Materialize(ctx, conn, schemaDef); err != nil {
			return fmt.Errorf("relational schema materialization failed: %w", err)
		}
	}
	if conn.HasDocument() {
		if err := o.document.Materialize(ctx, conn, schemaDef); err != nil {
			return fmt.Errorf("document schema materialization failed: %w", err)
		}
	}

	if err := o.catalog.UpdateSchema(ctx, tenantId, schemaDef); err != nil {
		return err
	}

	slog.Info("tenant schema updated", "tenant_id", tenantId)
	return nil
}
