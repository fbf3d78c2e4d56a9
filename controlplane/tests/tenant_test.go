package tests

import (
	"fmt"
	"net/http"
	"testing"

	"dbplane/controlplane/dbschema"

	"github.com/stretchr/testify/assert"
)

func TestTenantLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	tenantId, err := c.createTenant("acme", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, tenantId, 16)

	tenants, err := c.listTenants()
	if err != nil {
		t.Fatal(err)
	}
	if assert.Len(t, tenants, 1) {
		assert.Equal(t, "acme", tenants[0].Name)
		assert.Equal(t, "active", tenants[0].Status)
		assert.Equal(t, "both", tenants[0].DatabaseKind)
	}

	err = c.disableTenant(tenantId)
	if err != nil {
		t.Fatal(err)
	}

	tenants, err = c.listTenants()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, tenants)

	// Disabling again still succeeds, disabling an unknown tenant is a 404.
	err = c.disableTenant(tenantId)
	assert.NoError(t, err)

	err = c.Delete("/tenants/nosuchtenant1234").ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)
}

func TestCreateTenantRejectsDuplicateName(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	if _, err := c.createTenant("acme", "", nil); err != nil {
		t.Fatal(err)
	}

	err := c.Post("/tenants").Json(map[string]string{"name": "acme"}).
		ExpectStatus(http.StatusConflict).Do(nil)
	assert.NoError(t, err)
}

func TestCreateTenantRejectsBadRequests(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	err := c.Post("/tenants").Json(map[string]string{}).
		ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	err = c.Post("/tenants").Json(map[string]string{"name": "acme", "databaseKind": "graph"}).
		ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	badSchema := map[string]interface{}{
		"name": "acme",
		"schemaDefinition": map[string]interface{}{
			"name":   "bad",
			"tables": []map[string]interface{}{{"name": "t"}},
		},
	}
	err = c.Post("/tenants").Json(badSchema).ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)
}

func TestSchemaEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	initial := &dbschema.SchemaDefinition{
		Version: 1,
		Name:    "initial",
		Tables: []dbschema.TableDefinition{
			{Name: "widgets", Columns: []dbschema.ColumnDefinition{
				{Name: "id", DataType: dbschema.Uuid, IsPrimaryKey: true},
				{Name: "label", DataType: dbschema.String, MaxLength: 50},
			}},
		},
	}

	tenantId, err := c.createTenant("acme", "relational", initial)
	if err != nil {
		t.Fatal(err)
	}

	stored, err := c.getSchema(tenantId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "initial", stored.SchemaDefinition.Name)

	updated := &dbschema.SchemaDefinition{
		Version: 2,
		Name:    "expanded",
		Tables: append(initial.Tables, dbschema.TableDefinition{
			Name: "gadgets",
			Columns: []dbschema.ColumnDefinition{
				{Name: "id", DataType: dbschema.Uuid, IsPrimaryKey: true},
			},
		}),
	}

	if err := c.updateSchema(tenantId, updated); err != nil {
		t.Fatal(err)
	}

	stored, err = c.getSchema(tenantId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "expanded", stored.SchemaDefinition.Name)
	assert.Len(t, stored.SchemaDefinition.Tables, 2)

	// Schema updates are additive: both tables are live in the tenant's store.
	dataClient := env.newClient()
	dataClient.tenantId = tenantId
	tables, err := dataClient.listTables()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"gadgets", "widgets"}, tables)
}

func TestSchemaEndpointsUnknownTenant(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	err := c.Get("/tenants/nosuchtenant1234/schema").ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)

	body := map[string]interface{}{"schemaDefinition": dbschema.DefaultSchema()}
	err = c.Put("/tenants/nosuchtenant1234/schema").Json(body).ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)
}

func TestProvisioningRollback(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	// A schema that validates but fails to materialize in the tenant store
	// fails provisioning after the catalog entry is created, which must roll
	// the tenant back. The identity column syntax is not supported by the
	// test store.
	unmaterializable := &dbschema.SchemaDefinition{
		Version: 1,
		Name:    "unmaterializable",
		Tables: []dbschema.TableDefinition{
			{Name: "t", Columns: []dbschema.ColumnDefinition{
				{Name: "id", DataType: dbschema.Int64, IsPrimaryKey: true, IsIdentity: true},
			}},
		},
	}

	err := c.Post("/tenants").
		Json(map[string]interface{}{"name": "acme", "databaseKind": "relational", "schemaDefinition": unmaterializable}).
		ExpectStatus(http.StatusInternalServerError).Do(nil)
	assert.NoError(t, err)

	tenants, err := c.listTenants()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, tenants)

	// The failed name is free for a retry with a workable schema.
	if _, err := c.createTenant("acme", "relational", nil); err != nil {
		t.Fatal(err)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	assert.NoError(t, c.Get("/health").Do(nil))
	assert.NoError(t, c.Get("/ready").Do(nil))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	err := c.Get("/metrics").Do(nil)
	assert.NoError(t, err)
}

func TestManyTenantsAreIsolatedInCatalog(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	ids := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		tenantId, err := c.createTenant(fmt.Sprintf("tenant-%d", i), "relational", nil)
		if err != nil {
			t.Fatal(err)
		}
		ids[tenantId] = struct{}{}
	}
	assert.Len(t, ids, 5)

	tenants, err := c.listTenants()
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, tenants, 5)
}
