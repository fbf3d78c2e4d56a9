package tests

import (
	"net/http"
	"testing"

	"dbplane/controlplane/dbschema"

	"github.com/stretchr/testify/assert"
)

func employeeSchema() *dbschema.SchemaDefinition {
	no := false
	return &dbschema.SchemaDefinition{
		Version: 1,
		Name:    "hr",
		Tables: []dbschema.TableDefinition{
			{
				Name: "employees",
				Columns: []dbschema.ColumnDefinition{
					{Name: "id", DataType: dbschema.Int64, IsPrimaryKey: true},
					{Name: "name", DataType: dbschema.String, MaxLength: 100, IsNullable: &no},
					{Name: "age", DataType: dbschema.Int32},
				},
				Indexes: []dbschema.IndexDefinition{
					{Name: "idx_employees_name", Columns: []string{"name"}},
				},
			},
		},
	}
}

func setupTenantWithData(t *testing.T) (*testEnv, client) {
	env := setupTestEnv(t)

	admin := env.newClient()
	tenantId, err := admin.createTenant("acme", "relational", employeeSchema())
	if err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	c.tenantId = tenantId
	return env, c
}

func TestDataCrud(t *testing.T) {
	_, c := setupTenantWithData(t)

	tables, err := c.listTables()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"employees"}, tables)

	for _, record := range []map[string]interface{}{
		{"id": 1, "name": "alice", "age": 34},
		{"id": 2, "name": "bob", "age": 28},
		{"id": 3, "name": "carol", "age": 41},
	} {
		if err := c.insertRecord("employees", record); err != nil {
			t.Fatal(err)
		}
	}

	records, err := c.queryTable("employees", "", "age")
	if err != nil {
		t.Fatal(err)
	}
	if assert.Len(t, records, 3) {
		assert.Equal(t, "bob", records[0]["name"])
	}

	records, err = c.queryTable("employees", "age > 30", "age DESC")
	if err != nil {
		t.Fatal(err)
	}
	if assert.Len(t, records, 2) {
		assert.Equal(t, "carol", records[0]["name"])
	}

	updated, err := c.updateRecords("employees", map[string]interface{}{"age": 29}, "name = 'bob'")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, int64(1), updated)

	deleted, err := c.deleteRecords("employees", "age > 40")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, int64(1), deleted)

	records, err = c.queryTable("employees", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, records, 2)
}

func TestDataTableSchema(t *testing.T) {
	_, c := setupTenantWithData(t)

	columns, err := c.tableSchema("employees")
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, columns, 3)

	byName := map[string]columnInfo{}
	for _, col := range columns {
		byName[col.Name] = col
	}
	assert.True(t, byName["id"].PrimaryKey)
	assert.False(t, byName["name"].Nullable)
}

func TestDataUnknownTable(t *testing.T) {
	_, c := setupTenantWithData(t)

	err := c.Get("/data/missing").ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)
}

func TestDataRejectsInjection(t *testing.T) {
	_, c := setupTenantWithData(t)

	err := c.Get("/data/employees?where=1%20%3D%201%3B%20DROP%20TABLE%20employees").
		ExpectStatus(http.StatusBadRequest).Do(nil)
	assert.NoError(t, err)

	tables, err := c.listTables()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"employees"}, tables)
}

func TestDataRequiresTenant(t *testing.T) {
	env, _ := setupTenantWithData(t)

	anonymous := env.newClient()
	err := anonymous.Get("/data").ExpectStatus(http.StatusBadRequest).Do(nil)
	assert.NoError(t, err)

	unknown := env.newClient()
	unknown.tenantId = "nosuchtenant1234"
	err = unknown.Get("/data").ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)
}

func TestDataWithBearerToken(t *testing.T) {
	env, c := setupTenantWithData(t)

	issuer := env.newClient()
	token, err := issuer.issueToken(c.tenantId)
	if err != nil {
		t.Fatal(err)
	}

	tokenClient := env.newClient()
	tokenClient.authToken = token

	tables, err := tokenClient.listTables()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"employees"}, tables)
}

func TestTokenRejectsInvalidTenantId(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newClient()

	err := c.Post("/token").Json(map[string]string{"tenantId": "BAD_ID"}).
		ExpectStatus(http.StatusBadRequest).Do(nil)
	assert.NoError(t, err)
}

func TestTenantDataIsolation(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.newClient()

	first, err := admin.createTenant("acme", "relational", employeeSchema())
	if err != nil {
		t.Fatal(err)
	}
	second, err := admin.createTenant("globex", "relational", employeeSchema())
	if err != nil {
		t.Fatal(err)
	}

	c1 := env.newClient()
	c1.tenantId = first
	c2 := env.newClient()
	c2.tenantId = second

	if err := c1.insertRecord("employees", map[string]interface{}{"id": 1, "name": "alice"}); err != nil {
		t.Fatal(err)
	}

	records, err := c1.queryTable("employees", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, records, 1)

	// The second tenant's store does not see the first tenant's rows.
	records, err = c2.queryTable("employees", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, records)
}

func TestDocumentEndpointsWithoutDocumentStore(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.newClient()

	tenantId, err := admin.createTenant("acme", "relational", nil)
	if err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	c.tenantId = tenantId

	err = c.Get("/documents").ExpectStatus(http.StatusBadRequest).Do(nil)
	assert.NoError(t, err)
}
