package materialize

import (
	"testing"

	"dbplane/controlplane/dbschema"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ptrBool(b bool) *bool { return &b }

func ptrString(s string) *string { return &s }

func TestCreateTableSQL(t *testing.T) {
	table := dbschema.TableDefinition{
		Name: "orders",
		Columns: []dbschema.ColumnDefinition{
			{Name: "id", DataType: dbschema.Uuid, IsPrimaryKey: true},
			{Name: "sku", DataType: dbschema.String, MaxLength: 64, IsNullable: ptrBool(false)},
			{Name: "total", DataType: dbschema.Decimal, Precision: 10, Scale: 2},
			{Name: "paid", DataType: dbschema.Boolean, DefaultValue: ptrString("false")},
			{Name: "created_at", DataType: dbschema.Timestamp, DefaultValue: ptrString("current_timestamp")},
		},
	}

	stmt, err := CreateTableSQL(&table)
	if err != nil {
		t.Fatal(err)
	}

	expected := `CREATE TABLE IF NOT EXISTS "orders" (` +
		`"id" UUID NOT NULL, ` +
		`"sku" VARCHAR(64) NOT NULL, ` +
		`"total" NUMERIC(10, 2), ` +
		`"paid" BOOLEAN DEFAULT FALSE, ` +
		`"created_at" TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP, ` +
		`PRIMARY KEY ("id"))`
	assert.Equal(t, expected, stmt)
}

func TestCreateTableSQLCompositeKey(t *testing.T) {
	table := dbschema.TableDefinition{
		Name: "order_lines",
		Columns: []dbschema.ColumnDefinition{
			{Name: "order_id", DataType: dbschema.Uuid, IsPrimaryKey: true},
			{Name: "line_no", DataType: dbschema.Int32, IsPrimaryKey: true},
		},
	}

	stmt, err := CreateTableSQL(&table)
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, stmt, `PRIMARY KEY ("order_id", "line_no")`)
}

func TestCreateTableSQLIdentityColumn(t *testing.T) {
	table := dbschema.TableDefinition{
		Name: "counters",
		Columns: []dbschema.ColumnDefinition{
			{Name: "id", DataType: dbschema.Int64, IsPrimaryKey: true, IsIdentity: true},
		},
	}

	stmt, err := CreateTableSQL(&table)
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, stmt, `"id" BIGINT GENERATED BY DEFAULT AS IDENTITY NOT NULL`)
}

func TestCreateTableSQLUnmappableType(t *testing.T) {
	table := dbschema.TableDefinition{
		Name:    "t",
		Columns: []dbschema.ColumnDefinition{{Name: "c", DataType: "geometry"}},
	}

	_, err := CreateTableSQL(&table)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmappable data type 'geometry'")
}

func TestCreateIndexSQL(t *testing.T) {
	index := dbschema.IndexDefinition{Name: "idx_orders_sku", Columns: []string{"sku", "created_at"}}
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "idx_orders_sku" ON "orders" ("sku", "created_at")`,
		CreateIndexSQL("orders", &index),
	)

	index.IsUnique = true
	assert.Equal(t,
		`CREATE UNIQUE INDEX IF NOT EXISTS "idx_orders_sku" ON "orders" ("sku", "created_at")`,
		CreateIndexSQL("orders", &index),
	)
}

func TestAddForeignKeySQL(t *testing.T) {
	fk := dbschema.ForeignKeyDefinition{
		Name:              "fk_orders_customer",
		ReferencedTable:   "customers",
		Columns:           []string{"customer_id"},
		ReferencedColumns: []string{"id"},
	}
	assert.Equal(t,
		`ALTER TABLE "orders" ADD CONSTRAINT "fk_orders_customer" FOREIGN KEY ("customer_id") REFERENCES "customers" ("id")`,
		AddForeignKeySQL("orders", &fk),
	)
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestRelationalIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	schemaDef := &dbschema.SchemaDefinition{
		Name: "inventory",
		Tables: []dbschema.TableDefinition{
			{
				Name: "products",
				Columns: []dbschema.ColumnDefinition{
					{Name: "id", DataType: dbschema.Uuid, IsPrimaryKey: true},
					{Name: "sku", DataType: dbschema.String, MaxLength: 64, IsNullable: ptrBool(false)},
				},
				Indexes: []dbschema.IndexDefinition{
					{Name: "idx_products_sku", Columns: []string{"sku"}, IsUnique: true},
				},
			},
		},
	}

	if err := Relational(db, schemaDef); err != nil {
		t.Fatal(err)
	}

	assert.True(t, db.Migrator().HasTable("products"))
	assert.True(t, db.Migrator().HasIndex("products", "idx_products_sku"))

	// Reapplying must not fail on already existing objects.
	if err := Relational(db, schemaDef); err != nil {
		t.Fatal(err)
	}

	err = db.Exec(`INSERT INTO products (id, sku) VALUES ('p1', 'sku-1')`).Error
	if err != nil {
		t.Fatal(err)
	}
	err = db.Exec(`INSERT INTO products (id, sku) VALUES ('p2', 'sku-1')`).Error
	assert.Error(t, err)
}
