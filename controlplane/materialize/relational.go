package materialize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"dbplane/controlplane/dbschema"

	"gorm.io/gorm"
)

// Relational materializes a validated schema definition into a tenant's
// relational database. Three passes: tables, then indexes, then foreign keys.
// Foreign keys go last so constraint creation never races table ordering.
// Every statement is guarded by an existence check, so re-applying the same
// schema is a no-op.
func Relational(db *gorm.DB, schemaDef *dbschema.SchemaDefinition) error {
	migrator := db.Migrator()

	for _, table := range schemaDef.Tables {
		if migrator.HasTable(table.Name) {
			slog.Info("table already exists, skipping", "table", table.Name)
			continue
		}

		stmt, err := CreateTableSQL(&table)
		if err != nil {
			return err
		}
		if result := db.Exec(stmt); result.Error != nil {
			return fmt.Errorf("error creating table '%v': %w", table.Name, result.Error)
		}
		slog.Info("created table", "table", table.Name)
	}

	for _, table := range schemaDef.Tables {
		for _, index := range table.Indexes {
			if migrator.HasIndex(table.Name, index.Name) {
				continue
			}
			if result := db.Exec(CreateIndexSQL(table.Name, &index)); result.Error != nil {
				return fmt.Errorf("error creating index '%v' on table '%v': %w", index.Name, table.Name, result.Error)
			}
			slog.Info("created index", "table", table.Name, "index", index.Name)
		}
	}

	for _, table := range schemaDef.Tables {
		for _, fk := range table.ForeignKeys {
			if migrator.HasConstraint(table.Name, fk.Name) {
				continue
			}
			if result := db.Exec(AddForeignKeySQL(table.Name, &fk)); result.Error != nil {
				return fmt.Errorf("error adding foreign key '%v' on table '%v': %w", fk.Name, table.Name, result.Error)
			}
			slog.Info("added foreign key", "table", table.Name, "constraint", fk.Name)
		}
	}

	return nil
}

// CreateTableSQL builds a guarded create statement with a composite primary
// key constraint over all primary key columns.
func CreateTableSQL(table *dbschema.TableDefinition) (string, error) {
	defs := make([]string, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		def, err := columnSQL(&col)
		if err != nil {
			return "", fmt.Errorf("table '%v': %w", table.Name, err)
		}
		defs = append(defs, def)
	}

	pk := table.PrimaryKeyColumns()
	quoted := make([]string, len(pk))
	for i, col := range pk {
		quoted[i] = quoteIdent(col)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%v)", strings.Join(quoted, ", ")))

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (%v)", quoteIdent(table.Name), strings.Join(defs, ", ")), nil
}

func CreateIndexSQL(tableName string, index *dbschema.IndexDefinition) string {
	unique := ""
	if index.IsUnique {
		unique = "UNIQUE "
	}

	cols := make([]string, len(index.Columns))
	for i, col := range index.Columns {
		cols[i] = quoteIdent(col)
	}

	// IsClustered has no direct equivalent here, the flag only affects stores
	// that distinguish clustered indexes.
	return fmt.Sprintf(
		"CREATE %vINDEX IF NOT EXISTS %v ON %v (%v)",
		unique, quoteIdent(index.Name), quoteIdent(tableName), strings.Join(cols, ", "),
	)
}

func AddForeignKeySQL(tableName string, fk *dbschema.ForeignKeyDefinition) string {
	src := make([]string, len(fk.Columns))
	for i, col := range fk.Columns {
		src[i] = quoteIdent(col)
	}
	ref := make([]string, len(fk.ReferencedColumns))
	for i, col := range fk.ReferencedColumns {
		ref[i] = quoteIdent(col)
	}

	return fmt.Sprintf(
		"ALTER TABLE %v ADD CONSTRAINT %v FOREIGN KEY (%v) REFERENCES %v (%v)",
		quoteIdent(tableName), quoteIdent(fk.Name),
		strings.Join(src, ", "), quoteIdent(fk.ReferencedTable), strings.Join(ref, ", "),
	)
}

func columnSQL(col *dbschema.ColumnDefinition) (string, error) {
	typeName, err := columnType(col)
	if err != nil {
		return "", err
	}

	parts := []string{quoteIdent(col.Name), typeName}

	if col.IsIdentity {
		parts = append(parts, "GENERATED BY DEFAULT AS IDENTITY")
	}
	if !col.Nullable() || col.IsPrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if col.DefaultValue != nil {
		parts = append(parts, "DEFAULT "+defaultLiteral(*col.DefaultValue))
	}

	return strings.Join(parts, " "), nil
}

func columnType(col *dbschema.ColumnDefinition) (string, error) {
	switch col.DataType {
	case dbschema.String:
		return fmt.Sprintf("VARCHAR(%d)", col.MaxLength), nil
	case dbschema.Text:
		return "TEXT", nil
	case dbschema.Int8, dbschema.Int16:
		return "SMALLINT", nil
	case dbschema.Int32:
		return "INTEGER", nil
	case dbschema.Int64:
		return "BIGINT", nil
	case dbschema.Decimal:
		return fmt.Sprintf("NUMERIC(%d, %d)", col.Precision, col.Scale), nil
	case dbschema.Money:
		return "NUMERIC(19, 4)", nil
	case dbschema.Float:
		return "DOUBLE PRECISION", nil
	case dbschema.Boolean:
		return "BOOLEAN", nil
	case dbschema.Date:
		return "DATE", nil
	case dbschema.DateTime:
		return "TIMESTAMP", nil
	case dbschema.Timestamp:
		return "TIMESTAMPTZ", nil
	case dbschema.Uuid:
		return "UUID", nil
	case dbschema.Binary, dbschema.VarBinary:
		return "BYTEA", nil
	default:
		return "", fmt.Errorf("column '%v' has unmappable data type '%v'", col.Name, col.DataType)
	}
}

// defaultLiteral renders a column default. Numeric and boolean defaults pass
// through, everything else becomes a quoted string literal.
func defaultLiteral(value string) string {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value
	}
	switch strings.ToLower(value) {
	case "true", "false":
		return strings.ToUpper(value)
	case "current_timestamp", "now()":
		return "CURRENT_TIMESTAMP"
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
