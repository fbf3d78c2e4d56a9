package dbschema

import (
	"fmt"
	"strings"
)

// ValidationError carries every rule violation found in a schema so that a
// caller sees all problems in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schema: %v", strings.Join(e.Problems, "; "))
}

// Validate checks a schema definition against the full rule set. All
// violations are accumulated, never short circuited. A nil return means the
// schema is valid.
func Validate(schema *SchemaDefinition) *ValidationError {
	var problems []string

	if schema.Name == "" {
		problems = append(problems, "schema name is required")
	}

	tableNames := map[string]struct{}{}
	for _, table := range schema.Tables {
		if _, dup := tableNames[table.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate table name '%v'", table.Name))
		}
		tableNames[table.Name] = struct{}{}

		problems = append(problems, validateTable(schema, &table)...)
	}

	collectionNames := map[string]struct{}{}
	for _, collection := range schema.Collections {
		if collection.Name == "" {
			problems = append(problems, "collection name is required")
			continue
		}
		if _, dup := collectionNames[collection.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate collection name '%v'", collection.Name))
		}
		collectionNames[collection.Name] = struct{}{}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateTable(schema *SchemaDefinition, table *TableDefinition) []string {
	var problems []string

	if table.Name == "" {
		problems = append(problems, "table name is required")
	}

	if len(table.Columns) == 0 {
		problems = append(problems, fmt.Sprintf("table '%v' must define at least one column", table.Name))
	}

	columnNames := map[string]struct{}{}
	primaryKeys := 0
	for _, col := range table.Columns {
		if _, dup := columnNames[col.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate column name '%v' in table '%v'", col.Name, table.Name))
		}
		columnNames[col.Name] = struct{}{}

		if col.IsPrimaryKey {
			primaryKeys++
		}

		problems = append(problems, validateColumn(table.Name, &col)...)
	}

	if len(table.Columns) > 0 && primaryKeys == 0 {
		problems = append(problems, fmt.Sprintf("table '%v' must have at least one primary key column", table.Name))
	}

	for _, fk := range table.ForeignKeys {
		problems = append(problems, validateForeignKey(schema, table, &fk)...)
	}

	return problems
}

func validateColumn(tableName string, col *ColumnDefinition) []string {
	var problems []string

	if col.Name == "" {
		problems = append(problems, fmt.Sprintf("column in table '%v' is missing a name", tableName))
	}

	if col.DataType == "" {
		problems = append(problems, fmt.Sprintf("column '%v.%v' is missing a data type", tableName, col.Name))
	} else if !col.DataType.Valid() {
		problems = append(problems, fmt.Sprintf("column '%v.%v' has unknown data type '%v'", tableName, col.Name, col.DataType))
	}

	if col.DataType.RequiresLength() && col.MaxLength <= 0 {
		problems = append(problems, fmt.Sprintf("column '%v.%v' of type %v requires maxLength", tableName, col.Name, col.DataType))
	}

	// Zero scale is a valid decimal, negative is not.
	if col.DataType == Decimal && (col.Precision <= 0 || col.Scale < 0) {
		problems = append(problems, fmt.Sprintf("column '%v.%v' of type decimal requires precision and scale", tableName, col.Name))
	}

	return problems
}

func validateForeignKey(schema *SchemaDefinition, table *TableDefinition, fk *ForeignKeyDefinition) []string {
	var problems []string

	referenced := schema.Table(fk.ReferencedTable)
	if referenced == nil {
		problems = append(problems, fmt.Sprintf("foreign key '%v' on table '%v' references unknown table '%v'", fk.Name, table.Name, fk.ReferencedTable))
	}

	if len(fk.Columns) != len(fk.ReferencedColumns) {
		problems = append(problems, fmt.Sprintf("foreign key '%v' on table '%v' has %d source columns but %d referenced columns", fk.Name, table.Name, len(fk.Columns), len(fk.ReferencedColumns)))
	}

	for _, col := range fk.Columns {
		if table.Column(col) == nil {
			problems = append(problems, fmt.Sprintf("foreign key '%v' on table '%v' uses unknown column '%v'", fk.Name, table.Name, col))
		}
	}

	if referenced != nil {
		for _, col := range fk.ReferencedColumns {
			if referenced.Column(col) == nil {
				problems = append(problems, fmt.Sprintf("foreign key '%v' on table '%v' references unknown column '%v.%v'", fk.Name, table.Name, fk.ReferencedTable, col))
			}
		}
	}

	return problems
}
