package dbschema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a schema definition from a yaml file and validates it. Used
// for the operator supplied default schema applied to tenants created without
// an explicit schema.
func LoadFile(path string) (*SchemaDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schema file '%v': %w", path, err)
	}

	var schema SchemaDefinition
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("error parsing schema file '%v': %w", path, err)
	}

	if verr := Validate(&schema); verr != nil {
		return nil, fmt.Errorf("schema file '%v' is invalid: %w", path, verr)
	}

	return &schema, nil
}

// DefaultSchema is applied when a tenant is created without a schema so the
// tenant is immediately usable.
func DefaultSchema() *SchemaDefinition {
	no := false
	return &SchemaDefinition{
		Version: 1,
		Name:    "default",
		Tables: []TableDefinition{
			{
				Name: "items",
				Columns: []ColumnDefinition{
					{Name: "id", DataType: Uuid, IsPrimaryKey: true, IsNullable: &no},
					{Name: "name", DataType: String, MaxLength: 200, IsNullable: &no},
					{Name: "created_at", DataType: Timestamp},
				},
				Indexes: []IndexDefinition{
					{Name: "idx_items_name", Columns: []string{"name"}},
				},
			},
		},
		Collections: []CollectionDefinition{
			{
				Name: "items",
				Indexes: []IndexDefinition{
					{Name: "idx_items_name", Columns: []string{"name"}},
				},
			},
		},
	}
}
