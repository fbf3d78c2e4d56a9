package dbschema

// DataType enumerates the column types a tenant schema may use. The
// materializer maps each to a concrete store type.
type DataType string

const (
	String    DataType = "string"
	Text      DataType = "text"
	Int8      DataType = "int8"
	Int16     DataType = "int16"
	Int32     DataType = "int32"
	Int64     DataType = "int64"
	Decimal   DataType = "decimal"
	Money     DataType = "money"
	Float     DataType = "float"
	Boolean   DataType = "boolean"
	Date      DataType = "date"
	DateTime  DataType = "datetime"
	Timestamp DataType = "timestamp"
	Uuid      DataType = "uuid"
	Binary    DataType = "binary"
	VarBinary DataType = "varbinary"
)

var dataTypes = map[DataType]struct{}{
	String: {}, Text: {}, Int8: {}, Int16: {}, Int32: {}, Int64: {},
	Decimal: {}, Money: {}, Float: {}, Boolean: {}, Date: {}, DateTime: {},
	Timestamp: {}, Uuid: {}, Binary: {}, VarBinary: {},
}

func (t DataType) Valid() bool {
	_, ok := dataTypes[t]
	return ok
}

// RequiresLength reports whether columns of this type must declare MaxLength.
func (t DataType) RequiresLength() bool {
	return t == String || t == VarBinary
}

type SchemaDefinition struct {
	Version     int                    `json:"version" yaml:"version"`
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Tables      []TableDefinition      `json:"tables,omitempty" yaml:"tables,omitempty"`
	Collections []CollectionDefinition `json:"collections,omitempty" yaml:"collections,omitempty"`
}

type TableDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Columns     []ColumnDefinition     `json:"columns" yaml:"columns"`
	Indexes     []IndexDefinition      `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKeyDefinition `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
}

// PrimaryKeyColumns returns the names of all primary key columns in order.
func (t *TableDefinition) PrimaryKeyColumns() []string {
	var pk []string
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			pk = append(pk, col.Name)
		}
	}
	return pk
}

func (t *TableDefinition) Column(name string) *ColumnDefinition {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

type ColumnDefinition struct {
	Name         string   `json:"name" yaml:"name"`
	DataType     DataType `json:"dataType" yaml:"dataType"`
	MaxLength    int      `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Precision    int      `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale        int      `json:"scale,omitempty" yaml:"scale,omitempty"`
	IsPrimaryKey bool     `json:"isPrimaryKey,omitempty" yaml:"isPrimaryKey,omitempty"`
	// IsNullable defaults to true when omitted, so it is a pointer to
	// distinguish "absent" from an explicit false.
	IsNullable   *bool   `json:"isNullable,omitempty" yaml:"isNullable,omitempty"`
	IsIdentity   bool    `json:"isIdentity,omitempty" yaml:"isIdentity,omitempty"`
	DefaultValue *string `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
}

func (c *ColumnDefinition) Nullable() bool {
	return c.IsNullable == nil || *c.IsNullable
}

type IndexDefinition struct {
	Name     string   `json:"name" yaml:"name"`
	Columns  []string `json:"columns" yaml:"columns"`
	IsUnique bool     `json:"isUnique,omitempty" yaml:"isUnique,omitempty"`
	// IsClustered only applies to relational indexes, document indexes ignore it.
	IsClustered bool `json:"isClustered,omitempty" yaml:"isClustered,omitempty"`
}

type ForeignKeyDefinition struct {
	Name              string   `json:"name" yaml:"name"`
	ReferencedTable   string   `json:"referencedTable" yaml:"referencedTable"`
	Columns           []string `json:"columns" yaml:"columns"`
	ReferencedColumns []string `json:"referencedColumns" yaml:"referencedColumns"`
}

type CollectionDefinition struct {
	Name    string            `json:"name" yaml:"name"`
	Indexes []IndexDefinition `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	// ValidationSchema is stored and passed through, never interpreted here.
	ValidationSchema map[string]interface{} `json:"validationSchema,omitempty" yaml:"validationSchema,omitempty"`
}

func (s *SchemaDefinition) Table(name string) *TableDefinition {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}
