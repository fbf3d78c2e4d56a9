package dynamicdata

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	queryMetric  = promauto.NewSummary(prometheus.SummaryOpts{Name: "dynamic_query_seconds", Help: "Dynamic table queries"})
	insertMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "dynamic_insert_seconds", Help: "Dynamic table inserts"})
	updateMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "dynamic_update_seconds", Help: "Dynamic table updates"})
	deleteMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "dynamic_delete_seconds", Help: "Dynamic table deletes"})
)

const DefaultQueryLimit = 100

// ErrEmptyRecord rejects writes whose payload carries nothing to store.
var ErrEmptyRecord = errors.New("record must contain at least one column")

// TableNotFoundError names the missing table and, for diagnostics, the
// tables that do exist in the tenant's store.
type TableNotFoundError struct {
	Table    string
	Existing []string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table '%v' does not exist, available tables: [%v]", e.Table, strings.Join(e.Existing, ", "))
}

// Relational is generic CRUD over tenant-defined tables discovered by name at
// call time. Values are always bound parameters; identifiers are validated
// and quoted.
type Relational struct {
	MaxRows int
}

type QueryOptions struct {
	Where   string
	OrderBy string
	Limit   int
}

func (d *Relational) clampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if d.MaxRows > 0 && limit > d.MaxRows {
		limit = d.MaxRows
	}
	return limit
}

func (d *Relational) Query(db *gorm.DB, table string, opts QueryOptions) ([]map[string]interface{}, error) {
	defer observe(queryMetric, time.Now())

	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	if err := checkClause(opts.Where); err != nil {
		return nil, err
	}
	if err := checkClause(opts.OrderBy); err != nil {
		return nil, err
	}
	if err := ensureTable(db, table); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %v", quoteIdent(table))
	if opts.Where != "" {
		fmt.Fprintf(&sb, " WHERE %v", opts.Where)
	}
	if opts.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %v", opts.OrderBy)
	}
	fmt.Fprintf(&sb, " LIMIT %d", d.clampLimit(opts.Limit))

	rows, err := db.Raw(sb.String()).Rows()
	if err != nil {
		return nil, fmt.Errorf("error querying table '%v': %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading result columns: %w", err)
	}

	records := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = FromStore(values[i])
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (d *Relational) Insert(db *gorm.DB, table string, record map[string]interface{}) error {
	defer observe(insertMetric, time.Now())

	if err := checkIdentifier(table); err != nil {
		return err
	}
	columns, args, err := recordColumns(record)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return ErrEmptyRecord
	}
	if err := ensureTable(db, table); err != nil {
		return err
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %v (%v) VALUES (%v)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)

	if result := db.Exec(stmt, args...); result.Error != nil {
		return fmt.Errorf("error inserting into table '%v': %w", table, result.Error)
	}
	return nil
}

func (d *Relational) Update(db *gorm.DB, table string, record map[string]interface{}, where string) (int64, error) {
	defer observe(updateMetric, time.Now())

	if err := checkIdentifier(table); err != nil {
		return 0, err
	}
	if where == "" {
		return 0, fmt.Errorf("update requires a where clause")
	}
	if err := checkClause(where); err != nil {
		return 0, err
	}
	columns, args, err := recordColumns(record)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, ErrEmptyRecord
	}
	if err := ensureTable(db, table); err != nil {
		return 0, err
	}

	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = fmt.Sprintf("%v = $%d", quoteIdent(col), i+1)
	}

	stmt := fmt.Sprintf(
		"UPDATE %v SET %v WHERE %v",
		quoteIdent(table), strings.Join(assignments, ", "), where,
	)

	result := db.Exec(stmt, args...)
	if result.Error != nil {
		return 0, fmt.Errorf("error updating table '%v': %w", table, result.Error)
	}
	return result.RowsAffected, nil
}

func (d *Relational) Delete(db *gorm.DB, table string, where string) (int64, error) {
	defer observe(deleteMetric, time.Now())

	if err := checkIdentifier(table); err != nil {
		return 0, err
	}
	if where == "" {
		return 0, fmt.Errorf("delete requires a where clause")
	}
	if err := checkClause(where); err != nil {
		return 0, err
	}
	if err := ensureTable(db, table); err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf("DELETE FROM %v WHERE %v", quoteIdent(table), where)

	result := db.Exec(stmt)
	if result.Error != nil {
		return 0, fmt.Errorf("error deleting from table '%v': %w", table, result.Error)
	}
	return result.RowsAffected, nil
}

// ListTables reflects the live store, not the stored schema definition. The
// two can diverge if the store was altered outside this system.
func (d *Relational) ListTables(db *gorm.DB) ([]string, error) {
	tables, err := db.Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("error listing tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey"`
}

func (d *Relational) TableSchema(db *gorm.DB, table string) ([]ColumnInfo, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	if err := ensureTable(db, table); err != nil {
		return nil, err
	}

	columnTypes, err := db.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("error reading schema for table '%v': %w", table, err)
	}

	columns := make([]ColumnInfo, 0, len(columnTypes))
	for _, col := range columnTypes {
		nullable, _ := col.Nullable()
		pk, _ := col.PrimaryKey()
		columns = append(columns, ColumnInfo{
			Name:       col.Name(),
			Type:       col.DatabaseTypeName(),
			Nullable:   nullable,
			PrimaryKey: pk,
		})
	}
	return columns, nil
}

func ensureTable(db *gorm.DB, table string) error {
	if db.Migrator().HasTable(table) {
		return nil
	}
	existing, err := db.Migrator().GetTables()
	if err != nil {
		return fmt.Errorf("error listing tables: %w", err)
	}
	sort.Strings(existing)
	return &TableNotFoundError{Table: table, Existing: existing}
}

// recordColumns validates every column name in a record and returns columns
// and coerced values in a deterministic order.
func recordColumns(record map[string]interface{}) ([]string, []interface{}, error) {
	columns := make([]string, 0, len(record))
	for col := range record {
		if err := checkIdentifier(col); err != nil {
			return nil, nil, err
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	args := make([]interface{}, len(columns))
	for i, col := range columns {
		args[i] = ToNative(record[col])
	}
	return columns, args, nil
}

func observe(metric prometheus.Summary, start time.Time) {
	metric.Observe(time.Since(start).Seconds())
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
