package database

import (
	"context"
	"fmt"
	"slices"
)

// auditTables are dumped in this order, parents before children.
var auditTables = []string{"slots", "appointments", "users"}

func (db *DB) TableNames(context.Context) ([]string, error) {
	return slices.Clone(auditTables), nil
}

// TableData returns every row of table in insertion order, soft-deleted ones
// included. Column names come from the result set itself.
func (db *DB) TableData(ctx context.Context, table string) ([]map[string]interface{}, []string, error) {
	if !slices.Contains(auditTables, table) {
		return nil, nil, fmt.Errorf("table %q is not exportable", table)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY rowid")
	if err != nil {
		return nil, nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("%s columns: %w", table, err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", table, err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			if raw, ok := values[i].([]byte); ok {
				values[i] = string(raw)
			}
			record[name] = values[i]
		}
		out = append(out, record)
	}
	return out, columns, rows.Err()
}
