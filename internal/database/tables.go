package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/MasterY0das/BikeForU/pkg/query"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// tableSchema describes one whitelisted table for the generic row store.
type tableSchema struct {
	columns   map[string]bool // queryable and writable columns
	jsonCols  map[string]bool // columns stored as JSONB, decoded on read
	immutable map[string]bool // columns rejected in updates
}

// tableSchemas is the full set of tables reachable through the generic
// endpoints. Anything else is ErrUnknownTable; anything outside a table's
// column set is ErrUnknownColumn. This is the injection boundary together
// with query.ToSQL's placeholder-only value handling.
var tableSchemas = map[string]tableSchema{
	"profiles": {
		columns: set("id", "name", "username", "avatar_url", "interests", "colour_theme", "created_at", "updated_at"),
		jsonCols: set("interests"),
		// Username is fixed at creation; identity columns never change.
		immutable: set("id", "username", "created_at"),
	},
	"friend_requests": {
		columns:   set("id", "sender_id", "receiver_id", "status", "created_at"),
		immutable: set("id", "sender_id", "receiver_id", "created_at"),
	},
	"routes": {
		columns:   set("id", "sender_id", "receiver_id", "title", "description", "distance_km", "is_public", "created_at"),
		immutable: set("id", "sender_id", "created_at"),
	},
	"messages": {
		columns:   set("id", "route_id", "sender_id", "body", "created_at"),
		immutable: set("id", "route_id", "sender_id", "created_at"),
	},
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Row is a generic table row as exchanged with the SDK.
type Row = map[string]any

// KnownTable reports whether table is part of the whitelisted set.
func KnownTable(table string) bool {
	_, ok := tableSchemas[table]
	return ok
}

// validate checks table and filter/order columns against the schema.
func validate(table string, preds []query.Predicate, orderBy string) (tableSchema, error) {
	schema, ok := tableSchemas[table]
	if !ok {
		return tableSchema{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	for _, p := range preds {
		for _, col := range p.Columns() {
			if !schema.columns[col] {
				return tableSchema{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
			}
		}
	}
	if orderBy != "" && !schema.columns[orderBy] {
		return tableSchema{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, orderBy)
	}
	return schema, nil
}

// ListRows returns rows matching the predicates, windowed and ordered per
// params. Ordering defaults to created_at so pagination is stable.
func (p *PostgresDB) ListRows(ctx context.Context, table string, preds []query.Predicate, params utils.ListParams) ([]Row, error) {
	schema, err := validate(table, preds, params.OrderBy)
	if err != nil {
		return nil, err
	}

	var args []any
	where := query.ToSQL(preds, &args)

	orderBy := params.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	direction := "ASC"
	if params.Descending {
		direction = "DESC"
	}

	sqlQuery := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		table, where, orderBy, direction, params.Limit, params.Offset,
	)

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		result = append(result, normalizeRow(schema, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return result, nil
}

// InsertRow stores a new row and returns it with server-assigned columns.
// Unique violations map to ErrDuplicate, which the friend-request endpoint
// surfaces as a conflict.
func (p *PostgresDB) InsertRow(ctx context.Context, table string, row Row) (Row, error) {
	schema, err := validate(table, nil, "")
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(row))
	for col := range row {
		if !schema.columns[col] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = encodeValue(schema, col, row[col])
	}

	sqlQuery := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	inserted, err := p.queryRowsGeneric(ctx, schema, sqlQuery, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	if len(inserted) == 0 {
		return nil, fmt.Errorf("insert into %s: no row returned", table)
	}
	return inserted[0], nil
}

// UpdateRows applies changes to every row matching the predicates and
// returns the updated rows. Immutable columns are rejected outright.
func (p *PostgresDB) UpdateRows(ctx context.Context, table string, preds []query.Predicate, changes Row) ([]Row, error) {
	schema, err := validate(table, preds, "")
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(changes))
	for col := range changes {
		if !schema.columns[col] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
		}
		if schema.immutable[col] {
			return nil, fmt.Errorf("%w: %s.%s", ErrImmutableColumn, table, col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var args []any
	assignments := make([]string, len(columns))
	for i, col := range columns {
		args = append(args, encodeValue(schema, col, changes[col]))
		assignments[i] = fmt.Sprintf("%s = $%d", col, len(args))
	}

	where := query.ToSQL(preds, &args)

	sqlQuery := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s RETURNING *",
		table, strings.Join(assignments, ", "), where,
	)

	updated, err := p.queryRowsGeneric(ctx, schema, sqlQuery, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return updated, nil
}

// DeleteRows removes every row matching the predicates and returns the
// count removed.
func (p *PostgresDB) DeleteRows(ctx context.Context, table string, preds []query.Predicate) (int64, error) {
	if _, err := validate(table, preds, ""); err != nil {
		return 0, err
	}

	var args []any
	where := query.ToSQL(preds, &args)

	result, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return affected, nil
}

// queryRowsGeneric runs a query returning arbitrary rows and normalizes
// them into Row maps.
func (p *PostgresDB) queryRowsGeneric(ctx context.Context, schema tableSchema, sqlQuery string, args ...any) ([]Row, error) {
	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		result = append(result, normalizeRow(schema, columns, values))
	}
	return result, rows.Err()
}

// normalizeRow converts driver values into JSON-friendly shapes: byte
// slices become strings, JSONB columns are decoded.
func normalizeRow(schema tableSchema, columns []string, values []any) Row {
	row := make(Row, len(columns))
	for i, col := range columns {
		switch v := values[i].(type) {
		case []byte:
			if schema.jsonCols[col] {
				var decoded any
				if err := json.Unmarshal(v, &decoded); err == nil {
					row[col] = decoded
					continue
				}
			}
			row[col] = string(v)
		default:
			row[col] = v
		}
	}
	return row
}

// encodeValue prepares a map value for a driver placeholder: JSONB columns
// are marshalled, everything else passes through.
func encodeValue(schema tableSchema, col string, v any) any {
	if schema.jsonCols[col] {
		encoded, err := json.Marshal(v)
		if err == nil {
			return encoded
		}
	}
	return v
}
