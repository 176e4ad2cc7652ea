package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MasterY0das/BikeForU/pkg/query"
)

// From starts a table query against the provider's generic table interface.
// Filters are typed predicates, never interpolated strings, so user input
// cannot alter query structure.
//
// Example:
//
//	var profiles []map[string]any
//	err := c.From("profiles").
//	    Where(query.ILike("username", "%rider%")).
//	    Limit(10).
//	    Select(ctx, &profiles)
func (c *Client) From(table string) *TableQuery {
	return &TableQuery{client: c, table: table}
}

// TableQuery accumulates filters and windowing for a single table request.
// It is a one-shot builder: configure it, then call exactly one of Select,
// Insert, Update, or Delete.
type TableQuery struct {
	client     *Client
	table      string
	filters    []query.Predicate
	embeds     []string
	orderBy    string
	descending bool
	limit      int
	offset     int
}

// Where adds filter predicates, combined with AND. Use query.Or to express
// alternatives:
//
//	q.Where(query.Or(
//	    query.Eq("sender_id", me),
//	    query.Eq("receiver_id", me),
//	))
func (q *TableQuery) Where(preds ...query.Predicate) *TableQuery {
	q.filters = append(q.filters, preds...)
	return q
}

// Embed requests a named relation to be included with each row, such as the
// sender profile on a friend request.
func (q *TableQuery) Embed(relations ...string) *TableQuery {
	q.embeds = append(q.embeds, relations...)
	return q
}

// Order sorts results by the given column.
func (q *TableQuery) Order(column string, descending bool) *TableQuery {
	q.orderBy = column
	q.descending = descending
	return q
}

// Limit caps the number of returned rows.
func (q *TableQuery) Limit(n int) *TableQuery {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q *TableQuery) Offset(n int) *TableQuery {
	q.offset = n
	return q
}

// Select fetches matching rows into dest, which must be a pointer to a
// slice of row-shaped values.
func (q *TableQuery) Select(ctx context.Context, dest any) error {
	return q.client.do(ctx, http.MethodGet, q.path(), nil, true, dest)
}

// SelectOne fetches a single matching row into dest. Returns an *APIError
// with status 404 when no row matches.
func (q *TableQuery) SelectOne(ctx context.Context, dest any) error {
	q.limit = 1
	var rows []map[string]any
	if err := q.client.do(ctx, http.MethodGet, q.path(), nil, true, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return &APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("no matching row in %s", q.table)}
	}
	return remarshal(rows[0], dest)
}

// Insert creates a new row. dest, when non-nil, receives the stored row
// including server-assigned fields.
func (q *TableQuery) Insert(ctx context.Context, row any, dest any) error {
	return q.client.do(ctx, http.MethodPost, q.path(), row, true, dest)
}

// Update applies changes to every row matching the filters. dest, when
// non-nil, receives the updated rows.
func (q *TableQuery) Update(ctx context.Context, changes any, dest any) error {
	return q.client.do(ctx, http.MethodPatch, q.path(), changes, true, dest)
}

// Delete removes every row matching the filters.
func (q *TableQuery) Delete(ctx context.Context) error {
	return q.client.do(ctx, http.MethodDelete, q.path(), nil, true, nil)
}

// remarshal converts a decoded generic row into the caller's typed dest.
func remarshal(src, dest any) error {
	encoded, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("re-encode row: %w", err)
	}
	if err := json.Unmarshal(encoded, dest); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// path renders the request path with encoded filters and windowing.
func (q *TableQuery) path() string {
	values := url.Values{}
	query.Encode(values, q.filters...)

	if len(q.embeds) > 0 {
		values.Set("select", "*,"+strings.Join(q.embeds, ","))
	}
	if q.orderBy != "" {
		direction := "asc"
		if q.descending {
			direction = "desc"
		}
		values.Set("order", q.orderBy+"."+direction)
	}
	if q.limit > 0 {
		values.Set("limit", strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		values.Set("offset", strconv.Itoa(q.offset))
	}

	path := tablesBasePath + "/" + url.PathEscape(q.table)
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return path
}
