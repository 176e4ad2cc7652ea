package utils

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultListLimit is the number of rows returned when no limit is given
	DefaultListLimit = 20
	// MaxListLimit caps the limit to prevent resource exhaustion
	MaxListLimit = 100
)

// ListParams holds windowing and ordering parameters for table list
// endpoints, extracted from the reserved query parameters "limit",
// "offset" and "order". Everything else on the query string is treated
// as a filter condition.
type ListParams struct {
	Limit      int
	Offset     int
	OrderBy    string // Validated column name, empty when no order requested
	Descending bool
}

// ParseListParams extracts and validates list parameters from an HTTP
// request. Out-of-range values are clamped rather than rejected.
//
// The "order" parameter follows the "column.asc" / "column.desc" form;
// a bare column name means ascending. Column validity is checked by the
// caller against its table schema.
//
// Example:
//
//	params := utils.ParseListParams(r)
//	rows, err := store.List(ctx, table, filters, params)
func ParseListParams(r *http.Request) ListParams {
	params := ListParams{
		Limit:  parseIntParam(r, "limit", DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	if params.Limit < 1 {
		params.Limit = 1
	}
	if params.Limit > MaxListLimit {
		params.Limit = MaxListLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	if order := r.URL.Query().Get("order"); order != "" {
		column, dir, found := strings.Cut(order, ".")
		params.OrderBy = column
		params.Descending = found && dir == "desc"
	}

	return params
}

// parseIntParam safely parses an integer query parameter with a default fallback.
func parseIntParam(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
