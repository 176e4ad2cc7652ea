// Package query provides a typed filter language for BikeForU table access.
// Filters are predicate values composed with And/Or combinators, encoded as
// URL query parameters on the wire and decoded back by the provider.
// Because values travel as typed arguments — never interpolated into filter
// strings — the format is injection-safe on both ends, and the same package
// gives the server its SQL translation and the in-memory test store its
// row matcher.
//
// Wire format (PostgREST style):
//
//	?status=eq.pending&receiver_id=eq.42
//	?or=(sender_id.eq.42,receiver_id.eq.42)
//	?or=(and(sender_id.eq.a,receiver_id.eq.b),and(sender_id.eq.b,receiver_id.eq.a))
package query

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Op is a comparison operator.
type Op string

// Supported operators. The set matches what the dashboard pages need:
// equality, inequality, range, pattern match, and null checks.
const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpLike  Op = "like"
	OpILike Op = "ilike"
	OpIs    Op = "is"
	OpIn    Op = "in"
)

type kind int

const (
	kindCond kind = iota
	kindAnd
	kindOr
)

// columnPattern restricts filterable column names to plain identifiers.
// Rejecting anything else at parse time is what keeps the decoded filters
// safe to splice into SQL as identifiers.
var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Predicate is a single comparison or a combinator over sub-predicates.
// Build them with Eq, Neq, Or, etc.; the zero value is not meaningful.
type Predicate struct {
	kind   kind
	column string
	op     Op
	values []string
	subs   []Predicate
}

func cond(column string, op Op, value any) Predicate {
	return Predicate{kind: kindCond, column: column, op: op, values: []string{formatValue(value)}}
}

// Columns returns every column the predicate references, including those in
// nested combinators. Callers use it to validate filters against a table
// schema before execution.
func (p Predicate) Columns() []string {
	if p.kind == kindCond {
		return []string{p.column}
	}
	var columns []string
	for _, sub := range p.subs {
		columns = append(columns, sub.Columns()...)
	}
	return columns
}

// Eq matches rows whose column equals value.
func Eq(column string, value any) Predicate { return cond(column, OpEq, value) }

// Neq matches rows whose column differs from value.
func Neq(column string, value any) Predicate { return cond(column, OpNeq, value) }

// Gt matches rows whose column is greater than value.
func Gt(column string, value any) Predicate { return cond(column, OpGt, value) }

// Gte matches rows whose column is greater than or equal to value.
func Gte(column string, value any) Predicate { return cond(column, OpGte, value) }

// Lt matches rows whose column is less than value.
func Lt(column string, value any) Predicate { return cond(column, OpLt, value) }

// Lte matches rows whose column is less than or equal to value.
func Lte(column string, value any) Predicate { return cond(column, OpLte, value) }

// Like matches rows whose column matches a case-sensitive pattern.
// Use % as the wildcard: Like("username", "%rider%").
func Like(column, pattern string) Predicate { return cond(column, OpLike, pattern) }

// ILike is Like with case-insensitive matching.
func ILike(column, pattern string) Predicate { return cond(column, OpILike, pattern) }

// IsNull matches rows whose column is null.
func IsNull(column string) Predicate { return cond(column, OpIs, "null") }

// In matches rows whose column equals any of the given values.
func In(column string, values ...any) Predicate {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = formatValue(v)
	}
	return Predicate{kind: kindCond, column: column, op: OpIn, values: formatted}
}

// And matches rows satisfying every sub-predicate. Top-level predicates
// are implicitly AND-ed; And exists for nesting inside Or.
func And(preds ...Predicate) Predicate { return Predicate{kind: kindAnd, subs: preds} }

// Or matches rows satisfying at least one sub-predicate.
func Or(preds ...Predicate) Predicate { return Predicate{kind: kindOr, subs: preds} }

// formatValue renders a Go value into its wire representation.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Encode appends the predicates to a url.Values. Top-level conditions
// become column=op.value parameters; combinators become or=(...) /
// and=(...) groups.
func Encode(values url.Values, preds ...Predicate) {
	for _, p := range preds {
		switch p.kind {
		case kindCond:
			values.Add(p.column, string(p.op)+"."+encodeGroupValue(p.joinedValue()))
		case kindOr:
			values.Add("or", "("+encodeGroupBody(p.subs)+")")
		case kindAnd:
			values.Add("and", "("+encodeGroupBody(p.subs)+")")
		}
	}
}

// Values is a convenience wrapper returning a fresh url.Values.
func Values(preds ...Predicate) url.Values {
	v := url.Values{}
	Encode(v, preds...)
	return v
}

func (p Predicate) joinedValue() string {
	if p.op == OpIn {
		return "(" + strings.Join(p.values, ",") + ")"
	}
	return p.values[0]
}

func encodeGroupBody(preds []Predicate) string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		switch p.kind {
		case kindCond:
			parts = append(parts, p.column+"."+string(p.op)+"."+encodeGroupValue(p.joinedValue()))
		case kindOr:
			parts = append(parts, "or("+encodeGroupBody(p.subs)+")")
		case kindAnd:
			parts = append(parts, "and("+encodeGroupBody(p.subs)+")")
		}
	}
	return strings.Join(parts, ",")
}

// encodeGroupValue quotes values containing structural characters so
// group bodies stay unambiguous to the parser.
func encodeGroupValue(v string) string {
	if strings.ContainsAny(v, `,()." `) && !strings.HasPrefix(v, "(") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
