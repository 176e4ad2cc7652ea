package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToSQL renders predicates into a SQL condition with numbered
// placeholders, appending bound values to args. The first placeholder
// uses index len(args)+1, so callers can mix their own parameters in.
// Returns "TRUE" for an empty predicate list.
//
// Column names were validated against columnPattern during construction
// or Parse, so splicing them as identifiers is safe. Callers remain
// responsible for checking columns exist on the target table.
func ToSQL(preds []Predicate, args *[]any) string {
	if len(preds) == 0 {
		return "TRUE"
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.toSQL(args)
	}
	return strings.Join(parts, " AND ")
}

func (p Predicate) toSQL(args *[]any) string {
	switch p.kind {
	case kindOr, kindAnd:
		if len(p.subs) == 0 {
			return "TRUE"
		}
		joiner := " AND "
		if p.kind == kindOr {
			joiner = " OR "
		}
		parts := make([]string, len(p.subs))
		for i, sub := range p.subs {
			parts[i] = sub.toSQL(args)
		}
		return "(" + strings.Join(parts, joiner) + ")"
	default:
		return p.condSQL(args)
	}
}

func (p Predicate) condSQL(args *[]any) string {
	switch p.op {
	case OpIs:
		if p.values[0] == "null" {
			return p.column + " IS NULL"
		}
		return p.column + " IS NOT NULL"
	case OpIn:
		placeholders := make([]string, len(p.values))
		for i, v := range p.values {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(*args))
		}
		return p.column + " IN (" + strings.Join(placeholders, ", ") + ")"
	case OpLike:
		*args = append(*args, p.values[0])
		return fmt.Sprintf("%s LIKE $%d", p.column, len(*args))
	case OpILike:
		*args = append(*args, p.values[0])
		return fmt.Sprintf("%s ILIKE $%d", p.column, len(*args))
	default:
		*args = append(*args, p.values[0])
		return fmt.Sprintf("%s %s $%d", p.column, sqlOperator(p.op), len(*args))
	}
}

func sqlOperator(op Op) string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

// Match evaluates predicates against an in-memory row, mirroring the SQL
// translation. Used by the in-memory table store that backs handler and
// end-to-end tests.
func Match(row map[string]any, preds []Predicate) bool {
	for _, p := range preds {
		if !p.match(row) {
			return false
		}
	}
	return true
}

func (p Predicate) match(row map[string]any) bool {
	switch p.kind {
	case kindAnd:
		for _, sub := range p.subs {
			if !sub.match(row) {
				return false
			}
		}
		return true
	case kindOr:
		for _, sub := range p.subs {
			if sub.match(row) {
				return true
			}
		}
		return len(p.subs) == 0
	default:
		return p.condMatch(row)
	}
}

func (p Predicate) condMatch(row map[string]any) bool {
	value, present := row[p.column]

	switch p.op {
	case OpIs:
		isNull := !present || value == nil
		if p.values[0] == "null" {
			return isNull
		}
		return !isNull
	case OpIn:
		for _, want := range p.values {
			if compareValues(value, want) == 0 {
				return true
			}
		}
		return false
	case OpEq:
		return present && compareValues(value, p.values[0]) == 0
	case OpNeq:
		return !present || compareValues(value, p.values[0]) != 0
	case OpGt:
		return present && compareValues(value, p.values[0]) > 0
	case OpGte:
		return present && compareValues(value, p.values[0]) >= 0
	case OpLt:
		return present && compareValues(value, p.values[0]) < 0
	case OpLte:
		return present && compareValues(value, p.values[0]) <= 0
	case OpLike:
		return present && matchPattern(stringify(value), p.values[0], false)
	case OpILike:
		return present && matchPattern(stringify(value), p.values[0], true)
	default:
		return false
	}
}

// compareValues compares a row value with a wire-format filter value.
// Numbers compare numerically, times chronologically, everything else as
// strings.
func compareValues(rowValue any, filterValue string) int {
	if t, ok := rowValue.(time.Time); ok {
		if ft, err := time.Parse(time.RFC3339, filterValue); err == nil {
			switch {
			case t.Before(ft):
				return -1
			case t.After(ft):
				return 1
			default:
				return 0
			}
		}
	}

	rs := stringify(rowValue)
	if rf, err1 := strconv.ParseFloat(rs, 64); err1 == nil {
		if ff, err2 := strconv.ParseFloat(filterValue, 64); err2 == nil {
			switch {
			case rf < ff:
				return -1
			case rf > ff:
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(rs, filterValue)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// matchPattern implements LIKE-style matching where % is the only
// wildcard. Patterns without wildcards require an exact match.
func matchPattern(s, pattern string, caseInsensitive bool) bool {
	if caseInsensitive {
		s = strings.ToLower(s)
		pattern = strings.ToLower(pattern)
	}

	segments := strings.Split(pattern, "%")
	if len(segments) == 1 {
		return s == pattern
	}

	// Anchored prefix.
	if segments[0] != "" {
		if !strings.HasPrefix(s, segments[0]) {
			return false
		}
		s = s[len(segments[0]):]
	}

	// Anchored suffix.
	last := segments[len(segments)-1]
	if last != "" {
		if !strings.HasSuffix(s, last) {
			return false
		}
		s = s[:len(s)-len(last)]
	}

	// Interior segments must appear in order.
	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(s, seg)
		if idx == -1 {
			return false
		}
		s = s[idx+len(seg):]
	}
	return true
}
