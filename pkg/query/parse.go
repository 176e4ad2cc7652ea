package query

import (
	"fmt"
	"net/url"
	"strings"
)

// Reserved parameter names that are not filters. The provider reads these
// separately for projection, ordering, and pagination.
var reservedParams = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
	"offset": true,
}

// Parse decodes URL query parameters back into predicates. Unknown
// operators, malformed groups, and column names that are not plain
// identifiers are rejected, which is what makes the decoded result safe
// to translate into SQL.
func Parse(values url.Values) ([]Predicate, error) {
	var preds []Predicate
	for key, vals := range values {
		if reservedParams[key] {
			continue
		}
		for _, raw := range vals {
			switch key {
			case "or", "and":
				subs, err := parseGroupBody(raw)
				if err != nil {
					return nil, fmt.Errorf("invalid %s group: %w", key, err)
				}
				if key == "or" {
					preds = append(preds, Or(subs...))
				} else {
					preds = append(preds, And(subs...))
				}
			default:
				p, err := parseCondition(key, raw)
				if err != nil {
					return nil, err
				}
				preds = append(preds, p)
			}
		}
	}
	return preds, nil
}

func parseCondition(column, raw string) (Predicate, error) {
	if !columnPattern.MatchString(column) {
		return Predicate{}, fmt.Errorf("invalid filter column %q", column)
	}

	opStr, value, ok := strings.Cut(raw, ".")
	if !ok {
		return Predicate{}, fmt.Errorf("malformed filter %s=%s", column, raw)
	}

	op := Op(opStr)
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIs:
		return Predicate{kind: kindCond, column: column, op: op, values: []string{unquoteValue(value)}}, nil
	case OpIn:
		if !strings.HasPrefix(value, "(") || !strings.HasSuffix(value, ")") {
			return Predicate{}, fmt.Errorf("malformed in filter %s=%s", column, raw)
		}
		items, err := splitGroup(value[1 : len(value)-1])
		if err != nil {
			return Predicate{}, fmt.Errorf("malformed in filter %s=%s: %w", column, raw, err)
		}
		for i, item := range items {
			items[i] = unquoteValue(item)
		}
		return Predicate{kind: kindCond, column: column, op: OpIn, values: items}, nil
	default:
		return Predicate{}, fmt.Errorf("unsupported filter operator %q", opStr)
	}
}

// parseGroupBody parses the interior of an or=(...) / and=(...) group.
func parseGroupBody(raw string) ([]Predicate, error) {
	if !strings.HasPrefix(raw, "(") || !strings.HasSuffix(raw, ")") {
		return nil, fmt.Errorf("group must be parenthesised: %s", raw)
	}

	parts, err := splitGroup(raw[1 : len(raw)-1])
	if err != nil {
		return nil, err
	}

	preds := make([]Predicate, 0, len(parts))
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "or("):
			subs, err := parseGroupBody(part[2:])
			if err != nil {
				return nil, err
			}
			preds = append(preds, Or(subs...))
		case strings.HasPrefix(part, "and("):
			subs, err := parseGroupBody(part[3:])
			if err != nil {
				return nil, err
			}
			preds = append(preds, And(subs...))
		default:
			// column.op.value
			column, rest, ok := strings.Cut(part, ".")
			if !ok {
				return nil, fmt.Errorf("malformed group member %q", part)
			}
			p, err := parseCondition(column, rest)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
	}
	return preds, nil
}

// splitGroup splits a group body on commas, respecting nested parens and
// quoted values.
func splitGroup(body string) ([]string, error) {
	var parts []string
	var depth int
	var inQuote bool
	start := 0

	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			if inQuote {
				i++ // skip escaped character
			}
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("unbalanced parentheses in %q", body)
				}
			}
		case ',':
			if !inQuote && depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 || inQuote {
		return nil, fmt.Errorf("unterminated group in %q", body)
	}
	if start < len(body) || len(body) == 0 {
		parts = append(parts, body[start:])
	}
	return parts, nil
}

func unquoteValue(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		inner := v[1 : len(v)-1]
		return strings.ReplaceAll(inner, `\"`, `"`)
	}
	return v
}
