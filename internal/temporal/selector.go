package temporal

import (
	"fmt"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/query"
)

// SelectorKind is the closed set of temporal query modes.
type SelectorKind int

const (
	SelectorDefault SelectorKind = iota // no selector: current versions only
	SelectorCurrent                     // {current: true}: same as default
	SelectorAll                         // {all: true}: every chain version
	SelectorAt                          // {at: T}: versions valid at T
	SelectorInRange                     // {inrange: [T1, T2]}: intervals intersecting [T1, T2]
)

// Selector is the parsed temporal selector. ParseSelector is the only place
// allowed to fail with a validation error.
type Selector struct {
	Kind SelectorKind
	At   Timestamp
	From *Timestamp // nil = unbounded
	To   *Timestamp // nil = unbounded
}

// ParseSelector reads the value of the reserved selector field. A nil raw
// value (selector absent) means current-only.
func ParseSelector(raw interface{}) (Selector, error) {
	if raw == nil {
		return Selector{Kind: SelectorDefault}, nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok || len(m) != 1 {
		return Selector{}, fmt.Errorf("%w: selector must be an object with one key", errors.ErrUnknownSelector)
	}

	for key, val := range m {
		switch key {
		case "current":
			if val != true {
				return Selector{}, fmt.Errorf("%w: current must be true", errors.ErrUnknownSelector)
			}
			return Selector{Kind: SelectorCurrent}, nil
		case "all":
			if val != true {
				return Selector{}, fmt.Errorf("%w: all must be true", errors.ErrUnknownSelector)
			}
			return Selector{Kind: SelectorAll}, nil
		case "at":
			ts, ok := ParseTimestamp(val)
			if !ok {
				return Selector{}, fmt.Errorf("%w: at requires a timestamp", errors.ErrUnknownSelector)
			}
			return Selector{Kind: SelectorAt, At: ts}, nil
		case "inrange":
			return parseRange(val)
		default:
			return Selector{}, fmt.Errorf("%w: %q", errors.ErrUnknownSelector, key)
		}
	}
	return Selector{}, errors.ErrUnknownSelector
}

func parseRange(val interface{}) (Selector, error) {
	arr, ok := val.([]interface{})
	if !ok || len(arr) != 2 {
		return Selector{}, errors.ErrBadRange
	}

	sel := Selector{Kind: SelectorInRange}
	if arr[0] != nil {
		ts, ok := ParseTimestamp(arr[0])
		if !ok {
			return Selector{}, errors.ErrBadRange
		}
		sel.From = &ts
	}
	if arr[1] != nil {
		ts, ok := ParseTimestamp(arr[1])
		if !ok {
			return Selector{}, errors.ErrBadRange
		}
		sel.To = &ts
	}
	// At least one end must be concrete. The source's revisions disagree
	// here; the selector table is authoritative.
	if sel.From == nil && sel.To == nil {
		return Selector{}, errors.ErrBadRange
	}
	return sel, nil
}

// BoundaryClauses translates a parsed selector into boundary clauses over the
// stored interval fields, expressed with the open-aware comparators so open
// versions are included without special-casing.
func BoundaryClauses(sel Selector) []query.Clause {
	switch sel.Kind {
	case SelectorAll:
		return nil
	case SelectorAt:
		return []query.Clause{
			query.Expr(PathStart, query.OpTLte, sel.At),
			query.AnyOf(
				query.Expression{Field: PathEnd, Op: query.OpEq, Value: nil},
				query.Expression{Field: PathEnd, Op: query.OpTGte, Value: sel.At},
			),
		}
	case SelectorInRange:
		var clauses []query.Clause
		if sel.From != nil {
			clauses = append(clauses, query.AnyOf(
				query.Expression{Field: PathEnd, Op: query.OpEq, Value: nil},
				query.Expression{Field: PathEnd, Op: query.OpTGte, Value: *sel.From},
			))
		}
		if sel.To != nil {
			clauses = append(clauses, query.Expr(PathStart, query.OpTLte, *sel.To))
		}
		return clauses
	default:
		// Default and Current: open versions only.
		return []query.Clause{query.Expr(PathEnd, query.OpEq, nil)}
	}
}

// Compile rewrites a find filter for a temporal collection: the reserved
// selector field is removed and replaced by the equivalent boundary clauses,
// ANDed with the caller's other criteria.
func Compile(filter map[string]interface{}) (query.Predicate, error) {
	sel, err := ParseSelector(filter[SelectorField])
	if err != nil {
		return query.Predicate{}, err
	}

	pred, err := compileCriteria(filter, true)
	if err != nil {
		return query.Predicate{}, err
	}
	return pred.And(BoundaryClauses(sel)...), nil
}

// CompilePlain compiles a filter for a non-temporal collection. The
// reserved selector field has no meaning there and is rejected.
func CompilePlain(filter map[string]interface{}) (query.Predicate, error) {
	if _, ok := filter[SelectorField]; ok {
		return query.Predicate{}, fmt.Errorf("%w: collection is not temporal", errors.ErrUnknownSelector)
	}
	return compileCriteria(filter, false)
}

// CurrentOnly rewrites an update/delete pattern: the implicit current-only
// criterion is prepended, and patterns that target historic versions
// directly are rejected before matching begins.
func CurrentOnly(pattern map[string]interface{}) (query.Predicate, error) {
	if _, ok := pattern[SelectorField]; ok {
		return query.Predicate{}, errors.ErrHistoricMutation
	}
	if end, ok := pattern[PathEnd]; ok && end != nil {
		return query.Predicate{}, errors.ErrHistoricMutation
	}

	pred := query.Predicate{}.And(query.Expr(PathEnd, query.OpEq, nil))
	rest, err := compileCriteria(pattern, false)
	if err != nil {
		return query.Predicate{}, err
	}
	return pred.And(rest.All...), nil
}

// compileCriteria turns the caller's plain criteria into predicate clauses.
// A field value that is an all-$-keys object is treated as operator
// comparisons; anything else is an equality match.
func compileCriteria(filter map[string]interface{}, stripSelector bool) (query.Predicate, error) {
	pred := query.Predicate{}
	for field, value := range filter {
		if stripSelector && field == SelectorField {
			continue
		}
		if ops, ok := operatorObject(value); ok {
			for opKey, opVal := range ops {
				op, err := parseOperator(opKey)
				if err != nil {
					return query.Predicate{}, err
				}
				pred = pred.And(query.Expr(field, op, opVal))
			}
			continue
		}
		pred = pred.And(query.Expr(field, query.OpEq, value))
	}
	return pred, nil
}

func operatorObject(value interface{}) (map[string]interface{}, bool) {
	m, ok := value.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

func parseOperator(key string) (query.Op, error) {
	switch key {
	case "$gt":
		return query.OpGt, nil
	case "$gte":
		return query.OpGte, nil
	case "$lt":
		return query.OpLt, nil
	case "$lte":
		return query.OpLte, nil
	case "$ne":
		return query.OpNeq, nil
	case "$tgt":
		return query.OpTGt, nil
	case "$tgte":
		return query.OpTGte, nil
	case "$tlt":
		return query.OpTLt, nil
	case "$tlte":
		return query.OpTLte, nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", errors.ErrInvalidJSON, key)
	}
}

// CompileOrder rewrites a sort directive: sorting on the reserved selector
// field becomes sorting on the interval end, preserving direction, which
// orders results chronologically.
func CompileOrder(sort map[string]interface{}) (*query.OrderSpec, error) {
	if len(sort) == 0 {
		return nil, nil
	}
	if len(sort) != 1 {
		return nil, fmt.Errorf("%w: sort must name a single field", errors.ErrInvalidJSON)
	}
	for field, dir := range sort {
		n, ok := asInt64(dir)
		if !ok || (n != 1 && n != -1) {
			return nil, fmt.Errorf("%w: sort direction must be 1 or -1", errors.ErrInvalidJSON)
		}
		if field == SelectorField {
			field = PathEnd
		}
		return &query.OrderSpec{Field: field, Asc: n > 0}, nil
	}
	return nil, nil
}
