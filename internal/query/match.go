package query

import (
	"sort"
	"strings"
)

// timestampParts is implemented by the temporal package's Timestamp so this
// package can order it without a dependency on that package.
type timestampParts interface {
	TimestampParts() (int64, uint32)
}

// Matches evaluates the predicate against a decoded document.
func (p Predicate) Matches(doc map[string]interface{}) bool {
	for _, clause := range p.All {
		if !clause.matches(doc) {
			return false
		}
	}
	return true
}

func (c Clause) matches(doc map[string]interface{}) bool {
	if len(c.Any) == 0 {
		return true
	}
	for _, expr := range c.Any {
		if expr.matches(doc) {
			return true
		}
	}
	return false
}

func (e Expression) matches(doc map[string]interface{}) bool {
	val, ok := Lookup(doc, e.Field)

	switch e.Op {
	case OpEq:
		if !ok {
			return false
		}
		if e.Value == nil || val == nil {
			return e.Value == nil && val == nil
		}
		cmp, comparable := compareValues(val, e.Value)
		return comparable && cmp == 0
	case OpNeq:
		if !ok {
			return true
		}
		if e.Value == nil || val == nil {
			return !(e.Value == nil && val == nil)
		}
		cmp, comparable := compareValues(val, e.Value)
		return !comparable || cmp != 0
	case OpGt, OpGte, OpLt, OpLte:
		if !ok || val == nil || e.Value == nil {
			return false
		}
		cmp, comparable := compareValues(val, e.Value)
		if !comparable {
			return false
		}
		return ordered(e.Op, cmp)
	case OpTGt, OpTGte, OpTLt, OpTLte:
		if !ok {
			return false
		}
		cmp, comparable := CompareOpenAware(val, e.Value)
		if !comparable {
			return false
		}
		return ordered(temporalToPlain(e.Op), cmp)
	default:
		return false
	}
}

func ordered(op Op, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

func temporalToPlain(op Op) Op {
	switch op {
	case OpTGt:
		return OpGt
	case OpTGte:
		return OpGte
	case OpTLt:
		return OpLt
	case OpTLte:
		return OpLte
	default:
		return op
	}
}

// Lookup resolves a dotted field path against a decoded document. The second
// return is false when any path segment is missing or not an object.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var cur interface{} = doc
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// CompareOpenAware orders two timestamp-shaped values where nil is the Open
// sentinel: Open is greater than every concrete timestamp and equal only to
// itself. Returns comparable=false when either value is neither nil nor
// timestamp-shaped.
func CompareOpenAware(a, b interface{}) (cmp int, comparable bool) {
	if a == nil && b == nil {
		return 0, true
	}
	if a == nil {
		return 1, true
	}
	if b == nil {
		return -1, true
	}
	at, ai, ok := timestampValue(a)
	if !ok {
		return 0, false
	}
	bt, bi, ok := timestampValue(b)
	if !ok {
		return 0, false
	}
	if at != bt {
		if at < bt {
			return -1, true
		}
		return 1, true
	}
	if ai != bi {
		if ai < bi {
			return -1, true
		}
		return 1, true
	}
	return 0, true
}

// timestampValue normalizes a wire-level timestamp: either the composite
// {"t": seconds, "i": counter} object, a Timestamp value, or a bare number
// taken as whole seconds.
func timestampValue(v interface{}) (int64, uint32, bool) {
	if ts, ok := v.(timestampParts); ok {
		t, i := ts.TimestampParts()
		return t, i, true
	}
	if m, ok := v.(map[string]interface{}); ok {
		t, tok := numeric(m["t"])
		i, iok := numeric(m["i"])
		if !tok || !iok {
			return 0, 0, false
		}
		return int64(t), uint32(i), true
	}
	if n, ok := numeric(v); ok {
		return int64(n), 0, true
	}
	return 0, 0, false
}

func numeric(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func compareValues(a, b interface{}) (int, bool) {
	fa, oka := numeric(a)
	fb, okb := numeric(b)
	if oka && okb {
		if fa < fb {
			return -1, true
		}
		if fa > fb {
			return 1, true
		}
		return 0, true
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		return strings.Compare(sa, sb), true
	}
	ba, oka := a.(bool)
	bb, okb := b.(bool)
	if oka && okb {
		if ba == bb {
			return 0, true
		}
		if !ba {
			return -1, true
		}
		return 1, true
	}
	// Timestamp-shaped values are ordered with the open-aware rule.
	if _, _, ok := timestampValue(a); ok {
		if _, _, ok := timestampValue(b); ok {
			return mustCompareOpenAware(a, b)
		}
	}
	return 0, false
}

func mustCompareOpenAware(a, b interface{}) (int, bool) {
	cmp, ok := CompareOpenAware(a, b)
	return cmp, ok
}

// SortRows orders rows in place by the order spec. Values that are
// timestamp-shaped (including the Open sentinel) use the open-aware ordering,
// so an open version sorts after every closed one in ascending order.
func SortRows(rows []Row, order *OrderSpec) {
	if order == nil || order.Field == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, iok := Lookup(rows[i].Doc, order.Field)
		vj, jok := Lookup(rows[j].Doc, order.Field)
		if !iok || !jok {
			return jok && !iok // missing sorts first
		}
		cmp, comparable := sortCompare(vi, vj)
		if !comparable {
			return false
		}
		if order.Asc {
			return cmp < 0
		}
		return cmp > 0
	})
}

func sortCompare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return CompareOpenAware(a, b)
	}
	return compareValues(a, b)
}
