package query

import (
	"testing"
)

func ts(t int64, i uint32) map[string]interface{} {
	return map[string]interface{}{"t": float64(t), "i": float64(i)}
}

func TestCompareOpenAware_NullOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b interface{}
		want int
	}{
		{"null equals null", nil, nil, 0},
		{"null greater than concrete", nil, ts(1 << 40, 0), 1},
		{"concrete less than null", ts(1 << 40, 0), nil, -1},
		{"seconds order", ts(100, 0), ts(200, 0), -1},
		{"counter breaks ties", ts(100, 2), ts(100, 1), 1},
		{"equal", ts(100, 1), ts(100, 1), 0},
		{"bare number vs composite", float64(100), ts(100, 0), 0},
	}
	for _, tc := range cases {
		cmp, ok := CompareOpenAware(tc.a, tc.b)
		if !ok {
			t.Errorf("%s: not comparable", tc.name)
			continue
		}
		if cmp != tc.want {
			t.Errorf("%s: cmp = %d, want %d", tc.name, cmp, tc.want)
		}
	}
}

func TestCompareOpenAware_Incomparable(t *testing.T) {
	if _, ok := CompareOpenAware("soon", ts(1, 0)); ok {
		t.Error("String should not be comparable as a timestamp")
	}
}

func TestExpressionMatches(t *testing.T) {
	doc := map[string]interface{}{
		"a":    float64(5),
		"name": "zed",
		"meta": map[string]interface{}{"rank": float64(2)},
		"end":  nil,
	}

	cases := []struct {
		name string
		expr Expression
		want bool
	}{
		{"eq number", Expression{Field: "a", Op: OpEq, Value: 5}, true},
		{"eq mismatch", Expression{Field: "a", Op: OpEq, Value: 6}, false},
		{"eq missing field", Expression{Field: "zzz", Op: OpEq, Value: 1}, false},
		{"eq null on null field", Expression{Field: "end", Op: OpEq, Value: nil}, true},
		{"eq null on missing field", Expression{Field: "zzz", Op: OpEq, Value: nil}, false},
		{"neq", Expression{Field: "a", Op: OpNeq, Value: 6}, true},
		{"neq missing field", Expression{Field: "zzz", Op: OpNeq, Value: 1}, true},
		{"gt", Expression{Field: "a", Op: OpGt, Value: 4}, true},
		{"gte equal", Expression{Field: "a", Op: OpGte, Value: 5}, true},
		{"lt false", Expression{Field: "a", Op: OpLt, Value: 5}, false},
		{"string eq", Expression{Field: "name", Op: OpEq, Value: "zed"}, true},
		{"dotted path", Expression{Field: "meta.rank", Op: OpEq, Value: 2}, true},
		{"tlt on null end", Expression{Field: "end", Op: OpTLt, Value: float64(1 << 40)}, false},
		{"tgt on null end", Expression{Field: "end", Op: OpTGt, Value: float64(1 << 40)}, true},
	}
	for _, tc := range cases {
		if got := tc.expr.matches(doc); got != tc.want {
			t.Errorf("%s: matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPredicate_ConjunctionOfDisjunctions(t *testing.T) {
	doc := map[string]interface{}{"a": float64(5), "end": nil}

	pred := Predicate{}.And(
		Expr("a", OpEq, 5),
		AnyOf(
			Expression{Field: "end", Op: OpEq, Value: nil},
			Expression{Field: "end", Op: OpTGte, Value: float64(100)},
		),
	)
	if !pred.Matches(doc) {
		t.Error("Expected match")
	}

	pred = pred.And(Expr("a", OpGt, 10))
	if pred.Matches(doc) {
		t.Error("Added clause should fail the conjunction")
	}
}

func TestEmptyPredicateMatchesEverything(t *testing.T) {
	if !(Predicate{}).Matches(map[string]interface{}{"x": 1}) {
		t.Error("Empty predicate must match")
	}
	if !(Predicate{}).IsEmpty() {
		t.Error("IsEmpty on empty predicate")
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]interface{}{
		"_id": map[string]interface{}{
			"_id":               "x",
			"transaction_end":   nil,
			"transaction_start": ts(100, 0),
		},
	}
	if v, ok := Lookup(doc, "_id._id"); !ok || v != "x" {
		t.Errorf("Lookup _id._id = %v, %v", v, ok)
	}
	if v, ok := Lookup(doc, "_id.transaction_end"); !ok || v != nil {
		t.Errorf("Null field should be present: %v, %v", v, ok)
	}
	if _, ok := Lookup(doc, "_id.missing"); ok {
		t.Error("Missing leaf should not be found")
	}
	if _, ok := Lookup(doc, "_id._id.deeper"); ok {
		t.Error("Path through a scalar should not be found")
	}
}

func TestSortRows_OpenSortsLast(t *testing.T) {
	rows := []Row{
		{Loc: 0, Doc: map[string]interface{}{"end": nil}},
		{Loc: 1, Doc: map[string]interface{}{"end": ts(200, 0)}},
		{Loc: 2, Doc: map[string]interface{}{"end": ts(100, 0)}},
	}
	SortRows(rows, &OrderSpec{Field: "end", Asc: true})

	want := []uint64{2, 1, 0}
	for i, row := range rows {
		if row.Loc != want[i] {
			t.Fatalf("Ascending order = %v %v %v, want %v", rows[0].Loc, rows[1].Loc, rows[2].Loc, want)
		}
	}

	SortRows(rows, &OrderSpec{Field: "end", Asc: false})
	want = []uint64{0, 1, 2}
	for i, row := range rows {
		if row.Loc != want[i] {
			t.Fatalf("Descending order = %v %v %v, want %v", rows[0].Loc, rows[1].Loc, rows[2].Loc, want)
		}
	}
}

func TestSortRows_MissingFieldSortsFirst(t *testing.T) {
	rows := []Row{
		{Loc: 0, Doc: map[string]interface{}{"n": float64(1)}},
		{Loc: 1, Doc: map[string]interface{}{}},
	}
	SortRows(rows, &OrderSpec{Field: "n", Asc: true})
	if rows[0].Loc != 1 {
		t.Errorf("Missing field should sort first, got loc %d first", rows[0].Loc)
	}
}
