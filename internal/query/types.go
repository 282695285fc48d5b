// Package query implements the boundary predicate representation handed to
// the store's cursor, including the open-aware temporal comparators.
package query

// Op is a comparison operator. The four $t-prefixed operators mirror the
// plain ordering operators but treat a null interval end (an open version) as
// greater than every concrete timestamp. Their names are part of the query
// language contract and must stay stable.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"

	OpTGt  Op = "$tgt"
	OpTGte Op = "$tgte"
	OpTLt  Op = "$tlt"
	OpTLte Op = "$tlte"
)

// Expression is a single comparison over a dotted field path.
type Expression struct {
	Field string
	Op    Op
	Value interface{}
}

// Clause is a disjunction of expressions: it matches when any expression
// matches.
type Clause struct {
	Any []Expression
}

// Predicate is a conjunction of clauses: it matches when every clause
// matches. The empty predicate matches everything.
type Predicate struct {
	All []Clause
}

// Expr builds a single-expression clause.
func Expr(field string, op Op, value interface{}) Clause {
	return Clause{Any: []Expression{{Field: field, Op: op, Value: value}}}
}

// AnyOf builds a disjunctive clause from expressions.
func AnyOf(exprs ...Expression) Clause {
	return Clause{Any: exprs}
}

// And appends clauses to the predicate, returning the extended predicate.
func (p Predicate) And(clauses ...Clause) Predicate {
	out := Predicate{All: make([]Clause, 0, len(p.All)+len(clauses))}
	out.All = append(out.All, p.All...)
	out.All = append(out.All, clauses...)
	return out
}

// IsEmpty reports whether the predicate constrains nothing.
func (p Predicate) IsEmpty() bool {
	return len(p.All) == 0
}

// OrderSpec specifies sort order over a dotted field path.
type OrderSpec struct {
	Field string
	Asc   bool
}

// Row is a single scan result: the record's location plus its decoded
// document.
type Row struct {
	Loc uint64
	Doc map[string]interface{}
}
