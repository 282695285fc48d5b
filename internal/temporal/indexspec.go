package temporal

// IndexKey is one component of an ordered index key spec. Order follows the
// usual 1/-1 convention; for the reserved placeholder field "transaction" the
// value selects how the interval-end field is placed (0 = omit).
type IndexKey struct {
	Field string `json:"field"`
	Order int    `json:"order"`
}

// ShapeIndexSpec rewrites an index key spec for a temporal collection so the
// interval-end field is indexable:
//
//   - spec already names the interval-end field: returned unchanged
//   - placeholder "transaction" with order 0: placeholder removed, no
//     temporal field in the index
//   - placeholder with nonzero order: renamed to the interval-end field at
//     that position
//   - no placeholder: interval-end prepended as the first key component
//
// Current-document lookups always filter on the interval end, so it should
// lead for selectivity. A uniqueness constraint on a shaped spec is
// implicitly current-only: every historic version has a distinct concrete
// interval end, so a business key may repeat across history.
func ShapeIndexSpec(spec []IndexKey) []IndexKey {
	for _, key := range spec {
		if key.Field == PathEnd {
			out := make([]IndexKey, len(spec))
			copy(out, spec)
			return out
		}
	}

	for i, key := range spec {
		if key.Field != SelectorField {
			continue
		}
		if key.Order == 0 {
			out := make([]IndexKey, 0, len(spec)-1)
			out = append(out, spec[:i]...)
			out = append(out, spec[i+1:]...)
			return out
		}
		out := make([]IndexKey, len(spec))
		copy(out, spec)
		out[i] = IndexKey{Field: PathEnd, Order: key.Order}
		return out
	}

	out := make([]IndexKey, 0, len(spec)+1)
	out = append(out, IndexKey{Field: PathEnd, Order: 1})
	out = append(out, spec...)
	return out
}
