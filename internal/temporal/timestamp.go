// Package temporal implements the transaction-time overlay: timestamps with
// the open sentinel, the version codec (wrap/close/advance), the temporal
// selector compiler, index shaping and the retention purge predicate.
//
// The overlay holds no persistent state of its own. It computes the next
// state of a version chain and hands it to the store's primitives.
package temporal

// Reserved field names. These are part of the on-disk and query-language
// contract and must stay stable.
const (
	FieldID    = "_id"
	FieldStart = "transaction_start"
	FieldEnd   = "transaction_end"

	// Dotted paths into the composite identifier.
	PathID    = "_id._id"
	PathStart = "_id.transaction_start"
	PathEnd   = "_id.transaction_end"

	// SelectorField is the reserved query field carrying the temporal
	// selector, and the index-spec placeholder for the interval-end position.
	SelectorField = "transaction"
)

// Timestamp is a globally comparable instant: wall-clock seconds plus a
// tie-break counter. The Open sentinel ("valid through now and onward") is
// not a Timestamp value; it is represented as a JSON null in documents and as
// a nil interface value in decoded form.
type Timestamp struct {
	T int64  `json:"t"`
	I uint32 `json:"i"`
}

// TimestampParts exposes the ordering components; the query package orders
// Timestamp values through this method without importing this package.
func (ts Timestamp) TimestampParts() (int64, uint32) {
	return ts.T, ts.I
}

// Compare orders two concrete timestamps.
func (ts Timestamp) Compare(other Timestamp) int {
	if ts.T != other.T {
		if ts.T < other.T {
			return -1
		}
		return 1
	}
	if ts.I != other.I {
		if ts.I < other.I {
			return -1
		}
		return 1
	}
	return 0
}

func (ts Timestamp) IsZero() bool {
	return ts.T == 0 && ts.I == 0
}

// Value returns the wire form stored inside documents.
func (ts Timestamp) Value() map[string]interface{} {
	return map[string]interface{}{"t": ts.T, "i": ts.I}
}

// ParseTimestamp reads a wire-level value into a Timestamp. It accepts the
// composite {"t","i"} object, a Timestamp, or a bare number taken as whole
// seconds. A nil value is the Open sentinel, not a timestamp.
func ParseTimestamp(v interface{}) (Timestamp, bool) {
	switch x := v.(type) {
	case Timestamp:
		return x, true
	case map[string]interface{}:
		t, tok := asInt64(x["t"])
		i, iok := asInt64(x["i"])
		if !tok || !iok {
			return Timestamp{}, false
		}
		return Timestamp{T: t, I: uint32(i)}, true
	default:
		if n, ok := asInt64(v); ok {
			return Timestamp{T: n}, true
		}
		return Timestamp{}, false
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case float32:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}
