package temporal

import (
	"time"

	"github.com/kartikbazzad/chronodb/internal/query"
)

// PurgeQuery builds the retention predicate: field older than the cutoff in
// either stored representation. The interval end may be a plain-clock value
// (unix seconds) or a logical timestamp depending on age and migration
// state, so the predicate is a disjunction over both.
//
// Open never satisfies "less than" any concrete cutoff under the open-aware
// comparator, so current versions are structurally excluded; no extra guard
// is needed. Purge always targets the interval-end field, never the start.
func PurgeQuery(field string, expireAfterSeconds int64, now time.Time) query.Predicate {
	cutoff := now.Unix() - expireAfterSeconds
	return query.Predicate{}.And(query.AnyOf(
		query.Expression{Field: field, Op: query.OpLt, Value: cutoff},
		query.Expression{Field: field, Op: query.OpTLt, Value: Timestamp{T: cutoff}},
	))
}
