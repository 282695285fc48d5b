//go:build debug

package chronodb

import (
	"fmt"

	"github.com/kartikbazzad/chronodb/internal/temporal"
	"github.com/kartikbazzad/chronodb/internal/types"
)

// checkSingleWriter verifies that we are in the write path (op is a write
// type). Call only from executeTask after acquiring the collection lock.
// Panics if op is a read (invariant: writes hold the collection lock).
func checkSingleWriter(col *Collection, op types.OperationType) {
	switch op {
	case types.OpInsert, types.OpUpdate, types.OpDelete, types.OpEnsureIndex:
		return
	case types.OpFind, types.OpCount:
		panic(fmt.Sprintf("chronodb invariant: checkSingleWriter called for read op on collection %s", col.Name()))
	default:
		panic(fmt.Sprintf("chronodb invariant: unexpected op type %d on collection %s", op, col.Name()))
	}
}

// checkChainContinuity verifies a successor starts exactly where its closed
// predecessor ended and shares the stable identifier. Panics on a gap,
// overlap or identifier drift.
func checkChainContinuity(closedPrev, successor map[string]interface{}) {
	prevEnd, open, err := temporal.IntervalEnd(closedPrev)
	if err != nil || open {
		panic(fmt.Sprintf("chronodb invariant: predecessor not closed (open=%v err=%v)", open, err))
	}
	succStart, err := temporal.IntervalStart(successor)
	if err != nil {
		panic(fmt.Sprintf("chronodb invariant: successor has no start: %v", err))
	}
	if prevEnd.Compare(succStart) != 0 {
		panic(fmt.Sprintf("chronodb invariant: chain gap or overlap: prev end %v, successor start %v", prevEnd, succStart))
	}
	prevID, _ := temporal.StableID(closedPrev)
	succID, _ := temporal.StableID(successor)
	if prevID != succID {
		panic(fmt.Sprintf("chronodb invariant: stable identifier drift: %v -> %v", prevID, succID))
	}
}

// checkVersionClosed verifies a version persisted by the close step carries
// a concrete interval end.
func checkVersionClosed(version map[string]interface{}) {
	_, open, err := temporal.IntervalEnd(version)
	if err != nil {
		panic(fmt.Sprintf("chronodb invariant: closed version unreadable: %v", err))
	}
	if open {
		panic("chronodb invariant: close persisted a still-open version")
	}
}
