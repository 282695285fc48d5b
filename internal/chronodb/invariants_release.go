//go:build !debug

package chronodb

import (
	"github.com/kartikbazzad/chronodb/internal/types"
)

func checkSingleWriter(col *Collection, op types.OperationType) {
	_ = col
	_ = op
}

func checkChainContinuity(closedPrev, successor map[string]interface{}) {
	_ = closedPrev
	_ = successor
}

func checkVersionClosed(version map[string]interface{}) {
	_ = version
}
