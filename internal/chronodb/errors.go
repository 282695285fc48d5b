package chronodb

import "github.com/kartikbazzad/chronodb/internal/errors"

// Sentinels used directly in this package, re-exported for callers holding
// an engine handle.
var (
	ErrPoolStopped        = errors.ErrPoolStopped
	ErrQueueFull          = errors.ErrQueueFull
	ErrDBNotOpen          = errors.ErrDBNotOpen
	ErrCollectionNotFound = errors.ErrCollectionNotFound
	ErrCollectionExists   = errors.ErrCollectionExists
	ErrOrphanedClose      = errors.ErrOrphanedClose
	ErrScanCancelled      = errors.ErrScanCancelled
)
