package chronodb

import (
	"sync"

	"github.com/kartikbazzad/chronodb/internal/store"
	"github.com/kartikbazzad/chronodb/internal/types"
)

// Collection pairs a collection's metadata with its record store. The
// embedded mutex is the per-collection writer lock: workers acquire it
// before executing a mutation task, so exactly one writer mutates a
// collection at a time while readers scan lock-free through the store's own
// synchronization.
type Collection struct {
	mu    sync.Mutex
	meta  types.CollectionMetadata
	store *store.Collection
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.meta.Name
}

// Temporal reports whether this collection carries the versioning overlay.
// The flag is fixed at creation.
func (c *Collection) Temporal() bool {
	return c.meta.Temporal
}

// Meta returns a copy of the collection metadata with the live document
// count filled in.
func (c *Collection) Meta() types.CollectionMetadata {
	meta := c.meta
	meta.DocCount = uint64(c.store.Count())
	return meta
}
