// Package store implements the record storage primitives the temporal
// overlay is built on: point reads, in-place record updates, inserts,
// predicate-matching cursor scans and index definitions.
//
// Records live in padded slots addressed by a Loc. An update whose payload
// fits the slot's padded capacity stays in place; one that outgrows it
// relocates to a new slot and frees the old one, which the freelist may hand
// out again. Callers that scan while mutating must therefore track the Locs
// they have already visited.
package store

import (
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/query"
)

// Loc identifies a physical record slot within one collection.
type Loc = uint64

type slot struct {
	payload  []byte
	capacity int
	gen      uint64
	live     bool
}

type cacheKey struct {
	loc Loc
	gen uint64
}

// Options configures a collection store.
type Options struct {
	MaxPayloadSize uint32
	PaddingFactor  float64
	CacheSize      int
	SyncOnWrite    bool
}

func DefaultOptions() Options {
	return Options{
		MaxPayloadSize: 16 * 1024 * 1024,
		PaddingFactor:  1.5,
		CacheSize:      4096,
		SyncOnWrite:    false,
	}
}

// Collection is the slot store for one collection.
//
// Thread safety: all methods are safe for concurrent use; the engine
// additionally serializes writers per collection.
type Collection struct {
	mu      sync.RWMutex
	name    string
	opts    Options
	slots   []slot
	free    []Loc
	live    int
	journal *Journal
	cache   *lru.Cache[cacheKey, map[string]interface{}]
	indexes map[string]*indexDef
	logger  *logger.Logger
}

// Open opens (or creates) the collection store backed by the journal at
// path. An empty path keeps the collection ephemeral.
func Open(name, path string, opts Options, log *logger.Logger) (*Collection, error) {
	if opts.PaddingFactor < 1 {
		opts.PaddingFactor = 1
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[cacheKey, map[string]interface{}](cacheSize)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		name:    name,
		opts:    opts,
		cache:   cache,
		indexes: make(map[string]*indexDef),
		logger:  log,
	}

	if path != "" {
		journal, err := OpenJournal(path, opts.SyncOnWrite, log)
		if err != nil {
			return nil, err
		}
		c.journal = journal
		if err := journal.Replay(c.applyEntry); err != nil {
			journal.Close()
			return nil, err
		}
	}
	return c, nil
}

// applyEntry rebuilds slot state from one journal entry during replay.
func (c *Collection) applyEntry(e *Entry) error {
	switch e.Op {
	case entryInsert:
		c.ensureSlot(e.Loc)
		c.placeLocked(e.Loc, e.Payload)
	case entryUpdate:
		c.ensureSlot(e.NewLoc)
		if e.NewLoc != e.Loc {
			c.freeLocked(e.Loc)
		}
		c.placeLocked(e.NewLoc, e.Payload)
	case entryDelete:
		c.freeLocked(e.Loc)
	default:
		return errors.ErrCorruptRecord
	}
	return nil
}

func (c *Collection) ensureSlot(loc Loc) {
	for uint64(len(c.slots)) <= loc {
		c.slots = append(c.slots, slot{})
	}
}

func (c *Collection) placeLocked(loc Loc, payload []byte) {
	s := &c.slots[loc]
	if !s.live {
		c.live++
		// drop loc from the freelist if it was parked there
		for i, f := range c.free {
			if f == loc {
				c.free = append(c.free[:i], c.free[i+1:]...)
				break
			}
		}
	}
	capacity := int(float64(len(payload)) * c.opts.PaddingFactor)
	if capacity < s.capacity {
		capacity = s.capacity
	}
	s.payload = append([]byte(nil), payload...)
	s.capacity = capacity
	s.gen++
	s.live = true
}

func (c *Collection) freeLocked(loc Loc) {
	if loc >= uint64(len(c.slots)) {
		return
	}
	s := &c.slots[loc]
	if !s.live {
		return
	}
	s.live = false
	s.payload = nil
	c.live--
	c.free = append(c.free, loc)
}

// Insert stores a new record and returns its location. Freed slots are
// reused before the slot table grows.
func (c *Collection) Insert(payload []byte) (Loc, error) {
	if uint32(len(payload)) > c.opts.MaxPayloadSize {
		return 0, errors.ErrPayloadTooLarge
	}
	doc, err := decode(payload)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUniqueLocked(doc, nil); err != nil {
		return 0, err
	}

	var loc Loc
	if n := len(c.free); n > 0 {
		loc = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		loc = uint64(len(c.slots))
		c.slots = append(c.slots, slot{})
	}
	c.placeLocked(loc, payload)

	if c.journal != nil {
		if err := c.journal.Append(&Entry{Op: entryInsert, Loc: loc, NewLoc: loc, Payload: payload}); err != nil {
			c.freeLocked(loc)
			return 0, err
		}
	}
	c.indexInsertLocked(doc, loc)
	return loc, nil
}

// Update replaces the record at loc. The update stays in place when the new
// payload fits the slot's padded capacity; otherwise the record relocates to
// a fresh slot and the old one is freed for reuse. The returned location is
// where the record now lives.
func (c *Collection) Update(loc Loc, payload []byte) (Loc, error) {
	if uint32(len(payload)) > c.opts.MaxPayloadSize {
		return 0, errors.ErrPayloadTooLarge
	}
	doc, err := decode(payload)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if loc >= uint64(len(c.slots)) || !c.slots[loc].live {
		return 0, errors.ErrDocNotFound
	}
	oldDoc, err := c.docLocked(loc)
	if err != nil {
		return 0, err
	}
	if err := c.checkUniqueLocked(doc, &loc); err != nil {
		return 0, err
	}

	newLoc := loc
	relocating := len(payload) > c.slots[loc].capacity
	if relocating {
		if n := len(c.free); n > 0 {
			newLoc = c.free[n-1]
			c.free = c.free[:n-1]
		} else {
			newLoc = uint64(len(c.slots))
			c.slots = append(c.slots, slot{})
		}
	}

	// The journal entry goes first: a failed append must leave the slot
	// table exactly as replay would rebuild it.
	if c.journal != nil {
		if err := c.journal.Append(&Entry{Op: entryUpdate, Loc: loc, NewLoc: newLoc, Payload: payload}); err != nil {
			if relocating {
				c.free = append(c.free, newLoc)
			}
			return 0, err
		}
	}

	if relocating {
		c.freeLocked(loc)
	}
	c.placeLocked(newLoc, payload)
	c.indexRemoveLocked(oldDoc, loc)
	c.indexInsertLocked(doc, newLoc)
	return newLoc, nil
}

// Read returns the raw payload at loc.
func (c *Collection) Read(loc Loc) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if loc >= uint64(len(c.slots)) || !c.slots[loc].live {
		return nil, errors.ErrDocNotFound
	}
	return append([]byte(nil), c.slots[loc].payload...), nil
}

// ReadDoc returns the decoded document at loc, served from the decode cache
// when the slot has not changed since it was cached.
func (c *Collection) ReadDoc(loc Loc) (map[string]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docLocked(loc)
}

func (c *Collection) docLocked(loc Loc) (map[string]interface{}, error) {
	if loc >= uint64(len(c.slots)) || !c.slots[loc].live {
		return nil, errors.ErrDocNotFound
	}
	key := cacheKey{loc: loc, gen: c.slots[loc].gen}
	if doc, ok := c.cache.Get(key); ok {
		return doc, nil
	}
	doc, err := decode(c.slots[loc].payload)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, doc)
	return doc, nil
}

// Delete physically removes the record at loc and frees the slot. Used by
// the retention purge path only; logical deletes close versions instead.
func (c *Collection) Delete(loc Loc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if loc >= uint64(len(c.slots)) || !c.slots[loc].live {
		return errors.ErrDocNotFound
	}
	doc, err := c.docLocked(loc)
	if err != nil {
		return err
	}
	if c.journal != nil {
		if err := c.journal.Append(&Entry{Op: entryDelete, Loc: loc}); err != nil {
			return err
		}
	}
	c.freeLocked(loc)
	c.indexRemoveLocked(doc, loc)
	return nil
}

// Count returns the number of live records.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live
}

// Sync flushes the journal.
func (c *Collection) Sync() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Sync()
}

func (c *Collection) Close() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Close()
}

func decode(payload []byte) (map[string]interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, errors.ErrInvalidJSON
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.ErrNotJSONObject
	}
	return doc, nil
}

// FindFirst returns the first live record matching the predicate.
func (c *Collection) FindFirst(pred query.Predicate) (query.Row, bool, error) {
	cur := c.NewCursor(pred)
	defer cur.Close()
	row, ok, err := cur.Next()
	return row, ok, err
}
