package store

import (
	"errors"
	"time"

	cerrors "github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/query"
)

// ErrCursorTimeout is returned by Next once a cursor's deadline has passed.
var ErrCursorTimeout = errors.New("cursor timed out")

// Cursor scans live slots in slot order, yielding records that match the
// predicate. The scan is not isolated from concurrent writes: a record that
// relocates, or a new record landing in a freed slot ahead of the cursor,
// will be observed. Mutating scans must keep a seen-set of Locs.
type Cursor struct {
	c        *Collection
	pred     query.Predicate
	pos      Loc
	deadline time.Time
	closed   bool
}

// NewCursor opens a scan cursor with the given predicate. The cursor has no
// deadline by default; bookkeeping cursors opened internally rely on that
// no-timeout mode.
func (c *Collection) NewCursor(pred query.Predicate) *Cursor {
	return &Cursor{c: c, pred: pred}
}

// WithDeadline sets an absolute deadline after which Next fails.
func (cur *Cursor) WithDeadline(t time.Time) *Cursor {
	cur.deadline = t
	return cur
}

// Next returns the next matching record. ok is false when the scan is
// exhausted.
func (cur *Cursor) Next() (query.Row, bool, error) {
	if cur.closed {
		return query.Row{}, false, nil
	}
	if !cur.deadline.IsZero() && time.Now().After(cur.deadline) {
		return query.Row{}, false, ErrCursorTimeout
	}

	for {
		row, ok, err := cur.c.nextMatch(cur.pos, cur.pred)
		if err != nil {
			return query.Row{}, false, err
		}
		if !ok {
			return query.Row{}, false, nil
		}
		cur.pos = row.Loc + 1
		return row, true, nil
	}
}

// Skip advances the cursor past loc without yielding it.
func (cur *Cursor) Skip(loc Loc) {
	if loc >= cur.pos {
		cur.pos = loc + 1
	}
}

func (cur *Cursor) Close() {
	cur.closed = true
}

// nextMatch finds the first live matching slot at or after pos. The slot
// table length is re-read on every call, so records appended mid-scan are
// visible to the cursor.
func (c *Collection) nextMatch(pos Loc, pred query.Predicate) (query.Row, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for ; pos < uint64(len(c.slots)); pos++ {
		if !c.slots[pos].live {
			continue
		}
		doc, err := c.docLocked(pos)
		if err != nil {
			if errors.Is(err, cerrors.ErrDocNotFound) {
				continue
			}
			return query.Row{}, false, err
		}
		if pred.Matches(doc) {
			return query.Row{Loc: pos, Doc: doc}, true, nil
		}
	}
	return query.Row{}, false, nil
}
