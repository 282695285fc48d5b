package chronodb

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/metrics"
	"github.com/kartikbazzad/chronodb/internal/store"
	"github.com/kartikbazzad/chronodb/internal/temporal"
)

// execUpdate runs the update protocol while the worker holds the collection
// lock.
//
// In a temporal collection every matched current version is closed and a
// successor inserted, per document: match, close, advance, insert. A record
// can physically move when its close outgrows the slot, and the successor
// matches the same current-only predicate the scan uses, so the scan keeps
// a seen-set of visited locations to avoid re-mutating its own output.
//
// The close and the insert are two store writes. If the insert fails after
// the close persisted, the insert is retried with backoff; when retries run
// out the operation reports ErrOrphanedClose with counters showing one more
// close than inserts. The chain has no current version until a later write
// restores one.
func (db *DB) execUpdate(col *Collection, pattern, update map[string]interface{}, multi bool) (MutationResult, error) {
	var res MutationResult
	if update == nil {
		return res, errors.ErrNotJSONObject
	}
	mode, err := classifyUpdate(update)
	if err != nil {
		return res, err
	}

	if !col.Temporal() {
		return db.plainUpdate(col, pattern, update, mode, multi)
	}

	pred, err := temporal.CurrentOnly(pattern)
	if err != nil {
		return res, err
	}

	cur := col.store.NewCursor(pred)
	defer cur.Close()

	seen := make(map[store.Loc]struct{})
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		if _, visited := seen[row.Loc]; visited {
			continue
		}
		seen[row.Loc] = struct{}{}
		res.Matched++

		closed, err := db.codec.Close(row.Doc)
		if err != nil {
			return res, err
		}
		newFields, err := applyUpdate(row.Doc, update, mode)
		if err != nil {
			return res, err
		}
		successor, err := db.codec.Advance(newFields, closed)
		if err != nil {
			return res, err
		}
		checkChainContinuity(closed, successor)

		closedPayload, err := json.Marshal(closed)
		if err != nil {
			return res, errors.ErrInvalidJSON
		}
		successorPayload, err := json.Marshal(successor)
		if err != nil {
			return res, errors.ErrInvalidJSON
		}
		// Size-check the successor before the close persists, so an
		// oversized update fails whole rather than orphaning the close.
		if uint32(len(successorPayload)) > db.cfg.Store.MaxPayloadSize {
			return res, errors.ErrPayloadTooLarge
		}

		newLoc, err := col.store.Update(row.Loc, closedPayload)
		if err != nil {
			return res, err
		}
		checkVersionClosed(closed)
		seen[newLoc] = struct{}{}
		res.Closed++
		metrics.RecordVersionClosed(col.Name())

		succLoc, err := db.insertSuccessor(col, successorPayload)
		if err != nil {
			return res, err
		}
		seen[succLoc] = struct{}{}
		res.Inserted++
		metrics.RecordSuccessorInserted(col.Name())

		if !multi {
			return res, nil
		}
		if err := db.yield(col, res.Matched); err != nil {
			return res, err
		}
	}
}

// insertSuccessor stores the successor version, retrying transient failures
// because the predecessor's close is already durable.
func (db *DB) insertSuccessor(col *Collection, payload []byte) (store.Loc, error) {
	var loc store.Loc
	attempts := 0
	err := db.retry.Retry(func() error {
		attempts++
		if attempts > 1 {
			metrics.RecordOrphanedCloseRetry()
		}
		l, ierr := col.store.Insert(payload)
		if ierr == nil {
			loc = l
		}
		return ierr
	}, db.classifier)
	if err != nil {
		db.logger.Error("Successor insert failed after %d attempts on %s: %v", attempts, col.Name(), err)
		return 0, fmt.Errorf("%w: %v", ErrOrphanedClose, err)
	}
	return loc, nil
}

// execDelete closes matching current versions without inserting successors.
// The closed versions stay readable through the historic selectors; nothing
// is physically removed outside the retention sweep.
func (db *DB) execDelete(col *Collection, pattern map[string]interface{}, justOne bool) (MutationResult, error) {
	var res MutationResult

	if !col.Temporal() {
		return db.plainDelete(col, pattern, justOne)
	}

	pred, err := temporal.CurrentOnly(pattern)
	if err != nil {
		return res, err
	}

	cur := col.store.NewCursor(pred)
	defer cur.Close()

	seen := make(map[store.Loc]struct{})
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		if _, visited := seen[row.Loc]; visited {
			continue
		}
		seen[row.Loc] = struct{}{}
		res.Matched++

		closed, err := db.codec.Close(row.Doc)
		if err != nil {
			return res, err
		}
		payload, err := json.Marshal(closed)
		if err != nil {
			return res, errors.ErrInvalidJSON
		}
		newLoc, err := col.store.Update(row.Loc, payload)
		if err != nil {
			return res, err
		}
		checkVersionClosed(closed)
		seen[newLoc] = struct{}{}
		res.Closed++
		metrics.RecordVersionClosed(col.Name())

		if justOne {
			return res, nil
		}
		if err := db.yield(col, res.Matched); err != nil {
			return res, err
		}
	}
}

// plainUpdate is the non-temporal path: records are replaced in place with
// no version bookkeeping.
func (db *DB) plainUpdate(col *Collection, pattern, update map[string]interface{}, mode updateMode, multi bool) (MutationResult, error) {
	var res MutationResult
	pred, err := temporal.CompilePlain(pattern)
	if err != nil {
		return res, err
	}

	cur := col.store.NewCursor(pred)
	defer cur.Close()

	seen := make(map[store.Loc]struct{})
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		if _, visited := seen[row.Loc]; visited {
			continue
		}
		seen[row.Loc] = struct{}{}
		res.Matched++

		newDoc, err := applyUpdate(row.Doc, update, mode)
		if err != nil {
			return res, err
		}
		newDoc[temporal.FieldID] = row.Doc[temporal.FieldID]

		payload, err := json.Marshal(newDoc)
		if err != nil {
			return res, errors.ErrInvalidJSON
		}
		newLoc, err := col.store.Update(row.Loc, payload)
		if err != nil {
			return res, err
		}
		seen[newLoc] = struct{}{}

		if !multi {
			return res, nil
		}
		if err := db.yield(col, res.Matched); err != nil {
			return res, err
		}
	}
}

func (db *DB) plainDelete(col *Collection, pattern map[string]interface{}, justOne bool) (MutationResult, error) {
	var res MutationResult
	pred, err := temporal.CompilePlain(pattern)
	if err != nil {
		return res, err
	}

	cur := col.store.NewCursor(pred)
	defer cur.Close()

	for {
		row, ok, err := cur.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		if err := col.store.Delete(row.Loc); err != nil {
			return res, err
		}
		res.Matched++
		if justOne {
			return res, nil
		}
		if err := db.yield(col, res.Matched); err != nil {
			return res, err
		}
	}
}

// yield suspends a multi-document mutation between documents: the collection
// writer lock is released so queued writers can interleave, then reacquired
// before the scan resumes. The seen-set and the cursor's live re-read of the
// slot table keep the scan correct across whatever ran in the window. A
// shutdown observed at a yield point cancels the scan; the documents already
// processed keep their effect.
func (db *DB) yield(col *Collection, processed int) error {
	every := db.cfg.Engine.YieldEvery
	if every <= 0 {
		every = 1
	}
	if processed%every != 0 {
		return nil
	}

	col.mu.Unlock()
	runtime.Gosched()
	col.mu.Lock()
	metrics.RecordScanYield()

	if db.isClosing() {
		return errors.ErrScanCancelled
	}
	return nil
}
