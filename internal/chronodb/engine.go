package chronodb

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/chronodb/internal/catalog"
	"github.com/kartikbazzad/chronodb/internal/config"
	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/metrics"
	"github.com/kartikbazzad/chronodb/internal/query"
	"github.com/kartikbazzad/chronodb/internal/store"
	"github.com/kartikbazzad/chronodb/internal/temporal"
	"github.com/kartikbazzad/chronodb/internal/types"
)

// DB is the engine: the collection registry, the catalog, the temporal
// codec and the write-path worker pool.
//
// Thread safety: all public methods are safe for concurrent use. Writes are
// serialized per collection by the worker pool; reads scan lock-free.
type DB struct {
	mu          sync.RWMutex
	cfg         *config.Config
	logger      *logger.Logger
	catalog     *catalog.Catalog
	clock       temporal.Clock
	codec       *temporal.Codec
	collections map[string]*Collection
	pool        WorkerPool
	retention   *RetentionService
	classifier  *errors.Classifier
	retry       *errors.RetryController
	closed      bool
	startTime   time.Time
	requests    atomic.Uint64
}

// Open opens the engine with the system clock.
func Open(cfg *config.Config, log *logger.Logger) (*DB, error) {
	return OpenWithClock(cfg, temporal.NewSystemClock(), log)
}

// OpenWithClock opens the engine with an injected clock. Tests use it with a
// manual clock to get deterministic interval timestamps.
func OpenWithClock(cfg *config.Config, clock temporal.Clock, log *logger.Logger) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	cat, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog.db"), log.With("catalog"))
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:         cfg,
		logger:      log,
		catalog:     cat,
		clock:       clock,
		codec:       temporal.NewCodec(clock),
		collections: make(map[string]*Collection),
		classifier: errors.NewClassifier(),
		// Successor-insert retries run while the collection writer lock is
		// held, so the backoff is kept tighter than the stock defaults.
		retry:     errors.NewRetryControllerWith(5*time.Millisecond, 250*time.Millisecond, 5),
		startTime: time.Now(),
	}

	if err := db.loadCollections(); err != nil {
		cat.Close()
		return nil, err
	}

	db.pool = NewWorkerPool(db, &cfg.Engine, log.With("pool"))
	db.pool.Start()

	db.retention = NewRetentionService(db, &cfg.Retention, log.With("retention"))
	db.retention.Start()

	log.Info("Engine open: %d collections, data dir %s", len(db.collections), cfg.DataDir)
	return db, nil
}

// loadCollections opens the store for every cataloged collection and
// re-applies its index definitions.
func (db *DB) loadCollections() error {
	metas, err := db.catalog.ListCollections()
	if err != nil {
		return err
	}
	for _, meta := range metas {
		col, err := db.openCollection(meta)
		if err != nil {
			return err
		}
		db.collections[meta.Name] = col
	}
	return nil
}

func (db *DB) openCollection(meta types.CollectionMetadata) (*Collection, error) {
	opts := store.Options{
		MaxPayloadSize: db.cfg.Store.MaxPayloadSize,
		PaddingFactor:  db.cfg.Store.PaddingFactor,
		CacheSize:      db.cfg.Store.CacheSize,
		SyncOnWrite:    db.cfg.Store.SyncOnWrite,
	}
	path := filepath.Join(db.cfg.DataDir, meta.Name+".journal")
	st, err := store.Open(meta.Name, path, opts, db.logger.With("store"))
	if err != nil {
		return nil, err
	}
	col := &Collection{meta: meta, store: st}

	idxs, err := db.catalog.ListIndexes(meta.Name)
	if err != nil {
		st.Close()
		return nil, err
	}
	for _, idx := range idxs {
		var spec []temporal.IndexKey
		if err := json.Unmarshal([]byte(idx.Spec), &spec); err != nil {
			st.Close()
			return nil, fmt.Errorf("%w: index %s.%s", errors.ErrCorruptRecord, meta.Name, idx.Name)
		}
		if err := st.EnsureIndex(idx.Name, specFields(spec), idx.Unique); err != nil {
			st.Close()
			return nil, err
		}
	}
	return col, nil
}

func specFields(spec []temporal.IndexKey) []string {
	fields := make([]string, len(spec))
	for i, key := range spec {
		fields[i] = key.Field
	}
	return fields
}

// Close stops the retention sweep and worker pool and closes every store
// and the catalog.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	db.retention.Stop()
	db.pool.Stop()

	db.mu.Lock()
	defer db.mu.Unlock()
	var firstErr error
	for _, col := range db.collections {
		if err := col.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	db.logger.Info("Engine closed")
	return firstErr
}

// isClosing reports whether Close has begun. Multi-document scans poll it at
// yield points so shutdown does not wait out a long scan.
func (db *DB) isClosing() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.closed
}

func (db *DB) getCollection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrDBNotOpen
	}
	col, ok := db.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

// submit runs a task through the worker pool and waits for its result.
func (db *DB) submit(task *Task) *Result {
	db.requests.Add(1)
	start := time.Now()
	db.pool.Submit(task)
	result := <-task.ResultCh

	status := "ok"
	if result.Error != nil {
		status = "error"
	}
	metrics.RecordOperation(task.Op.String(), status, time.Since(start))
	return result
}

// CreateCollection creates a collection. The temporal flag is fixed for the
// collection's lifetime: re-creating an existing collection with a
// different flag fails with ErrTemporalFlagImmutable, and with the same
// flag fails with ErrCollectionExists.
func (db *DB) CreateCollection(name string, temporalFlag bool) error {
	task := NewTask(types.OpCreateCollection, name)
	task.Temporal = temporalFlag
	return db.submit(task).Error
}

// DropCollection removes a collection, its store and its cataloged indexes.
func (db *DB) DropCollection(name string) error {
	task := NewTask(types.OpDropCollection, name)
	return db.submit(task).Error
}

// Insert stores a document. In a temporal collection the document is
// wrapped into its first open version; the stored version is returned.
func (db *DB) Insert(collection string, doc map[string]interface{}) (map[string]interface{}, error) {
	task := NewTask(types.OpInsert, collection)
	task.Doc = doc
	result := db.submit(task)
	return result.Doc, result.Error
}

// Update mutates current versions matching pattern. multi=false stops after
// the first match. See mutate.go for the close+insert protocol.
func (db *DB) Update(collection string, pattern, update map[string]interface{}, multi bool) (MutationResult, error) {
	task := NewTask(types.OpUpdate, collection)
	task.Pattern = pattern
	task.Update = update
	task.Multi = multi
	result := db.submit(task)
	return result.Mutation, result.Error
}

// Delete closes current versions matching pattern without inserting
// successors. justOne stops after the first match.
func (db *DB) Delete(collection string, pattern map[string]interface{}, justOne bool) (MutationResult, error) {
	task := NewTask(types.OpDelete, collection)
	task.Pattern = pattern
	task.JustOne = justOne
	result := db.submit(task)
	return result.Mutation, result.Error
}

// EnsureIndex defines an index. On a temporal collection the key spec is
// shaped first so the interval-end field is indexable; the shaped spec is
// what the catalog persists. expireAfter > 0 marks the index for the
// retention sweep.
func (db *DB) EnsureIndex(collection, name string, spec []temporal.IndexKey, unique bool, expireAfter int64) error {
	task := NewTask(types.OpEnsureIndex, collection)
	task.IndexName = name
	task.IndexSpec = spec
	task.Unique = unique
	task.ExpireAfter = expireAfter
	return db.submit(task).Error
}

// Find evaluates a filter against a collection. On a temporal collection
// the reserved selector field picks the time view; absent selector means
// current versions only. sort names at most one field; limit <= 0 means no
// limit, and positive limits are clamped to the configured maximum.
func (db *DB) Find(collection string, filter, sort map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	db.requests.Add(1)
	start := time.Now()
	docs, err := db.find(collection, filter, sort, limit)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordOperation(types.OpFind.String(), status, time.Since(start))
	return docs, err
}

func (db *DB) find(collection string, filter, sort map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	col, err := db.getCollection(collection)
	if err != nil {
		return nil, err
	}
	pred, err := db.compileFilter(col, filter)
	if err != nil {
		return nil, err
	}
	order, err := temporal.CompileOrder(sort)
	if err != nil {
		return nil, err
	}

	if max := db.cfg.Query.MaxResultLimit; max > 0 && (limit <= 0 || limit > max) {
		limit = max
	}

	cur := col.store.NewCursor(pred)
	if db.cfg.Query.Timeout > 0 {
		cur.WithDeadline(time.Now().Add(db.cfg.Query.Timeout))
	}
	defer cur.Close()

	var rows []query.Row
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
		// Unsorted scans can stop at the limit; sorted ones need the full
		// result set before cutting.
		if order == nil && limit > 0 && len(rows) >= limit {
			break
		}
	}

	query.SortRows(rows, order)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	docs := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		docs[i] = row.Doc
	}
	return docs, nil
}

// Count returns the number of documents matching filter, honoring the same
// selector semantics as Find.
func (db *DB) Count(collection string, filter map[string]interface{}) (int, error) {
	db.requests.Add(1)
	col, err := db.getCollection(collection)
	if err != nil {
		return 0, err
	}
	pred, err := db.compileFilter(col, filter)
	if err != nil {
		return 0, err
	}

	cur := col.store.NewCursor(pred)
	defer cur.Close()

	n := 0
	for {
		_, ok, err := cur.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

func (db *DB) compileFilter(col *Collection, filter map[string]interface{}) (query.Predicate, error) {
	if filter == nil {
		filter = map[string]interface{}{}
	}
	if col.Temporal() {
		return temporal.Compile(filter)
	}
	return temporal.CompilePlain(filter)
}

// ListCollections returns metadata for every collection, with live document
// counts.
func (db *DB) ListCollections() []types.CollectionMetadata {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]types.CollectionMetadata, 0, len(db.collections))
	for _, col := range db.collections {
		out = append(out, col.Meta())
	}
	return out
}

// Stats reports engine-level counters.
func (db *DB) Stats() types.Stats {
	db.mu.RLock()
	collections := len(db.collections)
	db.mu.RUnlock()
	return types.Stats{
		Collections:   collections,
		TotalRequests: db.requests.Load(),
		Uptime:        time.Since(db.startTime).Truncate(time.Second).String(),
	}
}

// executeAdmin handles registry-level tasks under the engine lock.
func (db *DB) executeAdmin(task *Task) *Result {
	switch task.Op {
	case types.OpCreateCollection:
		if err := db.createCollection(task.Collection, task.Temporal); err != nil {
			return &Result{Status: types.StatusError, Error: err}
		}
		return &Result{Status: types.StatusOK}
	case types.OpDropCollection:
		if err := db.dropCollection(task.Collection); err != nil {
			return &Result{Status: types.StatusError, Error: err}
		}
		return &Result{Status: types.StatusOK}
	default:
		return &Result{Status: types.StatusInvalid, Error: errors.ErrUnknownOperation}
	}
}

func (db *DB) createCollection(name string, temporalFlag bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBNotOpen
	}
	if existing, ok := db.collections[name]; ok {
		if existing.Temporal() != temporalFlag {
			return errors.ErrTemporalFlagImmutable
		}
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	meta := types.CollectionMetadata{Name: name, Temporal: temporalFlag, CreatedAt: time.Now()}
	if err := db.catalog.CreateCollection(meta); err != nil {
		return err
	}
	col, err := db.openCollection(meta)
	if err != nil {
		return err
	}
	db.collections[name] = col
	db.logger.Info("Collection created: %s (temporal=%t)", name, temporalFlag)
	return nil
}

func (db *DB) dropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBNotOpen
	}
	col, ok := db.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := db.catalog.DropCollection(name); err != nil {
		return err
	}
	col.store.Close()
	delete(db.collections, name)
	db.logger.Info("Collection dropped: %s", name)
	return nil
}

// executeOnCollection runs one write task while the worker holds the
// collection lock.
func (db *DB) executeOnCollection(col *Collection, task *Task) *Result {
	switch task.Op {
	case types.OpInsert:
		doc, err := db.execInsert(col, task.Doc)
		if err != nil {
			return &Result{Status: statusFor(err), Error: err}
		}
		return &Result{Status: types.StatusOK, Doc: doc}
	case types.OpUpdate:
		res, err := db.execUpdate(col, task.Pattern, task.Update, task.Multi)
		if err != nil {
			return &Result{Status: statusFor(err), Mutation: res, Error: err}
		}
		return &Result{Status: types.StatusOK, Mutation: res}
	case types.OpDelete:
		res, err := db.execDelete(col, task.Pattern, task.JustOne)
		if err != nil {
			return &Result{Status: statusFor(err), Mutation: res, Error: err}
		}
		return &Result{Status: types.StatusOK, Mutation: res}
	case types.OpEnsureIndex:
		if err := db.execEnsureIndex(col, task); err != nil {
			return &Result{Status: statusFor(err), Error: err}
		}
		return &Result{Status: types.StatusOK}
	default:
		return &Result{Status: types.StatusInvalid, Error: errors.ErrUnknownOperation}
	}
}

func statusFor(err error) types.Status {
	classifier := errors.NewClassifier()
	category := classifier.Classify(err)
	switch {
	case category == errors.ErrorValidation:
		return types.StatusInvalid
	case classifier.IsInvariant(category), category == errors.ErrorResource:
		return types.StatusConflict
	default:
		return types.StatusError
	}
}

func (db *DB) execInsert(col *Collection, doc map[string]interface{}) (map[string]interface{}, error) {
	if doc == nil {
		return nil, errors.ErrNotJSONObject
	}

	var stored map[string]interface{}
	if col.Temporal() {
		stored = db.codec.Wrap(doc)
	} else {
		stored = make(map[string]interface{}, len(doc)+1)
		for k, v := range doc {
			stored[k] = v
		}
		if _, ok := stored[temporal.FieldID]; !ok {
			stored[temporal.FieldID] = uuid.NewString()
		}
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, errors.ErrInvalidJSON
	}
	if _, err := col.store.Insert(payload); err != nil {
		return nil, err
	}
	return stored, nil
}

func (db *DB) execEnsureIndex(col *Collection, task *Task) error {
	spec := task.IndexSpec
	if col.Temporal() {
		spec = temporal.ShapeIndexSpec(spec)
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return errors.ErrInvalidJSON
	}

	if err := col.store.EnsureIndex(task.IndexName, specFields(spec), task.Unique); err != nil {
		return err
	}
	return db.catalog.PutIndex(types.IndexMetadata{
		Collection:  col.Name(),
		Name:        task.IndexName,
		Spec:        string(raw),
		Unique:      task.Unique,
		ExpireAfter: task.ExpireAfter,
	})
}
