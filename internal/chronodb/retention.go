package chronodb

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/chronodb/internal/config"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/metrics"
	"github.com/kartikbazzad/chronodb/internal/store"
	"github.com/kartikbazzad/chronodb/internal/temporal"
)

// RetentionService physically removes historic versions past their
// retention cutoff. It is the only path that deletes records: logical
// deletes close versions and leave them readable.
//
// Each sweep visits every temporal collection carrying an index with a
// retention cutoff and purges closed versions whose interval end is older
// than now minus the cutoff. Open versions never satisfy the purge
// predicate, so current data is structurally out of reach.
type RetentionService struct {
	db     *DB
	cfg    *config.RetentionConfig
	logger *logger.Logger
	pool   *ants.Pool
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats RetentionStats
}

// RetentionStats tracks sweep activity.
type RetentionStats struct {
	Sweeps        uint64
	VersionsFreed uint64
	LastSweep     time.Time
}

func NewRetentionService(db *DB, cfg *config.RetentionConfig, log *logger.Logger) *RetentionService {
	return &RetentionService{
		db:     db,
		cfg:    cfg,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (rs *RetentionService) Start() {
	if !rs.cfg.Enabled {
		return
	}

	poolSize := rs.cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		rs.logger.Error("Retention pool failed to start: %v", err)
		return
	}
	rs.pool = pool

	rs.wg.Add(1)
	go rs.sweepLoop()
	rs.logger.Info("Retention service started (interval: %v)", rs.cfg.Interval)
}

// Stop stops the sweep loop and waits for in-flight purge jobs.
func (rs *RetentionService) Stop() {
	if rs.pool == nil {
		return
	}
	close(rs.stopCh)
	rs.wg.Wait()
	rs.pool.Release()
	rs.logger.Info("Retention service stopped")
}

// Stats returns a copy of the sweep counters.
func (rs *RetentionService) Stats() RetentionStats {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.stats
}

func (rs *RetentionService) sweepLoop() {
	defer rs.wg.Done()

	interval := rs.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rs.stopCh:
			return
		case <-ticker.C:
			rs.Sweep(time.Now())
		}
	}
}

// Sweep runs one pass over every collection. Exported so tests and the
// admin surface can trigger a sweep at a chosen instant.
func (rs *RetentionService) Sweep(now time.Time) {
	start := time.Now()

	rs.db.mu.RLock()
	cols := make([]*Collection, 0, len(rs.db.collections))
	for _, col := range rs.db.collections {
		cols = append(cols, col)
	}
	rs.db.mu.RUnlock()

	var jobs sync.WaitGroup
	for _, col := range cols {
		if !col.Temporal() {
			continue
		}
		cutoff, ok := rs.cutoffFor(col)
		if !ok {
			continue
		}
		col := col
		if rs.pool == nil {
			// No pool when the background loop is disabled; callers driving
			// Sweep directly get a synchronous pass.
			rs.purgeCollection(col, cutoff, now)
			continue
		}
		jobs.Add(1)
		err := rs.pool.Submit(func() {
			defer jobs.Done()
			rs.purgeCollection(col, cutoff, now)
		})
		if err != nil {
			jobs.Done()
			rs.logger.Warn("Purge job rejected for %s: %v", col.Name(), err)
		}
	}
	jobs.Wait()

	rs.mu.Lock()
	rs.stats.Sweeps++
	rs.stats.LastSweep = now
	rs.mu.Unlock()

	metrics.RecordPurgeSweep(time.Since(start))
}

// cutoffFor finds the smallest retention cutoff among the collection's
// indexes. Zero means the collection has no retention index.
func (rs *RetentionService) cutoffFor(col *Collection) (int64, bool) {
	idxs, err := rs.db.catalog.ListIndexes(col.Name())
	if err != nil {
		rs.logger.Warn("Cannot list indexes for %s: %v", col.Name(), err)
		return 0, false
	}

	var cutoff int64
	for _, idx := range idxs {
		if idx.ExpireAfter <= 0 {
			continue
		}
		// Only indexes covering the interval end drive retention.
		var spec []temporal.IndexKey
		if err := json.Unmarshal([]byte(idx.Spec), &spec); err != nil {
			continue
		}
		covers := false
		for _, key := range spec {
			if key.Field == temporal.PathEnd {
				covers = true
				break
			}
		}
		if !covers {
			continue
		}
		if cutoff == 0 || idx.ExpireAfter < cutoff {
			cutoff = idx.ExpireAfter
		}
	}
	return cutoff, cutoff > 0
}

// purgeCollection removes expired closed versions from one collection, at
// most MaxBatchSize per sweep so a backlog drains across sweeps instead of
// stalling one.
func (rs *RetentionService) purgeCollection(col *Collection, expireAfter int64, now time.Time) {
	pred := temporal.PurgeQuery(temporal.PathEnd, expireAfter, now)

	maxBatch := rs.cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1000
	}

	cur := col.store.NewCursor(pred)
	locs := make([]store.Loc, 0, maxBatch)
	for len(locs) < maxBatch {
		row, ok, err := cur.Next()
		if err != nil {
			rs.logger.Warn("Purge scan failed on %s: %v", col.Name(), err)
			break
		}
		if !ok {
			break
		}
		locs = append(locs, row.Loc)
	}
	cur.Close()

	if len(locs) == 0 {
		return
	}

	col.mu.Lock()
	purged := 0
	for _, loc := range locs {
		// Re-check under the writer lock; the record may have moved or been
		// purged since the scan.
		doc, err := col.store.ReadDoc(loc)
		if err != nil {
			continue
		}
		if !pred.Matches(doc) {
			continue
		}
		if err := col.store.Delete(loc); err != nil {
			rs.logger.Warn("Purge delete failed on %s loc %d: %v", col.Name(), loc, err)
			continue
		}
		purged++
	}
	col.mu.Unlock()

	if purged > 0 {
		rs.mu.Lock()
		rs.stats.VersionsFreed += uint64(purged)
		rs.mu.Unlock()
		metrics.RecordPurged(col.Name(), purged)
		rs.logger.Info("Purged %d expired versions from %s", purged, col.Name())
	}
}
