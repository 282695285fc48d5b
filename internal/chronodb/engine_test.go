package chronodb

import (
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/kartikbazzad/chronodb/internal/config"
	cerrors "github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/temporal"
	"github.com/kartikbazzad/chronodb/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Retention.Enabled = false
	return cfg
}

func openTestDB(t *testing.T, cfg *config.Config, clock temporal.Clock) *DB {
	t.Helper()
	db, err := OpenWithClock(cfg, clock, logger.New(io.Discard, logger.LevelError, "test"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return db
}

func testDB(t *testing.T, clock temporal.Clock) *DB {
	t.Helper()
	db := openTestDB(t, testConfig(t), clock)
	t.Cleanup(func() { db.Close() })
	return db
}

func interval(t *testing.T, doc map[string]interface{}) (start int64, end int64, open bool) {
	t.Helper()
	s, err := temporal.IntervalStart(doc)
	if err != nil {
		t.Fatalf("Failed to read interval start: %v", err)
	}
	e, isOpen, err := temporal.IntervalEnd(doc)
	if err != nil {
		t.Fatalf("Failed to read interval end: %v", err)
	}
	if isOpen {
		return s.T, 0, true
	}
	return s.T, e.T, false
}

func TestInsert_TemporalWrapsDocument(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	stored, err := db.Insert("events", map[string]interface{}{"_id": "e1", "a": 1})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	id, ok := temporal.StableID(stored)
	if !ok || id != "e1" {
		t.Errorf("Stable id = %v, want e1", id)
	}
	start, _, open := interval(t, stored)
	if start != 1000 || !open {
		t.Errorf("Interval = [%d, open=%t), want [1000, open)", start, open)
	}
}

func TestInsert_TemporalSynthesizesID(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	stored, err := db.Insert("events", map[string]interface{}{"a": 1})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	id, ok := temporal.StableID(stored)
	if !ok {
		t.Fatal("Stored version has no stable id")
	}
	if s, isStr := id.(string); !isStr || s == "" {
		t.Errorf("Synthesized id = %v, want non-empty string", id)
	}
}

// The full versioned lifecycle: insert at t=1000, update at t=2000, delete
// at t=3000. History keeps both versions, point-in-time reads see the
// version live at that instant, and the default view is empty after the delete.
func TestTemporalLifecycle(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	if _, err := db.Insert("events", map[string]interface{}{"_id": "e1", "a": 1}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	clock.Set(2000)
	res, err := db.Update("events", map[string]interface{}{"a": 1}, map[string]interface{}{"a": 2}, false)
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if res.Matched != 1 || res.Closed != 1 || res.Inserted != 1 {
		t.Fatalf("Update counters = %+v, want 1/1/1", res)
	}

	clock.Set(3000)
	res, err = db.Delete("events", map[string]interface{}{"a": 2}, false)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if res.Matched != 1 || res.Closed != 1 || res.Inserted != 0 {
		t.Fatalf("Delete counters = %+v, want 1/1/0", res)
	}

	all, err := db.Find("events", map[string]interface{}{"transaction": map[string]interface{}{"all": true}},
		map[string]interface{}{"_id.transaction_start": 1}, 0)
	if err != nil {
		t.Fatalf("Failed to find all versions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All versions = %d docs, want 2", len(all))
	}
	s1, e1, open1 := interval(t, all[0])
	s2, e2, open2 := interval(t, all[1])
	if open1 || open2 {
		t.Fatal("No version should remain open after delete")
	}
	if s1 != 1000 || e1 != 2000 || s2 != 2000 || e2 != 3000 {
		t.Errorf("Intervals = [%d,%d) [%d,%d), want [1000,2000) [2000,3000)", s1, e1, s2, e2)
	}

	at25, err := db.Find("events", map[string]interface{}{"transaction": map[string]interface{}{"at": 2500}}, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find at 2500: %v", err)
	}
	if len(at25) != 1 || at25[0]["a"] != float64(2) {
		t.Errorf("At 2500 = %v, want one version with a=2", at25)
	}

	at15, err := db.Find("events", map[string]interface{}{"transaction": map[string]interface{}{"at": 1500}}, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find at 1500: %v", err)
	}
	if len(at15) != 1 || at15[0]["a"] != float64(1) {
		t.Errorf("At 1500 = %v, want one version with a=1", at15)
	}

	current, err := db.Find("events", nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find current: %v", err)
	}
	if len(current) != 0 {
		t.Errorf("Current view after delete = %d docs, want 0", len(current))
	}

	n, err := db.Count("events", map[string]interface{}{
		"transaction": map[string]interface{}{"inrange": []interface{}{1500, 2500}},
	})
	if err != nil {
		t.Fatalf("Failed to count inrange: %v", err)
	}
	if n != 2 {
		t.Errorf("Inrange [1500,2500] count = %d, want 2", n)
	}
}

func TestUpdate_ChainContinuity(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	if _, err := db.Insert("events", map[string]interface{}{"_id": "e1", "n": 0}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	const updates = 5
	for i := 1; i <= updates; i++ {
		clock.Set(int64(1000 + i*1000))
		if _, err := db.Update("events", map[string]interface{}{"_id": "e1"},
			map[string]interface{}{"n": i}, false); err != nil {
			t.Fatalf("Failed to update #%d: %v", i, err)
		}
	}

	all, err := db.Find("events", map[string]interface{}{"transaction": map[string]interface{}{"all": true}},
		map[string]interface{}{"_id.transaction_start": 1}, 0)
	if err != nil {
		t.Fatalf("Failed to find all versions: %v", err)
	}
	if len(all) != updates+1 {
		t.Fatalf("Versions = %d, want %d", len(all), updates+1)
	}
	for i := 0; i < len(all)-1; i++ {
		_, end, open := interval(t, all[i])
		next, _, _ := interval(t, all[i+1])
		if open {
			t.Fatalf("Version %d is open but has a successor", i)
		}
		if end != next {
			t.Fatalf("Gap in chain: version %d ends at %d, successor starts at %d", i, end, next)
		}
	}
	if _, _, open := interval(t, all[len(all)-1]); !open {
		t.Error("Last version should be open")
	}
	if all[len(all)-1]["n"] != float64(updates) {
		t.Errorf("Final n = %v, want %d", all[len(all)-1]["n"], updates)
	}
}

func TestUpdate_Operators(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	if _, err := db.Insert("events", map[string]interface{}{"_id": "e1", "hits": 1, "tag": "x", "keep": true}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	clock.Set(2000)
	_, err := db.Update("events", map[string]interface{}{"_id": "e1"}, map[string]interface{}{
		"$inc":   map[string]interface{}{"hits": 2},
		"$set":   map[string]interface{}{"tag": "y"},
		"$unset": map[string]interface{}{"keep": 1},
	}, false)
	if err != nil {
		t.Fatalf("Failed to apply operators: %v", err)
	}

	docs, err := db.Find("events", nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Current view = %d docs, want 1", len(docs))
	}
	doc := docs[0]
	if doc["hits"] != float64(3) || doc["tag"] != "y" {
		t.Errorf("Operator result = %v", doc)
	}
	if _, present := doc["keep"]; present {
		t.Error("$unset field survived")
	}
}

func TestUpdate_RejectsMixedUpdate(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	_, err := db.Update("events", nil, map[string]interface{}{
		"$set": map[string]interface{}{"a": 1},
		"b":    2,
	}, false)
	if !stderrors.Is(err, cerrors.ErrMixedUpdate) {
		t.Errorf("Mixed update: got %v", err)
	}
}

func TestUpdate_MultiVsSingle(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.Insert("events", map[string]interface{}{"kind": "a", "n": i}); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
	}

	clock.Set(2000)
	res, err := db.Update("events", map[string]interface{}{"kind": "a"},
		map[string]interface{}{"$set": map[string]interface{}{"seen": true}}, false)
	if err != nil {
		t.Fatalf("Failed single update: %v", err)
	}
	if res.Closed != 1 {
		t.Errorf("Single update closed %d versions, want 1", res.Closed)
	}

	clock.Set(3000)
	res, err = db.Update("events", map[string]interface{}{"kind": "a"},
		map[string]interface{}{"$set": map[string]interface{}{"seen": true}}, true)
	if err != nil {
		t.Fatalf("Failed multi update: %v", err)
	}
	if res.Closed != 3 || res.Inserted != 3 {
		t.Errorf("Multi update counters = %+v, want 3 closed, 3 inserted", res)
	}

	current, err := db.Find("events", nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(current) != 3 {
		t.Errorf("Current view = %d docs, want 3", len(current))
	}
}

func TestUpdate_RejectsHistoricTarget(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	_, err := db.Update("events", map[string]interface{}{
		"transaction": map[string]interface{}{"at": 500},
	}, map[string]interface{}{"a": 1}, false)
	if !stderrors.Is(err, cerrors.ErrHistoricMutation) {
		t.Errorf("Historic mutation: got %v", err)
	}
}

func TestDelete_JustOne(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.Insert("events", map[string]interface{}{"kind": "a"}); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
	}

	clock.Set(2000)
	res, err := db.Delete("events", map[string]interface{}{"kind": "a"}, true)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if res.Closed != 1 {
		t.Errorf("JustOne delete closed %d, want 1", res.Closed)
	}

	n, err := db.Count("events", nil)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if n != 2 {
		t.Errorf("Current count = %d, want 2", n)
	}
	all, err := db.Count("events", map[string]interface{}{"transaction": map[string]interface{}{"all": true}})
	if err != nil {
		t.Fatalf("Failed to count all: %v", err)
	}
	if all != 3 {
		t.Errorf("Physical count = %d, want 3 (delete closes, never removes)", all)
	}
}

func TestUpdate_OrphanedCloseOnUniqueViolation(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("users", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	spec := []temporal.IndexKey{{Field: "email", Order: 1}}
	if err := db.EnsureIndex("users", "uniq_email", spec, true, 0); err != nil {
		t.Fatalf("Failed to ensure index: %v", err)
	}
	if _, err := db.Insert("users", map[string]interface{}{"_id": "u1", "email": "a@x"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if _, err := db.Insert("users", map[string]interface{}{"_id": "u2", "email": "b@x"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	clock.Set(2000)
	res, err := db.Update("users", map[string]interface{}{"_id": "u2"},
		map[string]interface{}{"$set": map[string]interface{}{"email": "a@x"}}, false)
	if !stderrors.Is(err, ErrOrphanedClose) {
		t.Fatalf("Successor colliding on a unique key: got %v", err)
	}
	if res.Closed != 1 || res.Inserted != 0 {
		t.Errorf("Counters = %+v, want closed=1 inserted=0", res)
	}

	// The close persisted: u2 dropped out of the current view.
	current, err := db.Find("users", nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(current) != 1 {
		t.Errorf("Current view = %d docs, want 1", len(current))
	}
}

func TestUniqueIndex_ScopedToCurrentVersions(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("users", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	spec := []temporal.IndexKey{{Field: "email", Order: 1}}
	if err := db.EnsureIndex("users", "uniq_email", spec, true, 0); err != nil {
		t.Fatalf("Failed to ensure index: %v", err)
	}
	if _, err := db.Insert("users", map[string]interface{}{"_id": "u1", "email": "a@x"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	// Each update closes a version with email a@x. Closed versions carry
	// concrete interval ends, so the business key may repeat across history.
	for i := 1; i <= 3; i++ {
		clock.Set(int64(1000 + i*1000))
		if _, err := db.Update("users", map[string]interface{}{"_id": "u1"},
			map[string]interface{}{"$inc": map[string]interface{}{"rev": 1}}, false); err != nil {
			t.Fatalf("Failed update #%d: %v", i, err)
		}
	}

	// A second open document with the same email is still rejected.
	if _, err := db.Insert("users", map[string]interface{}{"_id": "u9", "email": "a@x"}); !stderrors.Is(err, cerrors.ErrUniqueViolation) {
		t.Errorf("Duplicate current key: got %v", err)
	}
}

func TestNonTemporalCollection_PlainCRUD(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("plain", false); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	stored, err := db.Insert("plain", map[string]interface{}{"a": 1})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if _, isComposite := stored["_id"].(map[string]interface{}); isComposite {
		t.Error("Plain insert should not wrap the identifier")
	}

	res, err := db.Update("plain", map[string]interface{}{"a": 1},
		map[string]interface{}{"$set": map[string]interface{}{"a": 2}}, false)
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if res.Matched != 1 || res.Closed != 0 {
		t.Errorf("Plain update counters = %+v, want matched=1 closed=0", res)
	}

	docs, err := db.Find("plain", map[string]interface{}{"a": 2}, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Find = %d docs, want 1", len(docs))
	}

	if _, err := db.Find("plain", map[string]interface{}{
		"transaction": map[string]interface{}{"all": true},
	}, nil, 0); !stderrors.Is(err, cerrors.ErrUnknownSelector) {
		t.Errorf("Temporal selector on plain collection: got %v", err)
	}

	res, err = db.Delete("plain", map[string]interface{}{"a": 2}, false)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if res.Matched != 1 {
		t.Errorf("Plain delete counters = %+v", res)
	}
	n, err := db.Count("plain", nil)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count after physical delete = %d, want 0", n)
	}
}

func TestCreateCollection_TemporalFlagImmutable(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	if err := db.CreateCollection("events", false); !stderrors.Is(err, cerrors.ErrTemporalFlagImmutable) {
		t.Errorf("Flag flip: got %v", err)
	}
	if err := db.CreateCollection("events", true); !stderrors.Is(err, ErrCollectionExists) {
		t.Errorf("Same flag: got %v", err)
	}
}

func TestDropCollection(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	if err := db.DropCollection("events"); err != nil {
		t.Fatalf("Failed to drop: %v", err)
	}
	if err := db.DropCollection("events"); !stderrors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Double drop: got %v", err)
	}
	if _, err := db.Find("events", nil, nil, 0); !stderrors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Find on dropped collection: got %v", err)
	}
}

func TestFind_LimitAndSort(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	for i := 0; i < 5; i++ {
		clock.Set(int64(1000 + i))
		if _, err := db.Insert("events", map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
	}

	docs, err := db.Find("events", nil, map[string]interface{}{"n": -1}, 2)
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(docs) != 2 || docs[0]["n"] != float64(4) || docs[1]["n"] != float64(3) {
		t.Errorf("Sorted limited find = %v", docs)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	clock := temporal.NewManualClock(1000)

	db := openTestDB(t, cfg, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	spec := []temporal.IndexKey{{Field: "email", Order: 1}}
	if err := db.EnsureIndex("events", "uniq_email", spec, true, 0); err != nil {
		t.Fatalf("Failed to ensure index: %v", err)
	}
	if _, err := db.Insert("events", map[string]interface{}{"_id": "e1", "email": "a@x", "a": 1}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	clock.Set(2000)
	if _, err := db.Update("events", map[string]interface{}{"_id": "e1"},
		map[string]interface{}{"$set": map[string]interface{}{"a": 2}}, false); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	db = openTestDB(t, cfg, clock)
	defer db.Close()

	all, err := db.Count("events", map[string]interface{}{"transaction": map[string]interface{}{"all": true}})
	if err != nil {
		t.Fatalf("Failed to count after reopen: %v", err)
	}
	if all != 2 {
		t.Fatalf("Versions after reopen = %d, want 2", all)
	}
	current, err := db.Find("events", nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find after reopen: %v", err)
	}
	if len(current) != 1 || current[0]["a"] != float64(2) {
		t.Errorf("Current after reopen = %v", current)
	}

	// The unique index came back from the catalog.
	if _, err := db.Insert("events", map[string]interface{}{"email": "a@x"}); !stderrors.Is(err, cerrors.ErrUniqueViolation) {
		t.Errorf("Unique index after reopen: got %v", err)
	}
}

func TestRetentionSweep_PurgesExpiredClosedVersions(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	// A TTL index with no explicit temporal key gets the interval end
	// prepended by shaping, which makes it a retention driver.
	spec := []temporal.IndexKey{{Field: "kind", Order: 1}}
	if err := db.EnsureIndex("events", "ttl_kind", spec, false, 5000); err != nil {
		t.Fatalf("Failed to ensure index: %v", err)
	}

	if _, err := db.Insert("events", map[string]interface{}{"_id": "old", "kind": "a"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	clock.Set(2000)
	if _, err := db.Delete("events", map[string]interface{}{"_id": "old"}, false); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	clock.Set(9000)
	if _, err := db.Insert("events", map[string]interface{}{"_id": "recent", "kind": "a"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if _, err := db.Update("events", map[string]interface{}{"_id": "recent"},
		map[string]interface{}{"$set": map[string]interface{}{"kind": "b"}}, false); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	// At now=10000 with a 5000s window the cutoff is 5000: only the version
	// closed at 2000 is expired. The version closed at 9000 and the open one
	// must survive.
	db.retention.Sweep(time.Unix(10000, 0))

	all, err := db.Count("events", map[string]interface{}{"transaction": map[string]interface{}{"all": true}})
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if all != 2 {
		t.Errorf("Versions after sweep = %d, want 2", all)
	}
	current, err := db.Find("events", nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to find current: %v", err)
	}
	if len(current) != 1 || current[0]["kind"] != "b" {
		t.Errorf("Current after sweep = %v", current)
	}
}

func TestRetentionSweep_SkipsCollectionsWithoutTTLIndex(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	if _, err := db.Insert("events", map[string]interface{}{"_id": "e1"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	clock.Set(2000)
	if _, err := db.Delete("events", nil, false); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	db.retention.Sweep(time.Unix(100000, 0))

	all, err := db.Count("events", map[string]interface{}{"transaction": map[string]interface{}{"all": true}})
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if all != 1 {
		t.Errorf("History purged without a retention index: %d versions left, want 1", all)
	}
}

// A yield point must actually suspend the scan: the collection writer lock
// is released and reacquired, so a writer queued on the same collection can
// interleave between documents.
func TestYield_ReleasesCollectionLock(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	col, err := db.getCollection("events")
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		col.mu.Lock()
		col.mu.Unlock()
		close(acquired)
	}()

	deadline := time.After(5 * time.Second)
	for {
		if err := db.yield(col, 1); err != nil {
			t.Fatalf("Failed to yield: %v", err)
		}
		select {
		case <-acquired:
			return
		case <-deadline:
			t.Fatal("Queued writer never acquired the lock across yield points")
		default:
		}
	}
}

// Shutdown observed at a yield point cancels the scan; documents already
// processed keep their effect.
func TestMultiUpdate_CancelledAtShutdownYieldPoint(t *testing.T) {
	clock := temporal.NewManualClock(1000)
	db := testDB(t, clock)
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.Insert("events", map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
	}
	col, err := db.getCollection("events")
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}

	clock.Set(2000)
	db.mu.Lock()
	db.closed = true
	db.mu.Unlock()

	// Drive the scan the way a worker does, under the collection lock.
	col.mu.Lock()
	res, err := db.execUpdate(col, nil,
		map[string]interface{}{"$set": map[string]interface{}{"seen": true}}, true)
	col.mu.Unlock()

	if !stderrors.Is(err, cerrors.ErrScanCancelled) {
		t.Fatalf("Scan during shutdown: got %v", err)
	}
	if res.Matched != 1 || res.Closed != 1 || res.Inserted != 1 {
		t.Errorf("Counters = %+v, want 1/1/1 before the first yield", res)
	}
}

// Stop must deliver a result for every accepted task, including tasks still
// queued when the workers are cancelled.
func TestWorkerPool_StopDrainsQueuedTasks(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("events", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}

	wp := NewWorkerPool(db, &config.EngineConfig{WorkerCount: 1, QueueSize: 64},
		logger.New(io.Discard, logger.LevelError, "pool-test"))

	tasks := make([]*Task, 0, 32)
	for i := 0; i < 32; i++ {
		task := NewTask(types.OpInsert, "events")
		task.Doc = map[string]interface{}{"n": i}
		tasks = append(tasks, task)
		wp.Submit(task)
	}

	wp.Start()
	wp.Stop()

	for i, task := range tasks {
		select {
		case res := <-task.ResultCh:
			if res.Error != nil {
				t.Fatalf("Task %d failed: %v", i, res.Error)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Task %d never delivered a result", i)
		}
	}
}

func TestStats(t *testing.T) {
	db := testDB(t, temporal.NewManualClock(1000))
	if err := db.CreateCollection("a", true); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	if err := db.CreateCollection("b", false); err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	if _, err := db.Insert("a", map[string]interface{}{"x": 1}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	stats := db.Stats()
	if stats.Collections != 2 {
		t.Errorf("Collections = %d, want 2", stats.Collections)
	}
	if stats.TotalRequests == 0 {
		t.Error("TotalRequests should count submitted operations")
	}

	metas := db.ListCollections()
	if len(metas) != 2 {
		t.Fatalf("ListCollections = %d, want 2", len(metas))
	}
	for _, meta := range metas {
		if meta.Name == "a" && meta.DocCount != 1 {
			t.Errorf("DocCount for a = %d, want 1", meta.DocCount)
		}
	}
}
