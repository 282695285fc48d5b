package temporal

import (
	"sync"
	"testing"
)

func TestSystemClock_StrictlyIncreasing(t *testing.T) {
	clock := NewSystemClock()
	prev := clock.Next()
	for i := 0; i < 1000; i++ {
		cur := clock.Next()
		if prev.Compare(cur) >= 0 {
			t.Fatalf("Clock not strictly increasing: %v then %v", prev, cur)
		}
		prev = cur
	}
}

func TestSystemClock_ConcurrentUnique(t *testing.T) {
	clock := NewSystemClock()
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[Timestamp]bool)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ts := clock.Next()
				mu.Lock()
				if seen[ts] {
					t.Errorf("Duplicate timestamp %v", ts)
				}
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(1000)

	ts := clock.Next()
	if ts.T != 1000 || ts.I != 0 {
		t.Errorf("First tick = %v, want {1000 0}", ts)
	}
	ts = clock.Next()
	if ts.T != 1000 || ts.I != 1 {
		t.Errorf("Second tick = %v, want {1000 1}", ts)
	}

	clock.Set(2000)
	ts = clock.Next()
	if ts.T != 2000 || ts.I != 0 {
		t.Errorf("After Set = %v, want {2000 0}", ts)
	}

	clock.Advance(500)
	ts = clock.Next()
	if ts.T != 2500 {
		t.Errorf("After Advance = %v, want t=2500", ts)
	}
}

func TestParseTimestamp(t *testing.T) {
	if ts, ok := ParseTimestamp(map[string]interface{}{"t": float64(10), "i": float64(3)}); !ok || ts.T != 10 || ts.I != 3 {
		t.Errorf("Composite parse = %v, %v", ts, ok)
	}
	if ts, ok := ParseTimestamp(float64(42)); !ok || ts.T != 42 || ts.I != 0 {
		t.Errorf("Bare number parse = %v, %v", ts, ok)
	}
	if ts, ok := ParseTimestamp(Timestamp{T: 7, I: 1}); !ok || ts.T != 7 {
		t.Errorf("Identity parse = %v, %v", ts, ok)
	}
	if _, ok := ParseTimestamp(nil); ok {
		t.Error("nil is the open sentinel, not a timestamp")
	}
	if _, ok := ParseTimestamp("later"); ok {
		t.Error("Strings are not timestamps")
	}
}
