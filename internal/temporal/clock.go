package temporal

import (
	"sync"
	"time"
)

// Clock supplies monotonically increasing, globally comparable timestamps.
// It is injected wherever timestamps are stamped so tests can supply
// deterministic sequences.
type Clock interface {
	Next() Timestamp
}

// SystemClock is wall time with a per-second tie-break counter. Successive
// calls always return strictly increasing values, even within one second.
type SystemClock struct {
	mu    sync.Mutex
	lastT int64
	lastI uint32
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Next() Timestamp {
	now := time.Now().Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now <= c.lastT {
		c.lastI++
		return Timestamp{T: c.lastT, I: c.lastI}
	}
	c.lastT = now
	c.lastI = 1
	return Timestamp{T: now, I: 1}
}

// ManualClock is a deterministic clock for tests. Next returns the current
// value and bumps the counter; Set moves the wall component and resets the
// counter.
type ManualClock struct {
	mu  sync.Mutex
	cur Timestamp
}

func NewManualClock(seconds int64) *ManualClock {
	return &ManualClock{cur: Timestamp{T: seconds}}
}

func (c *ManualClock) Next() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.cur
	c.cur.I++
	return ts
}

func (c *ManualClock) Set(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = Timestamp{T: seconds}
}

func (c *ManualClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = Timestamp{T: c.cur.T + seconds}
}
