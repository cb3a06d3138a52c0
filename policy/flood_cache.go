package policy

import (
	"sync/atomic"
	"time"
)

type floodMark struct {
	stop func() bool
}

// FloodCache remembers, per sender, that a message was sent within the last
// window. Each mark removes itself when the window elapses.
type FloodCache struct {
	window time.Duration
	sched  Scheduler
	marks  *shardedMap[*floodMark]
	closed atomic.Bool
}

// NewFloodCache returns a cache with the given window. A window of zero or
// less disables the cache: nothing is recorded and nothing is flagged.
func NewFloodCache(window time.Duration, sched Scheduler) *FloodCache {
	if sched == nil {
		sched = SystemScheduler
	}
	return &FloodCache{window: window, sched: sched, marks: newShardedMap[*floodMark]()}
}

// CheckAndMark reports whether sender is still inside its window. If not,
// a new window starts now.
func (c *FloodCache) CheckAndMark(sender string) bool {
	if c.window <= 0 {
		return false
	}
	sh := c.marks.shard(sender)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if c.closed.Load() {
		return false
	}
	if _, ok := sh.m[sender]; ok {
		return true
	}
	mark := &floodMark{}
	sh.m[sender] = mark
	mark.stop = c.sched.AfterFunc(c.window, func() { c.expire(sender, mark) })
	return false
}

// expire removes mark if it is still the sender's current one.
func (c *FloodCache) expire(sender string, mark *floodMark) {
	sh := c.marks.shard(sender)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[sender]; ok && cur == mark {
		delete(sh.m, sender)
	}
}

// Marked reports whether sender currently has an open window.
func (c *FloodCache) Marked(sender string) bool {
	sh := c.marks.shard(sender)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.m[sender]
	return ok
}

// Close stops every pending expiry and empties the cache. The cache stays
// empty afterwards.
func (c *FloodCache) Close() {
	c.closed.Store(true)
	c.marks.drain(func(m *floodMark) {
		if m.stop != nil {
			m.stop()
		}
	})
}
