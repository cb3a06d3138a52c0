package policy

import (
	"slices"
	"sync/atomic"
	"time"
)

type spamEntry struct {
	content string
	stop    func() bool
}

// SpamCache remembers the recent message bodies of each sender. Every body
// expires on its own; a sender whose last body expires is forgotten.
type SpamCache struct {
	window  time.Duration
	sched   Scheduler
	senders *shardedMap[[]*spamEntry]
	closed  atomic.Bool
}

// NewSpamCache returns a cache with the given window. A window of zero or
// less disables the cache.
func NewSpamCache(window time.Duration, sched Scheduler) *SpamCache {
	if sched == nil {
		sched = SystemScheduler
	}
	return &SpamCache{window: window, sched: sched, senders: newShardedMap[[]*spamEntry]()}
}

// CheckAndRecord reports whether sender already sent content within the
// window. A hit leaves the cache untouched; a miss records content.
func (c *SpamCache) CheckAndRecord(sender, content string) bool {
	if c.window <= 0 {
		return false
	}
	sh := c.senders.shard(sender)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if c.closed.Load() {
		return false
	}
	entries := sh.m[sender]
	for _, e := range entries {
		if e.content == content {
			return true
		}
	}
	e := &spamEntry{content: content}
	sh.m[sender] = append(entries, e)
	e.stop = c.sched.AfterFunc(c.window, func() { c.expire(sender, e) })
	return false
}

// expire removes exactly e. It is a no-op when e is already gone.
func (c *SpamCache) expire(sender string, e *spamEntry) {
	sh := c.senders.shard(sender)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entries, ok := sh.m[sender]
	if !ok {
		return
	}
	i := slices.Index(entries, e)
	if i < 0 {
		return
	}
	entries = slices.Delete(entries, i, i+1)
	if len(entries) == 0 {
		delete(sh.m, sender)
		return
	}
	sh.m[sender] = entries
}

// Contents lists the bodies currently remembered for sender, oldest first.
func (c *SpamCache) Contents(sender string) []string {
	sh := c.senders.shard(sender)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entries, ok := sh.m[sender]
	if !ok {
		return nil
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.content
	}
	return out
}

// Close stops every pending expiry and empties the cache.
func (c *SpamCache) Close() {
	c.closed.Store(true)
	c.senders.drain(func(entries []*spamEntry) {
		for _, e := range entries {
			if e.stop != nil {
				e.stop()
			}
		}
	})
}
