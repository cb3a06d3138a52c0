package policy

import (
	"hash/maphash"
	"sync"
	"time"
)

// Scheduler runs one-shot callbacks after a delay, on a goroutine of its
// choosing. The returned stop function cancels the callback and reports
// whether it did so before the callback ran.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SystemScheduler schedules callbacks with time.AfterFunc.
var SystemScheduler Scheduler = timeScheduler{}

const shardCount = 32

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// shardedMap spreads sender keys over independently locked shards so that
// unrelated senders do not contend.
type shardedMap[V any] struct {
	seed   maphash.Seed
	shards [shardCount]shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	s := &shardedMap[V]{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].m = make(map[string]V)
	}
	return s
}

func (s *shardedMap[V]) shard(key string) *shard[V] {
	return &s.shards[maphash.String(s.seed, key)%shardCount]
}

// drain empties every shard, handing each removed value to f.
func (s *shardedMap[V]) drain(f func(V)) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			f(v)
			delete(sh.m, k)
		}
		sh.mu.Unlock()
	}
}
