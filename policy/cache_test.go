package policy

import (
	"fmt"
	"testing"
	"time"

	"chatguard/testutils"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestFloodCache_CheckAndMark(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewFloodCache(5*time.Second, sched)

	require.False(t, c.CheckAndMark("alice"), "first message opens the window")
	require.True(t, c.Marked("alice"))
	require.True(t, c.CheckAndMark("alice"), "second message inside the window")
	require.False(t, c.CheckAndMark("bob"), "senders are independent")
	require.Equal(t, 2, sched.Pending(), "a hit does not schedule another expiry")

	sched.Advance(4 * time.Second)
	require.True(t, c.CheckAndMark("alice"))

	sched.Advance(time.Second)
	require.False(t, c.Marked("alice"))
	require.False(t, c.CheckAndMark("alice"), "window elapsed")
}

func TestFloodCache_DisabledWindow(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewFloodCache(0, sched)
	require.False(t, c.CheckAndMark("alice"))
	require.False(t, c.CheckAndMark("alice"))
	require.Zero(t, sched.Pending())
}

func TestFloodCache_ExpiryIsIdempotent(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewFloodCache(time.Second, sched)

	require.False(t, c.CheckAndMark("alice"))
	sh := c.marks.shard("alice")
	sh.mu.Lock()
	stale := sh.m["alice"]
	sh.mu.Unlock()

	sched.Advance(time.Second)
	require.False(t, c.CheckAndMark("alice"), "a new window opens")

	// The first mark expiring again must not end the new window.
	c.expire("alice", stale)
	require.True(t, c.Marked("alice"))
}

func TestFloodCache_Close(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewFloodCache(time.Minute, sched)
	c.CheckAndMark("alice")
	c.CheckAndMark("bob")

	c.Close()
	require.Zero(t, sched.Pending(), "pending expiries are cancelled")
	require.False(t, c.Marked("alice"))
	require.False(t, c.CheckAndMark("alice"), "a closed cache records nothing")
	require.False(t, c.Marked("alice"))
}

func TestSpamCache_CheckAndRecord(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewSpamCache(10*time.Second, sched)

	require.False(t, c.CheckAndRecord("alice", "hi"))
	require.True(t, c.CheckAndRecord("alice", "hi"))
	require.False(t, c.CheckAndRecord("bob", "hi"), "senders are independent")

	sched.Advance(3 * time.Second)
	require.False(t, c.CheckAndRecord("alice", "hello"))
	require.Equal(t, []string{"hi", "hello"}, c.Contents("alice"))

	sched.Advance(7 * time.Second)
	require.Equal(t, []string{"hello"}, c.Contents("alice"), "each body expires on its own")
	require.False(t, c.CheckAndRecord("alice", "hi"), "expired body is allowed again")

	sched.Advance(time.Minute)
	require.Nil(t, c.Contents("alice"))
	sh := c.senders.shard("alice")
	sh.mu.Lock()
	_, present := sh.m["alice"]
	sh.mu.Unlock()
	require.False(t, present, "an empty collection is removed")
}

func TestSpamCache_ExpiryRemovesExactEntry(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewSpamCache(time.Second, sched)

	require.False(t, c.CheckAndRecord("alice", "one"))
	sh := c.senders.shard("alice")
	sh.mu.Lock()
	first := sh.m["alice"][0]
	sh.mu.Unlock()

	sched.Advance(time.Second)
	require.False(t, c.CheckAndRecord("alice", "one"))

	c.expire("alice", first)
	require.Equal(t, []string{"one"}, c.Contents("alice"), "a stale expiry leaves the new entry alone")
}

func TestSpamCache_Close(t *testing.T) {
	sched := testutils.NewFakeScheduler()
	c := NewSpamCache(time.Minute, sched)
	c.CheckAndRecord("alice", "a")
	c.CheckAndRecord("alice", "b")

	c.Close()
	require.Zero(t, sched.Pending())
	require.Nil(t, c.Contents("alice"))
	require.False(t, c.CheckAndRecord("alice", "a"))
	require.Nil(t, c.Contents("alice"))
}

func TestCaches_ConcurrentSenders(t *testing.T) {
	flood := NewFloodCache(time.Hour, nil)
	spam := NewSpamCache(time.Hour, nil)
	t.Cleanup(flood.Close)
	t.Cleanup(spam.Close)

	const senders = 64
	var g errgroup.Group
	for i := range senders {
		g.Go(func() error {
			id := fmt.Sprintf("sender-%d", i)
			if flood.CheckAndMark(id) {
				return fmt.Errorf("%s flagged on first message", id)
			}
			if !flood.CheckAndMark(id) {
				return fmt.Errorf("%s not flagged on second message", id)
			}
			for j := range 10 {
				if spam.CheckAndRecord(id, fmt.Sprint(j)) {
					return fmt.Errorf("%s: body %d flagged on first send", id, j)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := range senders {
		require.Len(t, spam.Contents(fmt.Sprintf("sender-%d", i)), 10)
	}
}

func TestCaches_RealTimers(t *testing.T) {
	flood := NewFloodCache(50*time.Millisecond, nil)
	spam := NewSpamCache(50*time.Millisecond, nil)
	t.Cleanup(flood.Close)
	t.Cleanup(spam.Close)

	require.False(t, flood.CheckAndMark("alice"))
	require.False(t, spam.CheckAndRecord("alice", "hi"))
	require.Eventually(t, func() bool {
		return !flood.Marked("alice") && spam.Contents("alice") == nil
	}, 2*time.Second, 10*time.Millisecond)
}
