package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_MuteAndUnmute(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	muted, err := s.IsSenderMuted(ctx, "alice")
	require.NoError(t, err)
	require.False(t, muted)

	require.NoError(t, s.MuteSender(ctx, "alice", time.Hour))
	muted, err = s.IsSenderMuted(ctx, "alice")
	require.NoError(t, err)
	require.True(t, muted)

	muted, err = s.IsSenderMuted(ctx, "bob")
	require.NoError(t, err)
	require.False(t, muted, "mutes are per sender")

	require.NoError(t, s.UnmuteSender(ctx, "alice"))
	muted, err = s.IsSenderMuted(ctx, "alice")
	require.NoError(t, err)
	require.False(t, muted)
}

func TestBadgerStore_MuteExpires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Badger TTLs have one-second resolution.
	require.NoError(t, s.MuteSender(ctx, "carol", time.Second))
	require.Eventually(t, func() bool {
		muted, err := s.IsSenderMuted(ctx, "carol")
		return err == nil && !muted
	}, 5*time.Second, 100*time.Millisecond)
}

func TestBadgerStore_RejectsNonPositiveDuration(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.MuteSender(context.Background(), "dave", 0))
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IsSenderMuted(ctx, "erin")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, s.MuteSender(ctx, "erin", time.Minute), context.Canceled)
}
