package policy

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"chatguard/store"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	muteCacheSize     = 8192
	muteCacheTTL      = 30 * time.Second
	muteLookupTimeout = 200 * time.Millisecond
)

// MuteFilter denies messages from senders with an active mute record.
// Lookups are cached briefly and concurrent lookups for one sender share a
// single store call. A failing store lets the message through.
type MuteFilter struct {
	store store.Store
	caps  Capabilities
	cache *lru.LRU[string, bool]
	sf    singleflight.Group
}

func NewMuteFilter(s store.Store, caps Capabilities) *MuteFilter {
	return &MuteFilter{
		store: s,
		caps:  caps,
		cache: lru.NewLRU[string, bool](muteCacheSize, nil, muteCacheTTL),
	}
}

func (f *MuteFilter) Reasons() ReasonSet { return NewReasonSet(Mute) }

func (f *MuteFilter) isMuted(ctx context.Context, senderID string) (bool, error) {
	if muted, ok := f.cache.Get(senderID); ok {
		return muted, nil
	}

	v, err, _ := f.sf.Do(senderID, func() (any, error) {
		if muted, ok := f.cache.Get(senderID); ok {
			return muted, nil
		}
		muted, err := f.store.IsSenderMuted(ctx, senderID)
		if err != nil {
			return false, err
		}
		f.cache.Add(senderID, muted)
		return muted, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (f *MuteFilter) TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool) {
	if skip(f.caps, sender, bypass, Mute) {
		return Decision{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), muteLookupTimeout)
	defer cancel()

	muted, err := f.isMuted(ctx, sender.ID)
	if err != nil {
		slog.Error("Failed to check mute status, allowing (fail-open)", "sender_id", sender.ID, "error", err)
		return Decision{}, false
	}
	if !muted {
		return Decision{}, false
	}
	return Decision{Reason: Mute}, true
}

// Invalidate forgets the cached state of senderID, after a mute or unmute.
func (f *MuteFilter) Invalidate(senderID string) {
	f.cache.Remove(senderID)
}

// MuteAllFilter denies every message while the chat is muted. Senders with
// the MUTEALL override may still speak.
type MuteAllFilter struct {
	enabled atomic.Bool
	caps    Capabilities
}

func NewMuteAllFilter(caps Capabilities) *MuteAllFilter {
	return &MuteAllFilter{caps: caps}
}

func (f *MuteAllFilter) Reasons() ReasonSet { return NewReasonSet(MuteAll) }

func (f *MuteAllFilter) SetEnabled(enabled bool) {
	if f.enabled.Swap(enabled) != enabled {
		slog.Info("Chat mute changed", "muted", enabled)
	}
}

func (f *MuteAllFilter) Enabled() bool { return f.enabled.Load() }

func (f *MuteAllFilter) TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool) {
	if !f.enabled.Load() || skip(f.caps, sender, bypass, MuteAll) {
		return Decision{}, false
	}
	return Decision{Reason: MuteAll}, true
}
