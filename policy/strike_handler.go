package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatguard/config"
	"chatguard/hook"
	"chatguard/store"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const muteTimeout = 5 * time.Second

// strikes is the violation history of one sender inside the strike window.
type strikes struct {
	count int
	first time.Time
}

// StrikeHandler mutes senders whose messages keep getting denied.
type StrikeHandler struct {
	mu       sync.Mutex
	cfg      config.StrikesConfig
	exclude  ReasonSet
	strikes  *lru.LRU[string, *strikes]
	cooldown *lru.LRU[string, struct{}]

	store   store.Store
	hook    hook.Runner
	onMuted func(senderID string)
	wg      sync.WaitGroup
}

// NewStrikeHandler returns a handler configured from cfg. onMuted, when not
// nil, is called after a sender has been muted.
func NewStrikeHandler(s store.Store, h hook.Runner, cfg *config.StrikesConfig, onMuted func(senderID string)) (*StrikeHandler, error) {
	sh := &StrikeHandler{store: s, hook: h, onMuted: onMuted}
	if err := sh.apply(cfg); err != nil {
		return nil, err
	}
	return sh, nil
}

func (h *StrikeHandler) apply(cfg *config.StrikesConfig) error {
	exclude, err := ParseReasonSet(cfg.ExcludeReasons)
	if err != nil {
		return err
	}
	h.cfg = *cfg
	h.exclude = exclude
	h.strikes = lru.NewLRU[string, *strikes](max(cfg.CacheSize, 1), nil, cfg.StrikeWindow)
	h.cooldown = lru.NewLRU[string, struct{}](max(cfg.CacheSize, 1), nil, cfg.CooldownDuration)
	return nil
}

func (h *StrikeHandler) Name() string { return "StrikeHandler" }

// UpdateConfig applies new settings. Strike counts start over.
func (h *StrikeHandler) UpdateConfig(cfg *config.Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.apply(&cfg.Strikes)
}

// HandleRejection counts a strike against the sender of a denied message.
func (h *StrikeHandler) HandleRejection(ctx context.Context, sender Sender, d Decision) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.cfg.Enabled || h.exclude.Has(d.Reason) {
		return
	}
	if _, onCooldown := h.cooldown.Get(sender.ID); onCooldown {
		return
	}

	st, ok := h.strikes.Get(sender.ID)
	if !ok {
		st = &strikes{first: time.Now()}
	}
	st.count++
	h.strikes.Add(sender.ID, st)

	if st.count < h.cfg.MaxStrikes {
		return
	}

	slog.Warn("Muting sender for repeated violations",
		"sender_id", sender.ID,
		"sender_name", sender.Name,
		"strike_count", st.count,
		"since", st.first,
		"last_reason", d.Reason.String(),
		"mute_duration", h.cfg.MuteDuration)

	h.strikes.Remove(sender.ID)
	h.cooldown.Add(sender.ID, struct{}{})

	h.wg.Add(1)
	go h.muteSender(context.WithoutCancel(ctx), sender.ID, d.Reason, h.cfg.MuteDuration)
}

func (h *StrikeHandler) muteSender(ctx context.Context, senderID string, reason Reason, d time.Duration) {
	defer h.wg.Done()

	muteCtx, cancel := context.WithTimeout(ctx, muteTimeout)
	defer cancel()

	if err := h.store.MuteSender(muteCtx, senderID, d); err != nil {
		slog.Error("Failed to auto-mute sender", "sender_id", senderID, "error", err)
		return
	}
	if h.onMuted != nil {
		h.onMuted(senderID)
	}
	if h.hook != nil {
		if err := h.hook.Run(ctx, senderID, reason.String(), d); err != nil {
			slog.Error("Mute hook failed", "sender_id", senderID, "error", err)
		}
	}
}

// Wait blocks until every pending mute has finished.
func (h *StrikeHandler) Wait() {
	h.wg.Wait()
}
