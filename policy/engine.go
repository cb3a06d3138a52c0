package policy

import (
	"log/slog"
	"sync/atomic"

	"chatguard/config"
)

// engineState is everything one load cycle produces. It is replaced as a
// whole on reload and never modified after publication, except for the
// caches, which synchronise themselves.
type engineState struct {
	mod   config.ModerationConfig
	lists *Lists
	tlds  TLDSet
	flood *FloodCache
	spam  *SpamCache
}

func (s *engineState) close() {
	s.flood.Close()
	s.spam.Close()
}

// Engine runs the content and rate checks: URL, IP_ADDRESS, SWEAR, CAPS,
// FLOOD and SPAM, in that order.
type Engine struct {
	caps  Capabilities
	names NameDirectory
	tlds  TLDSet
	sched Scheduler

	state atomic.Pointer[engineState]
}

type EngineOption func(*Engine)

func WithCapabilities(c Capabilities) EngineOption { return func(e *Engine) { e.caps = c } }
func WithNames(n NameDirectory) EngineOption       { return func(e *Engine) { e.names = n } }

// WithTLDs sets the TLD set used when the configuration lists none.
func WithTLDs(t TLDSet) EngineOption         { return func(e *Engine) { e.tlds = t } }
func WithScheduler(s Scheduler) EngineOption { return func(e *Engine) { e.sched = s } }

// NewEngine returns an engine without configuration. It allows everything
// until Load is called.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		caps:  DeclaredOverrides{},
		names: NoNames{},
		tlds:  PublicSuffixTLDs{},
		sched: SystemScheduler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "ModerationEngine" }

func (e *Engine) Reasons() ReasonSet {
	return NewReasonSet(URL, IPAddress, Swear, Caps, Flood, Spam)
}

// Load replaces the engine's configuration, lists and caches. Problems with
// individual settings or list entries are returned as warnings; the rest of
// the configuration is still applied. Rate-limit state starts empty.
func (e *Engine) Load(cfg *config.Config) []error {
	mod := cfg.Moderation
	warnings := mod.Sanitize()
	lists, listWarnings := BuildLists(cfg.Lists, mod.LeetFilter)
	warnings = append(warnings, listWarnings...)

	tlds := e.tlds
	if len(mod.RecognizedTLDs) > 0 {
		tlds = NewStaticTLDs(mod.RecognizedTLDs)
	}

	st := &engineState{
		mod:   mod,
		lists: lists,
		tlds:  tlds,
		flood: NewFloodCache(mod.FloodWindow(), e.sched),
		spam:  NewSpamCache(mod.SpamWindow(), e.sched),
	}
	if old := e.state.Swap(st); old != nil {
		old.close()
	}

	for _, w := range warnings {
		slog.Warn("Moderation configuration entry ignored", "warning", w)
	}
	slog.Debug("Moderation engine loaded",
		"allowed_domains", len(lists.AllowedDomains),
		"blacklisted_words", len(lists.Words),
		"flood_window", mod.FloodWindow(),
		"spam_window", mod.SpamWindow(),
	)
	return warnings
}

// Unload drops the configuration and clears both caches. Pending expiries
// are cancelled. Until the next Load every message is allowed.
func (e *Engine) Unload() {
	if old := e.state.Swap(nil); old != nil {
		old.close()
	}
}

func (e *Engine) UpdateConfig(cfg *config.Config) error {
	e.Load(cfg)
	return nil
}

// Lists returns the lists of the current load cycle, or nil when unloaded.
func (e *Engine) Lists() *Lists {
	if st := e.state.Load(); st != nil {
		return st.lists
	}
	return nil
}

func (e *Engine) TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool) {
	st := e.state.Load()
	if st == nil {
		return Decision{}, false
	}

	if st.mod.URLsPrevention && !skip(e.caps, sender, bypass, URL) {
		for f := range Domains(message, st.tlds) {
			if !st.lists.DomainAllowed(f) {
				return findingDecision(URL, f), true
			}
		}
	}

	if st.mod.IPsPrevention && !skip(e.caps, sender, bypass, IPAddress) {
		for f := range IPv4s(message) {
			if !st.lists.IPAllowed(f) {
				return findingDecision(IPAddress, f), true
			}
		}
	}

	if !skip(e.caps, sender, bypass, Swear) {
		if d, ok := e.swear(st, message); ok {
			return d, true
		}
	}

	if !skip(e.caps, sender, bypass, Caps) {
		names := e.names.DisplayNames()
		if CapsLength(message, names) > st.mod.MaxCapsLength &&
			CapsPercentage(message, names) > st.mod.MaxCapsPercent {
			return Decision{Reason: Caps}, true
		}
	}

	// The flood and spam checks record the message even when it passes,
	// so the next message is measured from this one.
	if !skip(e.caps, sender, bypass, Flood) {
		if st.flood.CheckAndMark(sender.ID) {
			return Decision{Reason: Flood}, true
		}
	}

	if !skip(e.caps, sender, bypass, Spam) && !st.lists.MessageWhitelisted(message) {
		if st.spam.CheckAndRecord(sender.ID, message) {
			return Decision{Reason: Spam, Trigger: message, Start: 0, End: len(message)}, true
		}
	}

	return Decision{}, false
}

func (e *Engine) swear(st *engineState, message string) (Decision, bool) {
	text, idx := message, []int(nil)
	if st.mod.LeetFilter {
		text, idx = normalizeIndexed(message)
	}
	for i, p := range st.lists.Patterns {
		start, end, ok := p.Find(text)
		if !ok {
			continue
		}
		if idx != nil {
			start, end = idx[start], idx[end]
		}
		return Decision{
			Reason:  Swear,
			Trigger: message[start:end],
			Pattern: st.lists.Words[i],
			Start:   start,
			End:     end,
		}, true
	}
	return Decision{}, false
}

func findingDecision(r Reason, f Finding) Decision {
	return Decision{Reason: r, Trigger: f.Text, Canonical: f.Canonical, Start: f.Start, End: f.End}
}
