package policy

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// Reason identifies why a message is denied. The zero value means the
// message is allowed.
type Reason int

const (
	ReasonNone Reason = iota
	BlankMessage
	Caps
	Flood
	Format
	IPAddress
	Mute
	MuteAll
	Spam
	Swear
	URL
	Vanish
)

// Handler names the subsystem that owns a check.
const (
	HandlerChat       = "chat"
	HandlerModeration = "moderation"
	HandlerFormat     = "format"
	HandlerMute       = "mute"
	HandlerVanish     = "vanish"
)

type reasonInfo struct {
	id         string
	messageKey string
	handler    string
}

// reasons is indexed by Reason and lists the set in its declared order.
var reasons = [...]reasonInfo{
	ReasonNone:   {},
	BlankMessage: {"BLANK_MESSAGE", "chat.deny.blank-message", HandlerChat},
	Caps:         {"CAPS", "moderation.deny.caps", HandlerModeration},
	Flood:        {"FLOOD", "moderation.deny.flood", HandlerModeration},
	Format:       {"FORMAT", "format.deny.format", HandlerFormat},
	IPAddress:    {"IP_ADDRESS", "moderation.deny.ip-address", HandlerModeration},
	Mute:         {"MUTE", "mute.deny.muted", HandlerMute},
	MuteAll:      {"MUTEALL", "mute.deny.mute-all", HandlerMute},
	Spam:         {"SPAM", "moderation.deny.spam", HandlerModeration},
	Swear:        {"SWEAR", "moderation.deny.swear", HandlerModeration},
	URL:          {"URL", "moderation.deny.url", HandlerModeration},
	Vanish:       {"VANISH", "vanish.deny.vanished", HandlerVanish},
}

// evaluationOrder is the priority in which the chain consults the reasons.
// The engine's own checks run between BLANK_MESSAGE and the externally
// owned reasons, which keep their declared order.
var evaluationOrder = [...]Reason{
	BlankMessage,
	URL,
	IPAddress,
	Swear,
	Caps,
	Flood,
	Spam,
	Format,
	Mute,
	MuteAll,
	Vanish,
}

var evaluationRank = func() map[Reason]int {
	m := make(map[Reason]int, len(evaluationOrder))
	for i, r := range evaluationOrder {
		m[r] = i
	}
	return m
}()

// AllReasons returns every reason in declared order.
func AllReasons() []Reason {
	out := make([]Reason, 0, len(reasons)-1)
	for r := BlankMessage; r <= Vanish; r++ {
		out = append(out, r)
	}
	return out
}

// EvaluationOrder returns every reason in the order the chain evaluates them.
func EvaluationOrder() []Reason {
	out := make([]Reason, len(evaluationOrder))
	copy(out, evaluationOrder[:])
	return out
}

func (r Reason) valid() bool { return r > ReasonNone && r <= Vanish }

// ID is the stable identifier, e.g. "IP_ADDRESS".
func (r Reason) ID() string {
	if !r.valid() {
		return ""
	}
	return reasons[r].id
}

// MessageKey is the lookup key for the human-readable explanation.
func (r Reason) MessageKey() string {
	if !r.valid() {
		return ""
	}
	return reasons[r].messageKey
}

// Handler names the owner of the check.
func (r Reason) Handler() string {
	if !r.valid() {
		return ""
	}
	return reasons[r].handler
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "NONE"
	}
	if !r.valid() {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasons[r].id
}

func (r Reason) MarshalText() ([]byte, error) {
	if r == ReasonNone {
		return []byte{}, nil
	}
	if !r.valid() {
		return nil, fmt.Errorf("invalid reason %d", int(r))
	}
	return []byte(reasons[r].id), nil
}

func (r *Reason) UnmarshalText(text []byte) error {
	parsed, err := ParseReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReason resolves a reason ID, case-insensitively.
func ParseReason(id string) (Reason, error) {
	id = strings.TrimSpace(id)
	for r := BlankMessage; r <= Vanish; r++ {
		if strings.EqualFold(reasons[r].id, id) {
			return r, nil
		}
	}
	return ReasonNone, fmt.Errorf("unknown deny reason %q", id)
}

// ReasonSet is a set of reasons, used for bypass sets and sender overrides.
type ReasonSet uint16

// NewReasonSet builds a set from the given reasons.
func NewReasonSet(rs ...Reason) ReasonSet {
	var s ReasonSet
	for _, r := range rs {
		s = s.With(r)
	}
	return s
}

// FullReasonSet contains every reason.
func FullReasonSet() ReasonSet {
	return NewReasonSet(AllReasons()...)
}

// ParseReasonSet resolves a list of reason IDs. Unknown IDs are an error.
func ParseReasonSet(ids []string) (ReasonSet, error) {
	var s ReasonSet
	for _, id := range ids {
		r, err := ParseReason(id)
		if err != nil {
			return 0, err
		}
		s = s.With(r)
	}
	return s, nil
}

func (s ReasonSet) With(r Reason) ReasonSet {
	if !r.valid() {
		return s
	}
	return s | 1<<uint(r)
}

func (s ReasonSet) Has(r Reason) bool {
	return r.valid() && s&(1<<uint(r)) != 0
}

// HasAll reports whether every reason of other is in s.
func (s ReasonSet) HasAll(other ReasonSet) bool {
	return s&other == other
}

func (s ReasonSet) Len() int { return bits.OnesCount16(uint16(s)) }

// Reasons lists the members in declared order.
func (s ReasonSet) Reasons() []Reason {
	var out []Reason
	for r := BlankMessage; r <= Vanish; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s ReasonSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, s.Len())
	for _, r := range s.Reasons() {
		ids = append(ids, r.ID())
	}
	return json.Marshal(ids)
}

func (s *ReasonSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	parsed, err := ParseReasonSet(ids)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
