package policy

import (
	"strings"
)

// Sender is the author of a chat message.
type Sender struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Overrides ReasonSet `json:"overrides,omitempty"`
}

// Decision is the outcome of an evaluation. The zero value allows the message.
type Decision struct {
	Reason Reason `json:"reason"`
	// Trigger is the offending text as it appeared in the message
	// (the domain, the address, the matched span).
	Trigger string `json:"trigger,omitempty"`
	// Canonical is the normalised form of Trigger that was looked up in the lists.
	Canonical string `json:"canonical,omitempty"`
	// Pattern is the blacklist entry that matched, for SWEAR.
	Pattern string `json:"pattern,omitempty"`
	// Start and End delimit Trigger in the raw message, in bytes. Both are
	// zero when the span is not known.
	Start int `json:"-"`
	End   int `json:"-"`
}

func (d Decision) Allowed() bool { return d.Reason == ReasonNone }

// Highlight wraps the offending span of message with open and close. The
// message is returned unchanged when the decision carries no usable span.
func (d Decision) Highlight(message, open, close string) string {
	if d.End <= d.Start || d.Start < 0 || d.End > len(message) {
		return message
	}
	var b strings.Builder
	b.Grow(len(message) + len(open) + len(close))
	b.WriteString(message[:d.Start])
	b.WriteString(open)
	b.WriteString(message[d.Start:d.End])
	b.WriteString(close)
	b.WriteString(message[d.End:])
	return b.String()
}

// Evaluator classifies a message for the reasons it owns.
type Evaluator interface {
	// Reasons lists the reasons this evaluator may return.
	Reasons() ReasonSet
	// TryClassify returns the first reason that applies, honouring bypass.
	TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool)
}

// Capabilities tells whether a sender may skip a given check.
type Capabilities interface {
	HasOverride(sender Sender, reason Reason) bool
}

// NameDirectory lists the display names of currently known senders.
type NameDirectory interface {
	DisplayNames() []string
}

// TLDSet answers whether a top-level domain is recognised.
type TLDSet interface {
	IsRecognized(tld string) bool
}

// DeclaredOverrides grants the overrides carried by the sender itself.
type DeclaredOverrides struct{}

func (DeclaredOverrides) HasOverride(sender Sender, reason Reason) bool {
	return sender.Overrides.Has(reason)
}

// NoNames is a NameDirectory without names.
type NoNames struct{}

func (NoNames) DisplayNames() []string { return nil }

// skip reports whether a check is excluded for this sender and call.
func skip(caps Capabilities, sender Sender, bypass ReasonSet, r Reason) bool {
	if bypass.Has(r) {
		return true
	}
	return caps != nil && caps.HasOverride(sender, r)
}
