package policy

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"chatguard/config"
)

// FormatCodes matches the formatting codes configured in [format].
// It is safe for concurrent use and can be reloaded.
type FormatCodes struct {
	re atomic.Pointer[regexp.Regexp]
}

func NewFormatCodes(cfg *config.FormatConfig) (*FormatCodes, error) {
	fc := &FormatCodes{}
	if err := fc.set(cfg.StripPattern); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FormatCodes) set(pattern string) error {
	if pattern == "" {
		fc.re.Store(nil)
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid format.strip_pattern: %w", err)
	}
	fc.re.Store(re)
	return nil
}

func (fc *FormatCodes) Name() string { return "FormatCodes" }

func (fc *FormatCodes) UpdateConfig(cfg *config.Config) error {
	return fc.set(cfg.Format.StripPattern)
}

// Strip removes every formatting code from message.
func (fc *FormatCodes) Strip(message string) string {
	re := fc.re.Load()
	if re == nil {
		return message
	}
	return re.ReplaceAllString(message, "")
}

// Find returns the span of the first formatting code in message.
func (fc *FormatCodes) Find(message string) (start, end int, ok bool) {
	re := fc.re.Load()
	if re == nil {
		return 0, 0, false
	}
	loc := re.FindStringIndex(message)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

// BlankMessageFilter denies messages with nothing left once formatting codes
// and whitespace are removed.
type BlankMessageFilter struct {
	codes *FormatCodes
	caps  Capabilities
}

func NewBlankMessageFilter(codes *FormatCodes, caps Capabilities) *BlankMessageFilter {
	return &BlankMessageFilter{codes: codes, caps: caps}
}

func (f *BlankMessageFilter) Reasons() ReasonSet { return NewReasonSet(BlankMessage) }

func (f *BlankMessageFilter) TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool) {
	if skip(f.caps, sender, bypass, BlankMessage) {
		return Decision{}, false
	}
	if strings.TrimSpace(f.codes.Strip(message)) != "" {
		return Decision{}, false
	}
	return Decision{Reason: BlankMessage}, true
}

// FormatFilter denies messages that use formatting codes.
type FormatFilter struct {
	codes *FormatCodes
	caps  Capabilities
}

func NewFormatFilter(codes *FormatCodes, caps Capabilities) *FormatFilter {
	return &FormatFilter{codes: codes, caps: caps}
}

func (f *FormatFilter) Reasons() ReasonSet { return NewReasonSet(Format) }

func (f *FormatFilter) TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool) {
	if skip(f.caps, sender, bypass, Format) {
		return Decision{}, false
	}
	start, end, ok := f.codes.Find(message)
	if !ok {
		return Decision{}, false
	}
	return Decision{Reason: Format, Trigger: message[start:end], Start: start, End: end}, true
}

// PredicateFilter turns a predicate owned elsewhere into an evaluator for a
// single reason.
type PredicateFilter struct {
	reason Reason
	caps   Capabilities
	denied func(sender Sender, message string) bool
}

func NewPredicateFilter(reason Reason, caps Capabilities, denied func(sender Sender, message string) bool) *PredicateFilter {
	return &PredicateFilter{reason: reason, caps: caps, denied: denied}
}

func (f *PredicateFilter) Reasons() ReasonSet { return NewReasonSet(f.reason) }

func (f *PredicateFilter) TryClassify(sender Sender, message string, bypass ReasonSet) (Decision, bool) {
	if skip(f.caps, sender, bypass, f.reason) || !f.denied(sender, message) {
		return Decision{}, false
	}
	return Decision{Reason: f.reason}, true
}
