package policy

import (
	"iter"
	"net/netip"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// Finding is a domain or address found in a message.
type Finding struct {
	// Text is the span as written, e.g. "Example (dot) COM".
	Text string
	// Canonical is the normalised form, e.g. "example.com".
	Canonical string
	// Tail is whatever immediately follows Text up to the next space.
	Tail       string
	Start, End int
}

const (
	domainLabel = `[\p{L}\p{N}-]+`
	bracketDot  = `\s*[(\[{]\s*(?i:dot)\s*[)\]}]\s*`
	domainSep   = `(?:` + bracketDot + `|\s+[.,]\s+|[.,])`
	ipOctet     = `(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)`
	ipSep       = `(?:` + bracketDot + `|\s*[.,]\s*)`
)

var (
	domainRe     = regexp.MustCompile(domainLabel + `(?:` + domainSep + domainLabel + `)+`)
	domainLastRe = regexp.MustCompile(domainSep + `(` + domainLabel + `)$`)
	bracketDotRe = regexp.MustCompile(bracketDot)
	ipRe         = regexp.MustCompile(ipOctet + ipSep + ipOctet + ipSep + ipOctet + ipSep + ipOctet)
)

// Domains yields every domain-shaped span of message whose top-level domain
// is recognised by tlds.
func Domains(message string, tlds TLDSet) iter.Seq[Finding] {
	return func(yield func(Finding) bool) {
		for _, loc := range domainRe.FindAllStringIndex(message, -1) {
			text := message[loc[0]:loc[1]]
			last := domainLastRe.FindStringSubmatchIndex(text)
			if last == nil {
				continue
			}
			tld := strings.ToLower(text[last[2]:last[3]])
			if tlds == nil || !tlds.IsRecognized(tld) {
				continue
			}
			f := Finding{
				Text:      text,
				Canonical: canonicalDomain(text[:last[0]], tld),
				Tail:      tailOf(message, loc[1]),
				Start:     loc[0],
				End:       loc[1],
			}
			if !yield(f) {
				return
			}
		}
	}
}

// canonicalDomain keeps letters, digits and hyphens of head and collapses
// every other run into a single dot.
func canonicalDomain(head, tld string) string {
	head = bracketDotRe.ReplaceAllString(head, ".")
	var b strings.Builder
	dot := false
	for _, r := range head {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			if dot && b.Len() > 0 {
				b.WriteByte('.')
			}
			dot = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		dot = true
	}
	if b.Len() == 0 {
		return tld
	}
	return b.String() + "." + tld
}

func tailOf(message string, end int) string {
	rest := message[end:]
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		return rest[:i]
	}
	return rest
}

// IPv4s yields every dotted-quad address in message. An address embedded
// in a longer run of digits and dots is not reported.
func IPv4s(message string) iter.Seq[Finding] {
	return func(yield func(Finding) bool) {
		pos := 0
		for pos < len(message) {
			loc := ipRe.FindStringIndex(message[pos:])
			if loc == nil {
				return
			}
			start, end := pos+loc[0], pos+loc[1]
			if !ipBounded(message, start, end) {
				pos = start + 1
				continue
			}
			canonical, ok := canonicalIPv4(message[start:end])
			if ok {
				f := Finding{
					Text:      message[start:end],
					Canonical: canonical,
					Tail:      tailOf(message, end),
					Start:     start,
					End:       end,
				}
				if !yield(f) {
					return
				}
			}
			pos = end
		}
	}
}

func ipBounded(message string, start, end int) bool {
	if start > 0 {
		if c := message[start-1]; isDigit(c) || c == '.' {
			return false
		}
	}
	if end < len(message) {
		if isDigit(message[end]) {
			return false
		}
		if message[end] == '.' && end+1 < len(message) && isDigit(message[end+1]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// canonicalIPv4 keeps the digits of text and folds each separator run
// into one dot.
func canonicalIPv4(text string) (string, bool) {
	text = bracketDotRe.ReplaceAllString(text, ".")
	var b strings.Builder
	sep := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if isDigit(c) {
			if sep && b.Len() > 0 {
				b.WriteByte('.')
			}
			sep = false
			b.WriteByte(c)
			continue
		}
		sep = true
	}
	addr, err := netip.ParseAddr(b.String())
	if err != nil || !addr.Is4() {
		return "", false
	}
	return addr.String(), true
}

// PublicSuffixTLDs recognises the ICANN top-level domains known to the
// public suffix list.
type PublicSuffixTLDs struct{}

func (PublicSuffixTLDs) IsRecognized(tld string) bool {
	tld = strings.ToLower(tld)
	if tld == "" || strings.Contains(tld, ".") || !utf8.ValidString(tld) {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(tld)
	return icann && suffix == tld
}

// StaticTLDs is a fixed, lower-case set of top-level domains.
type StaticTLDs map[string]struct{}

func NewStaticTLDs(tlds []string) StaticTLDs {
	s := make(StaticTLDs, len(tlds))
	for _, t := range tlds {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

func (s StaticTLDs) IsRecognized(tld string) bool {
	_, ok := s[strings.ToLower(tld)]
	return ok
}
