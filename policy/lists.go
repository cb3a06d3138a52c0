package policy

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
	"strings"

	"chatguard/config"
)

var allowedDomainRe = regexp.MustCompile(`^[\p{L}\p{N}-]+(?:\.[\p{L}\p{N}-]+)+$`)

// Lists holds the lower-cased operator lists and the patterns compiled from
// the word blacklist. Words and Patterns are paired by index.
type Lists struct {
	AllowedDomains    []string
	URLsWhitelist     []string
	IPsWhitelist      []string
	Words             []string
	Patterns          []*FuzzyPattern
	MessagesWhitelist []string
}

// BuildLists validates cfg entry by entry. Rejected entries are dropped and
// reported as warnings. When leet is set, blacklist words are compiled in
// their normalised form so they line up with normalised messages.
func BuildLists(cfg config.ListsConfig, leet bool) (*Lists, []error) {
	var warnings []error
	l := &Lists{}

	for _, d := range cfg.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if !allowedDomainRe.MatchString(d) {
			warnings = append(warnings, fmt.Errorf("lists.allowed_domains: %q is not a domain, ignored", d))
			continue
		}
		l.AllowedDomains = append(l.AllowedDomains, d)
	}

	for _, u := range cfg.URLsWhitelist {
		u = strings.ToLower(strings.TrimSpace(u))
		if u == "" {
			warnings = append(warnings, fmt.Errorf("lists.urls_whitelist: empty entry ignored"))
			continue
		}
		l.URLsWhitelist = append(l.URLsWhitelist, u)
	}

	for _, ip := range cfg.IPsWhitelist {
		ip = strings.TrimSpace(ip)
		addr, err := netip.ParseAddr(ip)
		if err != nil || !addr.Is4() {
			warnings = append(warnings, fmt.Errorf("lists.ips_whitelist: %q is not an IPv4 address, ignored", ip))
			continue
		}
		l.IPsWhitelist = append(l.IPsWhitelist, addr.String())
	}

	for _, w := range cfg.WordsBlacklist {
		w = strings.ToLower(w)
		src := w
		if leet {
			src = Normalize(w)
		}
		p, err := CompileFuzzy(src)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("lists.words_blacklist: %q ignored: %w", w, err))
			continue
		}
		p.Source = w
		l.Words = append(l.Words, w)
		l.Patterns = append(l.Patterns, p)
	}

	for _, m := range cfg.MessagesWhitelist {
		l.MessagesWhitelist = append(l.MessagesWhitelist, strings.ToLower(m))
	}

	return l, warnings
}

// DomainAllowed reports whether a domain finding is covered by the allowed
// domains or, together with its tail, by the URL whitelist.
func (l *Lists) DomainAllowed(f Finding) bool {
	if slices.Contains(l.AllowedDomains, f.Canonical) {
		return true
	}
	return slices.Contains(l.URLsWhitelist, f.Canonical+strings.ToLower(f.Tail))
}

func (l *Lists) IPAllowed(f Finding) bool {
	return slices.Contains(l.IPsWhitelist, f.Canonical)
}

// MessageWhitelisted reports whether message is exempt from the spam check.
func (l *Lists) MessageWhitelisted(message string) bool {
	return slices.Contains(l.MessagesWhitelist, strings.ToLower(message))
}
