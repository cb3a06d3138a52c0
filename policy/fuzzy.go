package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	leftBoundary  = `(?:^|[^\p{L}\p{N}_])`
	rightBoundary = `(?:$|[^\p{L}\p{N}_])`
	noise         = `[^\p{L}]`
)

// FuzzyPattern matches a blacklisted word through noise: "w-o-r-d",
// "W.O.R.D" and "wooord" all match the word "word".
type FuzzyPattern struct {
	// Source is the blacklist entry the pattern was compiled from.
	Source string
	re     *regexp.Regexp
}

// CompileFuzzy builds the pattern for one blacklist entry. A leading space
// in word anchors the pattern to a word boundary on the left, a trailing
// space on the right. Characters other than letters are not part of the
// pattern; an entry without letters is matched literally.
func CompileFuzzy(word string) (*FuzzyPattern, error) {
	trimmed := strings.TrimSpace(word)
	if trimmed == "" {
		return nil, errors.New("empty word")
	}

	var core strings.Builder
	letters := make([]rune, 0, len(trimmed))
	for _, r := range strings.ToLower(trimmed) {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		core.WriteString(regexp.QuoteMeta(trimmed))
	}
	for i, r := range letters {
		lit := regexp.QuoteMeta(string(r))
		if i == len(letters)-1 {
			core.WriteString(lit + "+")
			break
		}
		fmt.Fprintf(&core, "%s(?:%s|%s)*", lit, noise, lit)
	}

	var expr strings.Builder
	expr.WriteString("(?i)")
	if strings.HasPrefix(word, " ") {
		expr.WriteString(leftBoundary)
	}
	expr.WriteString("(" + core.String() + ")")
	if strings.HasSuffix(word, " ") {
		expr.WriteString(rightBoundary)
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", word, err)
	}
	return &FuzzyPattern{Source: word, re: re}, nil
}

// Find returns the byte span of the first match in s.
func (p *FuzzyPattern) Find(s string) (start, end int, ok bool) {
	m := p.re.FindStringSubmatchIndex(s)
	if m == nil {
		return 0, 0, false
	}
	return m[2], m[3], true
}

func (p *FuzzyPattern) MatchString(s string) bool { return p.re.MatchString(s) }

func (p *FuzzyPattern) String() string { return p.re.String() }
