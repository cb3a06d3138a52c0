package policy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isNameRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// CapsLength counts the upper-case letters of message. Tokens naming a
// known sender ("@Steve", "STEVE!") are left out.
func CapsLength(message string, names []string) int {
	count := 0
	for _, token := range strings.Split(message, " ") {
		token = strings.TrimPrefix(token, "@")
		if isKnownName(token, names) {
			continue
		}
		for _, r := range token {
			if unicode.IsUpper(r) {
				count++
			}
		}
	}
	return count
}

func isKnownName(token string, names []string) bool {
	name := strings.TrimRightFunc(token, func(r rune) bool { return !isNameRune(r) })
	if name == "" {
		return false
	}
	for _, n := range names {
		if strings.EqualFold(name, n) {
			return true
		}
	}
	return false
}

// CapsPercentage is CapsLength as a share of the message's characters.
// An empty message has no capitals.
func CapsPercentage(message string, names []string) int {
	n := utf8.RuneCountInString(message)
	if n == 0 {
		return 0
	}
	return CapsLength(message, names) * 100 / n
}
