package policy

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// leetVariants lists, per letter, the strings that are read as that letter.
// Letters without known variants are absent.
var leetVariants = []struct {
	letter   string
	variants []string
}{
	{"a", []string{"4", "@", "/-\\", "α", "а"}},
	{"b", []string{"|3", "8", "ß"}},
	{"c", []string{"(", "<", "¢", "©"}},
	{"d", []string{"|)", "[)"}},
	{"e", []string{"3", "€", "ë", "е"}},
	{"f", []string{"ƒ"}},
	{"g", []string{"6", "9"}},
	{"h", []string{"|-|", "#"}},
	{"i", []string{"1", "!", "¡", "ï", "í"}},
	{"j", []string{"_|"}},
	{"k", []string{"|<", "|{"}},
	{"l", []string{"|_", "£"}},
	{"m", []string{"|\\/|", "/\\/\\"}},
	{"n", []string{"|\\|", "/\\/", "ñ"}},
	{"o", []string{"0", "ø", "ö", "ó", "о"}},
	{"p", []string{"|*", "|>", "ρ"}},
	{"r", []string{"|2", "®"}},
	{"s", []string{"5", "$", "§"}},
	{"t", []string{"7", "+", "†"}},
	{"u", []string{"µ", "ü", "ú"}},
	{"v", []string{"\\/"}},
	{"w", []string{"\\^/", "ω"}},
	{"x", []string{"><", "×"}},
	{"y", []string{"¥", "ý"}},
	{"z", []string{"2"}},
}

type leetRule struct {
	from, to string
}

// leetRules is the replacement sequence applied by Normalize. Multi-rune
// variants go first so that "|<" is not broken up by the single "<"; within
// each group the letter order and the per-letter order above are kept.
var leetRules = func() []leetRule {
	var multi, single []leetRule
	for _, lv := range leetVariants {
		for _, v := range lv.variants {
			if utf8.RuneCountInString(v) > 1 {
				multi = append(multi, leetRule{v, lv.letter})
			} else {
				single = append(single, leetRule{v, lv.letter})
			}
		}
	}
	return append(multi, single...)
}()

// Normalize rewrites leet-speak and decorative variants into plain letters.
// Full-width forms are folded to their narrow equivalents first.
func Normalize(message string) string {
	out, _ := normalizeIndexed(message)
	return out
}

// normalizeIndexed is Normalize that also maps every byte of the result to
// the offset in message it came from. The map has one extra trailing entry,
// len(message), so that end offsets translate as well.
func normalizeIndexed(message string) (string, []int) {
	var b strings.Builder
	b.Grow(len(message))
	idx := make([]int, 0, len(message)+1)
	for i := 0; i < len(message); {
		r, size := utf8.DecodeRuneInString(message[i:])
		folded := message[i : i+size]
		if r != utf8.RuneError {
			folded = width.Fold.String(folded)
		}
		b.WriteString(folded)
		for range len(folded) {
			idx = append(idx, i)
		}
		i += size
	}
	idx = append(idx, len(message))
	out := b.String()

	for _, rule := range leetRules {
		if !strings.Contains(out, rule.from) {
			continue
		}
		var nb strings.Builder
		nb.Grow(len(out))
		nidx := make([]int, 0, len(idx))
		pos := 0
		for {
			j := strings.Index(out[pos:], rule.from)
			if j < 0 {
				break
			}
			nb.WriteString(out[pos : pos+j])
			nidx = append(nidx, idx[pos:pos+j]...)
			nb.WriteString(rule.to)
			for range len(rule.to) {
				nidx = append(nidx, idx[pos+j])
			}
			pos += j + len(rule.from)
		}
		nb.WriteString(out[pos:])
		nidx = append(nidx, idx[pos:]...)
		out, idx = nb.String(), nidx
	}
	return out, idx
}
