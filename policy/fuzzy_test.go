package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"h3ll0", "hello"},
		{"$h1t", "shit"},
		{"|<ill", "kill"},
		{"|\\/|e", "me"},
		{"ｗｏｒｄ", "word"},
		{"qq", "qq"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestCompileFuzzy_Matches(t *testing.T) {
	testCases := []struct {
		name    string
		word    string
		message string
		match   bool
	}{
		{name: "exact", word: "word", message: "a word here", match: true},
		{name: "case", word: "word", message: "WoRd", match: true},
		{name: "dashes", word: "word", message: "w-o-r-d", match: true},
		{name: "dots and spaces", word: "word", message: "w . o . r . d", match: true},
		{name: "digits between letters", word: "word", message: "w1o2r3d", match: true},
		{name: "repeated letters", word: "word", message: "wwoooorrrdddd", match: true},
		{name: "inside a longer word", word: "word", message: "swordfish", match: true},
		{name: "letter between letters", word: "word", message: "wand", match: false},
		{name: "substituted digit without leet", word: "word", message: "w0rd", match: false},
		{name: "left anchor blocks prefix", word: " word", message: "swordfish", match: false},
		{name: "left anchor allows start", word: " word", message: "wordfish", match: true},
		{name: "left anchor after punctuation", word: " word", message: "(word)", match: true},
		{name: "right anchor blocks suffix", word: "word ", message: "wordfish", match: false},
		{name: "right anchor allows end", word: "word ", message: "sword", match: true},
		{name: "both anchors", word: " word ", message: "my word!", match: true},
		{name: "both anchors inside word", word: " word ", message: "swords", match: false},
		{name: "unicode letters", word: "жопа", message: "ж-о-п-а", match: true},
		{name: "symbols only", word: "$$", message: "pay $$ now", match: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := CompileFuzzy(tc.word)
			require.NoError(t, err)
			require.Equal(t, tc.match, p.MatchString(tc.message), "pattern %s", p)
		})
	}
}

func TestCompileFuzzy_Span(t *testing.T) {
	p, err := CompileFuzzy(" bad ")
	require.NoError(t, err)
	require.Equal(t, " bad ", p.Source)

	msg := "so b.a.d!"
	start, end, ok := p.Find(msg)
	require.True(t, ok)
	require.Equal(t, "b.a.d", msg[start:end], "anchors are not part of the span")
}

func TestCompileFuzzy_Empty(t *testing.T) {
	_, err := CompileFuzzy("   ")
	require.Error(t, err)
}

func TestCompileFuzzy_LeetThroughNormalize(t *testing.T) {
	p, err := CompileFuzzy("word")
	require.NoError(t, err)
	require.False(t, p.MatchString("w0rd"))
	require.True(t, p.MatchString(Normalize("w0rd")))
	require.True(t, p.MatchString(Normalize("\\^/-0-|2-|)")))
}

func TestNormalizeIndexed_MapsBackToInput(t *testing.T) {
	msg := "x |<1ll ｍe"
	out, idx := normalizeIndexed(msg)
	require.Equal(t, "x kill me", out)
	require.Len(t, idx, len(out)+1)

	start := 2
	end := start + len("kill")
	require.Equal(t, "|<1ll", msg[idx[start]:idx[end]])
	require.Equal(t, "ｍe", msg[idx[len(out)-2]:idx[len(out)]])
}
