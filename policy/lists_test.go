package policy

import (
	"testing"

	"chatguard/config"

	"github.com/stretchr/testify/require"
)

func TestBuildLists_DropsInvalidEntries(t *testing.T) {
	l, warnings := BuildLists(config.ListsConfig{
		AllowedDomains:    []string{"Example.COM", "not a domain", "sub.example.org"},
		URLsWhitelist:     []string{"Example.com/Rules", " "},
		IPsWhitelist:      []string{"10.0.0.1", "999.1.1.1", "::1", " 8.8.8.8 "},
		WordsBlacklist:    []string{" Bad ", "", "   ", "worse"},
		MessagesWhitelist: []string{"GG"},
	}, false)

	require.Len(t, warnings, 6)
	require.Equal(t, []string{"example.com", "sub.example.org"}, l.AllowedDomains)
	require.Equal(t, []string{"example.com/rules"}, l.URLsWhitelist)
	require.Equal(t, []string{"10.0.0.1", "8.8.8.8"}, l.IPsWhitelist)
	require.Equal(t, []string{" bad ", "worse"}, l.Words)
	require.Len(t, l.Patterns, len(l.Words))
	for i, p := range l.Patterns {
		require.Equal(t, l.Words[i], p.Source)
	}
	require.Equal(t, []string{"gg"}, l.MessagesWhitelist)
}

func TestBuildLists_LeetWords(t *testing.T) {
	l, warnings := BuildLists(config.ListsConfig{WordsBlacklist: []string{"b00b"}}, true)
	require.Empty(t, warnings)
	require.Equal(t, []string{"b00b"}, l.Words)
	require.True(t, l.Patterns[0].MatchString(Normalize("B0OB")))
}

func TestLists_Queries(t *testing.T) {
	l, _ := BuildLists(config.ListsConfig{
		AllowedDomains:    []string{"example.com"},
		URLsWhitelist:     []string{"docs.net/guide"},
		IPsWhitelist:      []string{"10.0.0.1"},
		MessagesWhitelist: []string{"gg"},
	}, false)

	require.True(t, l.DomainAllowed(Finding{Canonical: "example.com"}))
	require.True(t, l.DomainAllowed(Finding{Canonical: "example.com", Tail: "/anything"}))
	require.False(t, l.DomainAllowed(Finding{Canonical: "www.example.com"}), "allowed domains match exactly")
	require.True(t, l.DomainAllowed(Finding{Canonical: "docs.net", Tail: "/Guide"}))
	require.False(t, l.DomainAllowed(Finding{Canonical: "docs.net", Tail: "/other"}))
	require.False(t, l.DomainAllowed(Finding{Canonical: "docs.net"}))

	require.True(t, l.IPAllowed(Finding{Canonical: "10.0.0.1"}))
	require.False(t, l.IPAllowed(Finding{Canonical: "10.0.0.2"}))

	require.True(t, l.MessageWhitelisted("GG"))
	require.False(t, l.MessageWhitelisted("gg wp"))
}
