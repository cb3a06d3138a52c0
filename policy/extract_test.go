package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testTLDs = NewStaticTLDs([]string{"com", "net", "org", "io"})

func domains(message string, tlds TLDSet) []string {
	var out []string
	for f := range Domains(message, tlds) {
		out = append(out, f.Canonical)
	}
	return out
}

func ips(message string) []string {
	var out []string
	for f := range IPv4s(message) {
		out = append(out, f.Canonical)
	}
	return out
}

func TestDomains(t *testing.T) {
	testCases := []struct {
		name    string
		message string
		want    []string
	}{
		{name: "plain", message: "visit example.com now", want: []string{"example.com"}},
		{name: "upper case", message: "EXAMPLE.COM", want: []string{"example.com"}},
		{name: "subdomain", message: "www.example.com", want: []string{"www.example.com"}},
		{name: "bracketed dot", message: "example (dot) com", want: []string{"example.com"}},
		{name: "square bracketed dot", message: "example[DOT]com", want: []string{"example.com"}},
		{name: "spaced dot", message: "example . com", want: []string{"example.com"}},
		{name: "comma", message: "example,com", want: []string{"example.com"}},
		{name: "hyphen kept", message: "my-site.net", want: []string{"my-site.net"}},
		{name: "unknown tld", message: "evil.example", want: nil},
		{name: "numbers only", message: "version 1.2", want: nil},
		{name: "several", message: "a.com and b.org", want: []string{"a.com", "b.org"}},
		{name: "no domain", message: "hello there", want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, domains(tc.message, testTLDs))
		})
	}
}

func TestDomains_FindingDetails(t *testing.T) {
	msg := "see Example.com/path?x=1 ok"
	var got []Finding
	for f := range Domains(msg, testTLDs) {
		got = append(got, f)
	}
	require.Len(t, got, 1)
	require.Equal(t, "Example.com", got[0].Text)
	require.Equal(t, "example.com", got[0].Canonical)
	require.Equal(t, "/path?x=1", got[0].Tail)
	require.Equal(t, "Example.com", msg[got[0].Start:got[0].End])
}

func TestDomains_StopsWhenConsumerStops(t *testing.T) {
	n := 0
	for range Domains("a.com b.com c.com", testTLDs) {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestPublicSuffixTLDs(t *testing.T) {
	var tlds PublicSuffixTLDs
	require.True(t, tlds.IsRecognized("com"))
	require.True(t, tlds.IsRecognized("ORG"))
	require.True(t, tlds.IsRecognized("de"))
	require.False(t, tlds.IsRecognized("example"))
	require.False(t, tlds.IsRecognized("1"))
	require.False(t, tlds.IsRecognized(""))
	require.False(t, tlds.IsRecognized("co.uk"))

	require.Equal(t, []string{"example.com"}, domains("example.com", tlds))
	require.Empty(t, domains("evil.example", tlds))
}

func TestIPv4s(t *testing.T) {
	testCases := []struct {
		name    string
		message string
		want    []string
	}{
		{name: "plain", message: "connect to 10.0.0.1 now", want: []string{"10.0.0.1"}},
		{name: "edges", message: "0.0.0.0 255.255.255.255", want: []string{"0.0.0.0", "255.255.255.255"}},
		{name: "out of range", message: "999.999.999.999", want: nil},
		{name: "octet over 255", message: "256.1.1.1", want: nil},
		{name: "last octet over 255", message: "1.2.3.456", want: nil},
		{name: "spaced separators", message: "10 . 0 . 0 . 1", want: []string{"10.0.0.1"}},
		{name: "comma separators", message: "10,0,0,1", want: []string{"10.0.0.1"}},
		{name: "bracketed dots", message: "10(dot)0[dot]0{dot}1", want: []string{"10.0.0.1"}},
		{name: "with port", message: "play.at 1.2.3.4:25565", want: []string{"1.2.3.4"}},
		{name: "trailing full stop", message: "it is 1.2.3.4.", want: []string{"1.2.3.4"}},
		{name: "five groups", message: "1.2.3.4.5", want: nil},
		{name: "leading zero", message: "01.2.3.4", want: nil},
		{name: "several", message: "1.1.1.1 or 8.8.8.8", want: []string{"1.1.1.1", "8.8.8.8"}},
		{name: "too few groups", message: "1.2.3", want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ips(tc.message))
		})
	}
}

func TestIPv4s_Span(t *testing.T) {
	msg := "ip: 10 . 0 . 0 . 1!"
	var got []Finding
	for f := range IPv4s(msg) {
		got = append(got, f)
	}
	require.Len(t, got, 1)
	require.Equal(t, "10 . 0 . 0 . 1", got[0].Text)
	require.Equal(t, got[0].Text, msg[got[0].Start:got[0].End])
	require.Equal(t, "!", got[0].Tail)
}
