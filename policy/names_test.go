package policy

import (
	"testing"
	"time"

	"chatguard/config"

	"github.com/stretchr/testify/require"
)

func TestNameRegistry(t *testing.T) {
	r := NewNameRegistry(&config.NamesConfig{CacheSize: 2, TTL: time.Hour})

	r.Observe(Sender{ID: "1", Name: "Alice"})
	r.Observe(Sender{ID: "2", Name: "  "})
	r.Observe(Sender{Name: "Nobody"})
	require.ElementsMatch(t, []string{"Alice"}, r.DisplayNames())

	r.Observe(Sender{ID: "1", Name: "Alicia"})
	r.Observe(Sender{ID: "3", Name: "Carol"})
	require.ElementsMatch(t, []string{"Alicia", "Carol"}, r.DisplayNames())

	r.Observe(Sender{ID: "4", Name: "Dave"})
	require.ElementsMatch(t, []string{"Carol", "Dave"}, r.DisplayNames(), "the oldest entry is evicted")

	r.Forget("3")
	require.ElementsMatch(t, []string{"Dave"}, r.DisplayNames())
}

func TestNameRegistry_UpdateConfigKeepsNames(t *testing.T) {
	r := NewNameRegistry(&config.NamesConfig{CacheSize: 10, TTL: time.Hour})
	r.Observe(Sender{ID: "1", Name: "Alice"})
	r.Observe(Sender{ID: "2", Name: "Bob"})

	cfg := config.Default()
	cfg.Names = config.NamesConfig{CacheSize: 10, TTL: time.Minute}
	require.NoError(t, r.UpdateConfig(cfg))
	require.ElementsMatch(t, []string{"Alice", "Bob"}, r.DisplayNames())
}

func TestNameRegistry_FeedsCapsCheck(t *testing.T) {
	r := NewNameRegistry(&config.NamesConfig{CacheSize: 10, TTL: time.Hour})
	e, _ := newTestEngine(t, WithNames(r))

	d, _ := e.TryClassify(alice, "@SUPERNOVA123 hi", 0)
	require.Equal(t, Caps, d.Reason)

	r.Observe(Sender{ID: "nova", Name: "SuperNova123"})
	d, _ = e.TryClassify(Sender{ID: "bob"}, "@SUPERNOVA123 hi", 0)
	require.Equal(t, ReasonNone, d.Reason)
}
