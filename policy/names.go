package policy

import (
	"strings"
	"sync"

	"chatguard/config"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// NameRegistry remembers the display names of recently active senders.
// Entries expire after the configured TTL.
type NameRegistry struct {
	mu    sync.RWMutex // guards the names pointer; the LRU locks itself
	names *lru.LRU[string, string]
}

func NewNameRegistry(cfg *config.NamesConfig) *NameRegistry {
	return &NameRegistry{names: lru.NewLRU[string, string](cfg.CacheSize, nil, cfg.TTL)}
}

func (r *NameRegistry) Name() string { return "NameRegistry" }

// UpdateConfig resizes the registry. Known names are carried over.
func (r *NameRegistry) UpdateConfig(cfg *config.Config) error {
	next := lru.NewLRU[string, string](cfg.Names.CacheSize, nil, cfg.Names.TTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.names.Keys() {
		if name, ok := r.names.Peek(id); ok {
			next.Add(id, name)
		}
	}
	r.names = next
	return nil
}

// Observe records the display name of sender. Empty names are ignored.
func (r *NameRegistry) Observe(sender Sender) {
	name := strings.TrimSpace(sender.Name)
	if sender.ID == "" || name == "" {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.names.Add(sender.ID, name)
}

func (r *NameRegistry) Forget(senderID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.names.Remove(senderID)
}

func (r *NameRegistry) DisplayNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names.Values()
}
