package testutils

import (
	"context"
	"sync"
	"time"

	"chatguard/store"
)

var (
	_ store.Store = (*InMemoryStore)(nil)
	_ store.Store = (*MockStore)(nil)
	_ store.Store = (*MockStoreWithSignal)(nil)
)

// InMemoryStore is a store.Store that keeps mutes in a map and honours
// their durations.
type InMemoryStore struct {
	mu    sync.RWMutex
	muted map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		muted: make(map[string]time.Time),
	}
}

func (s *InMemoryStore) IsSenderMuted(ctx context.Context, senderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, found := s.muted[senderID]
	if found && time.Now().After(until) {
		delete(s.muted, senderID)
		return false, nil
	}
	return found, nil
}

func (s *InMemoryStore) MuteSender(ctx context.Context, senderID string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted[senderID] = time.Now().Add(duration)
	return nil
}

func (s *InMemoryStore) UnmuteSender(ctx context.Context, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.muted, senderID)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// MockStore counts lookups and can be told to fail.
type MockStore struct {
	mu          sync.RWMutex
	muted       map[string]bool
	calls       int
	errToReturn error
}

func NewMockStore() *MockStore {
	return &MockStore{muted: make(map[string]bool)}
}

func (s *MockStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errToReturn = err
}

func (s *MockStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errToReturn = nil
}

func (s *MockStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *MockStore) IsSenderMuted(ctx context.Context, senderID string) (bool, error) {
	s.mu.Lock()
	s.calls++
	err := s.errToReturn
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted[senderID], nil
}

func (s *MockStore) MuteSender(ctx context.Context, senderID string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return s.errToReturn
	}
	s.muted[senderID] = true
	return nil
}

func (s *MockStore) UnmuteSender(ctx context.Context, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return s.errToReturn
	}
	delete(s.muted, senderID)
	return nil
}

func (s *MockStore) Close() error {
	if s.errToReturn != nil {
		return s.errToReturn
	}
	return nil
}

// MockStoreWithSignal sends the sender ID on MuteSignal for every mute, so
// tests can wait for asynchronous mutes without sleeping.
type MockStoreWithSignal struct {
	mu         sync.RWMutex
	muted      map[string]time.Duration
	muteCalls  int
	MuteSignal chan string
}

func NewMockStoreWithSignal(bufferSize int) *MockStoreWithSignal {
	return &MockStoreWithSignal{
		muted:      make(map[string]time.Duration),
		MuteSignal: make(chan string, bufferSize),
	}
}

func (s *MockStoreWithSignal) IsSenderMuted(ctx context.Context, senderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.muted[senderID]
	return ok, nil
}

func (s *MockStoreWithSignal) MuteSender(ctx context.Context, senderID string, duration time.Duration) error {
	s.mu.Lock()
	s.muted[senderID] = duration
	s.muteCalls++
	s.mu.Unlock()

	s.MuteSignal <- senderID
	return nil
}

func (s *MockStoreWithSignal) UnmuteSender(ctx context.Context, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.muted, senderID)
	return nil
}

func (s *MockStoreWithSignal) MuteCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muteCalls
}

// MuteDuration returns the duration of senderID's last mute.
func (s *MockStoreWithSignal) MuteDuration(senderID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted[senderID]
}

func (s *MockStoreWithSignal) Close() error {
	return nil
}
