package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

type entry struct {
	value    []byte
	deadline Deadline
}

// MemoryStore is the in-process ExpiringStore. Reads check deadlines lazily;
// Sweep removes expired keys nobody reads anymore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for deadlines.
func WithClock(now Clock) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ ExpiringStore = (*MemoryStore)(nil)
	_ Sweeper       = (*MemoryStore)(nil)
)

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:    slices.Clone(value),
		deadline: NewDeadline(s.now(), ttl),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(e.value), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) AddToSet(_ context.Context, key, member string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.members(key)
	if err != nil {
		return err
	}
	if !slices.Contains(members, member) {
		members = append(members, member)
	}
	return s.writeMembers(key, members, NewDeadline(s.now(), ttl))
}

func (s *MemoryStore) ListSet(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.members(key)
}

func (s *MemoryStore) RemoveFromSet(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	members, err := decodeMembers(e.value)
	if err != nil {
		return fmt.Errorf("decode set %s: %w", key, err)
	}
	members = slices.DeleteFunc(members, func(m string) bool { return m == member })
	if len(members) == 0 {
		delete(s.entries, key)
		return nil
	}
	return s.writeMembers(key, members, e.deadline)
}

// Sweep deletes every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.deadline.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup returns a live entry. Caller holds s.mu.
func (s *MemoryStore) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.deadline.Expired(s.now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) members(key string) ([]string, error) {
	e, ok := s.lookup(key)
	if !ok {
		return []string{}, nil
	}
	members, err := decodeMembers(e.value)
	if err != nil {
		return nil, fmt.Errorf("decode set %s: %w", key, err)
	}
	return members, nil
}

func (s *MemoryStore) writeMembers(key string, members []string, deadline Deadline) error {
	raw, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode set %s: %w", key, err)
	}
	s.entries[key] = entry{value: raw, deadline: deadline}
	return nil
}

func decodeMembers(raw []byte) ([]string, error) {
	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, err
	}
	return members, nil
}
