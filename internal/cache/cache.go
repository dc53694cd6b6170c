// Package cache stores computed report payloads under deterministic keys.
// Entries are replaced wholesale; there is no TTL. Invalidation is by key
// prefix only.
package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Must-style helpers when a key has no entry.
// Store.Get itself reports a miss as (nil, nil).
var ErrNotFound = errors.New("cache: entry not found")

// Entry is one cached payload.
type Entry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence capability the report orchestrator needs.
type Store interface {
	// Get returns the entry for key, or nil if there is none.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put replaces the entry for key.
	Put(ctx context.Context, key string, payload []byte) error
	// DeleteByPrefix removes every entry whose key starts with prefix and
	// returns how many were removed. An empty prefix removes everything.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	// Latest returns the most recently updated entry whose key starts with
	// prefix, or nil.
	Latest(ctx context.Context, prefix string) (*Entry, error)
}

// Lookup is Get returning ErrNotFound on a miss.
func Lookup(ctx context.Context, s Store, key string) (*Entry, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return &e, nil
}

func (m *Memory) Put(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		UpdatedAt: m.now().UTC(),
	}
	return nil
}

func (m *Memory) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Latest(ctx context.Context, prefix string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Entry
	for k, e := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if latest == nil || newer(e, *latest) {
			e := e
			latest = &e
		}
	}
	if latest != nil {
		latest.Payload = append([]byte(nil), latest.Payload...)
	}
	return latest, nil
}

// Keys lists stored keys in order, for diagnostics.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newer orders entries by update time, then key, so Latest is deterministic
// when timestamps collide.
func newer(a, b Entry) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.Key > b.Key
}
