// Package selections stores, per app, the two in-app events a user picked
// for report columns and whether the app takes part in scheduled refreshes.
package selections

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when an app has no saved selection.
var ErrNotFound = errors.New("selection not found")

// Selection is one app's saved event choice.
type Selection struct {
	AppID     string    `json:"app_id"`
	Event1    string    `json:"event1"`
	Event2    string    `json:"event2"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Events returns the non-blank selected event names in column order.
func (s Selection) Events() []string {
	out := make([]string, 0, 2)
	for _, e := range []string{s.Event1, s.Event2} {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Store persists selections.
type Store interface {
	Get(ctx context.Context, appID string) (*Selection, error)
	List(ctx context.Context) ([]Selection, error)
	// Save upserts the event names and active flag of sel.
	Save(ctx context.Context, sel Selection) error
	// SetActive flips the active flag, creating an empty selection if needed.
	SetActive(ctx context.Context, appID string, active bool) error
	// ActiveAppIDs maps every saved app ID to its active flag. Apps with
	// no record are absent.
	ActiveAppIDs(ctx context.Context) (map[string]bool, error)
}

// SelectedEvents turns saved selections into the per-app map a report run
// request carries.
func SelectedEvents(list []Selection) map[string][]string {
	out := make(map[string][]string, len(list))
	for _, s := range list {
		if ev := s.Events(); len(ev) > 0 {
			out[s.AppID] = ev
		}
	}
	return out
}

// MemoryStore is a process-local Store for single-node runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Selection
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Selection), now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, appID string) (*Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[appID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Selection, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, sel Selection) error {
	if sel.AppID == "" {
		return errors.New("selection needs an app id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sel.Event1 = strings.TrimSpace(sel.Event1)
	sel.Event2 = strings.TrimSpace(sel.Event2)
	sel.UpdatedAt = m.now().UTC()
	m.byID[sel.AppID] = sel
	return nil
}

func (m *MemoryStore) SetActive(ctx context.Context, appID string, active bool) error {
	if appID == "" {
		return errors.New("selection needs an app id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byID[appID]
	s.AppID = appID
	s.IsActive = active
	s.UpdatedAt = m.now().UTC()
	m.byID[appID] = s
	return nil
}

func (m *MemoryStore) ActiveAppIDs(ctx context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.byID))
	for id, s := range m.byID {
		out[id] = s.IsActive
	}
	return out, nil
}
