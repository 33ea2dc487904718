package settings

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the key/value contract behind Options. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]Setting, error)
}

// Watchable stores report out-of-band changes (another process editing the
// backing file, for instance).
type Watchable interface {
	Watch(fn func()) (cancel func())
}

// MemoryStore keeps settings in process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Setting
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Setting), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[key]
	return s.Value, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = Setting{Key: key, Value: value, UpdatedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]Setting, error) {
	m.mu.RLock()
	out := make([]Setting, 0, len(m.data))
	for _, s := range m.data {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sortSettings(out)
	return out, nil
}

func sortSettings(s []Setting) {
	sort.Slice(s, func(i, j int) bool { return s[i].Key < s[j].Key })
}

func toMap(all []Setting) map[string]string {
	m := make(map[string]string, len(all))
	for _, s := range all {
		m[s.Key] = s.Value
	}
	return m
}
