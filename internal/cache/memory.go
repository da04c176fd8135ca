package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// memoryLayer is the bounded in-process layer above the persistent store.
// When the entry count exceeds the cap, the entries closest to expiry are
// evicted first.
type memoryLayer struct {
	mu         sync.Mutex
	items      map[string]memoryEntry
	maxEntries int
}

func newMemoryLayer(maxEntries int) *memoryLayer {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &memoryLayer{
		items:      make(map[string]memoryEntry),
		maxEntries: maxEntries,
	}
}

func memoryKey(ns, key string) string {
	return ns + "\x00" + key
}

func (m *memoryLayer) get(ns, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[memoryKey(ns, key)]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m.items, memoryKey(ns, key))
		return nil, false
	}
	return e.payload, true
}

func (m *memoryLayer) set(ns, key string, payload []byte, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[memoryKey(ns, key)] = memoryEntry{payload: payload, expiresAt: expiresAt}
	if len(m.items) > m.maxEntries {
		m.evictLocked()
	}
}

// evictLocked removes expired entries first, then the soonest-expiring
// entries until the layer is back under its cap.
func (m *memoryLayer) evictLocked() {
	now := time.Now()
	for k, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, k)
		}
	}

	for len(m.items) > m.maxEntries {
		var soonestKey string
		var soonest time.Time
		for k, e := range m.items {
			if soonestKey == "" || e.expiresAt.Before(soonest) {
				soonestKey = k
				soonest = e.expiresAt
			}
		}
		delete(m.items, soonestKey)
	}
}

func (m *memoryLayer) delete(ns, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, memoryKey(ns, key))
}

// purgeNamespace drops every hot entry in the namespace
func (m *memoryLayer) purgeNamespace(ns string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := ns + "\x00"
	for k := range m.items {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.items, k)
		}
	}
}

func (m *memoryLayer) purgeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memoryEntry)
}

func (m *memoryLayer) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
