// Package cache provides an in-memory TTL cache with tag-based
// invalidation. The publisher records delivery state per content and
// platform here, and the maintenance job memoizes credential checks.
//
// Semantics: entries are never served past their expiry, writes are
// last-writer-wins, and there is no cross-key transactional guarantee.
package cache

import (
	"sync"
	"time"
)

// entry is a stored value with its expiry and invalidation tags.
type entry struct {
	value     interface{}
	expiresAt time.Time
	tags      []string
}

// Manager is a thread-safe TTL cache with tag indexes.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	byTag   map[string]map[string]struct{}
	now     func() time.Time
}

// NewManager creates an empty cache manager.
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		byTag:   make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Set stores a value under key with the given TTL and optional tags.
// A non-positive TTL stores nothing: the entry would already be expired.
func (m *Manager) Set(key string, value interface{}, ttl time.Duration, tags ...string) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Last writer wins: drop the old entry's tag memberships first.
	if old, ok := m.entries[key]; ok {
		m.removeTagsLocked(key, old.tags)
	}

	m.entries[key] = &entry{
		value:     value,
		expiresAt: m.now().Add(ttl),
		tags:      tags,
	}
	for _, tag := range tags {
		keys, ok := m.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Get returns the value for key. An entry past its expiry is a transparent
// miss and is removed on the spot.
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		m.deleteLocked(key, e)
		return nil, false
	}
	return e.value, true
}

// Delete removes a single key. Removing a missing key is a no-op.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		m.deleteLocked(key, e)
	}
}

// InvalidateTag removes every entry sharing the given tag and returns the
// number of entries removed.
func (m *Manager) InvalidateTag(tag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.byTag[tag]
	if !ok {
		return 0
	}

	removed := 0
	for key := range keys {
		if e, ok := m.entries[key]; ok {
			m.deleteLocked(key, e)
			removed++
		}
	}
	return removed
}

// Sweep removes expired entries and returns how many were evicted.
// Run periodically from the maintenance job; Get already handles lazy
// expiry, the sweep only bounds memory.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			m.deleteLocked(key, e)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live entries, counting entries whose TTL has
// elapsed but which have not been swept yet.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// deleteLocked removes an entry and its tag memberships.
// Caller must hold the mutex.
func (m *Manager) deleteLocked(key string, e *entry) {
	delete(m.entries, key)
	m.removeTagsLocked(key, e.tags)
}

// removeTagsLocked drops key from each tag index, deleting emptied tags.
// Caller must hold the mutex.
func (m *Manager) removeTagsLocked(key string, tags []string) {
	for _, tag := range tags {
		if keys, ok := m.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.byTag, tag)
			}
		}
	}
}
