// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	audit []AuditEntry

	// FailWrites, when set, is returned by Write for the n-th call onwards
	// (1-based), letting tests simulate a crash between writes.
	FailWrites error
	FailAfter  int
	writes     int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored under key.
func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value under key.
func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	return m.Write(ctx, Set(key, value))
}

// Write applies all writes under one lock, or none if a failure is injected.
func (m *MockStore) Write(ctx context.Context, writes ...Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.FailWrites != nil && m.writes > m.FailAfter {
		return m.FailWrites
	}

	for _, w := range writes {
		if w.Delete {
			delete(m.data, w.Key)
			continue
		}
		v := make([]byte, len(w.Value))
		copy(v, w.Value)
		m.data[w.Key] = v
	}
	return nil
}

// Keys lists stored keys in ascending order.
func (m *MockStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// AppendAuditLog records e in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns entries matching f, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Actor != nil && e.Actor != *f.Actor {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.Trigger != nil && e.Trigger != *f.Trigger {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Compile-time interface checks
var (
	_ Store      = (*MockStore)(nil)
	_ AuditStore = (*MockStore)(nil)
	_ Store      = (*SQLiteStore)(nil)
	_ AuditStore = (*SQLiteStore)(nil)
)
