package statestore

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryKV is the always-available, in-process KV backend. It is the
// default when no Redis address is configured and the fallback target
// when Redis is configured but unreachable.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	lists   map[string]*list.List
}

type memEntry struct {
	value    []byte
	expireAt time.Time // zero value means no expiry
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// NewMemoryKV constructs an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]*memEntry),
		lists:   make(map[string]*list.List),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memEntry{value: value}
	return nil
}

func (m *MemoryKV) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	return true, nil
}

func (m *MemoryKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// ListPushTrim pushes value to the head of key's list and trims to maxLen.
func (m *MemoryKV) ListPushTrim(_ context.Context, key string, value []byte, maxLen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lists[key]
	if !ok {
		l = list.New()
		m.lists[key] = l
	}
	l.PushFront(value)
	for l.Len() > maxLen {
		l.Remove(l.Back())
	}
	return nil
}

// ListRange returns the list contents head-to-tail (most recent first).
func (m *MemoryKV) ListRange(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lists[key]
	if !ok {
		return nil, nil
	}
	out := make([][]byte, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.([]byte))
	}
	return out, nil
}

var _ KV = (*MemoryKV)(nil)
