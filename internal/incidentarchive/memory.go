package incidentarchive

import (
	"context"
	"sync"
)

// maxPerTruck caps the in-memory backend so an unattended demo node does
// not grow without bound.
const maxPerTruck = 1000

// MemoryArchive is the always-available in-process backend.
type MemoryArchive struct {
	mu      sync.Mutex
	records map[string][]Record // truckID -> newest first
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{records: make(map[string][]Record)}
}

func (m *MemoryArchive) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := append([]Record{rec}, m.records[rec.TruckID]...)
	if len(recs) > maxPerTruck {
		recs = recs[:maxPerTruck]
	}
	m.records[rec.TruckID] = recs
	return nil
}

func (m *MemoryArchive) Recent(_ context.Context, truckID string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[truckID]
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *MemoryArchive) Close() error { return nil }
