package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/merklevault/merklevault/pkg/anchor"
)

// MemoryStore is an in-memory implementation of IAnchorStore, intended for
// tests and throwaway runs: anchors are gone when the process exits, which
// defeats the point of a trust anchor.
// Thread-safe using sync.RWMutex. Deep copies on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	anchors map[string]*anchor.Anchor
	closed  bool
}

// NewMemoryStore creates a new in-memory anchor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		anchors: make(map[string]*anchor.Anchor),
	}
}

// SaveAnchor persists an anchor.
func (m *MemoryStore) SaveAnchor(a *anchor.Anchor) error {
	if a == nil {
		return fmt.Errorf("cannot save nil Anchor")
	}
	if a.BatchID == "" {
		return fmt.Errorf("cannot save Anchor with empty batch ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("anchor store is closed")
	}

	m.anchors[a.BatchID] = deepCopyAnchor(a)
	return nil
}

// LoadAnchor retrieves an anchor by batch ID.
func (m *MemoryStore) LoadAnchor(batchID string) (*anchor.Anchor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("anchor store is closed")
	}

	a, exists := m.anchors[batchID]
	if !exists {
		return nil, nil // Not found is not an error
	}
	return deepCopyAnchor(a), nil
}

// LatestAnchor returns the most recently created anchor.
func (m *MemoryStore) LatestAnchor() (*anchor.Anchor, error) {
	anchors, err := m.ListAnchors()
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, nil
	}
	return anchors[len(anchors)-1], nil
}

// ListAnchors returns all anchors sorted by creation time.
func (m *MemoryStore) ListAnchors() ([]*anchor.Anchor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("anchor store is closed")
	}

	result := make([]*anchor.Anchor, 0, len(m.anchors))
	for _, a := range m.anchors {
		result = append(result, deepCopyAnchor(a))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].BatchID < result[j].BatchID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteAnchor removes an anchor.
func (m *MemoryStore) DeleteAnchor(batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("anchor store is closed")
	}

	delete(m.anchors, batchID)
	return nil
}

// Close shuts down the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the store is operational.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("anchor store is closed")
	}
	return nil
}

// deepCopyAnchor copies an anchor including its optional tree via the JSON
// round trip used by the durable backends, so all backends agree on what
// survives persistence.
func deepCopyAnchor(a *anchor.Anchor) *anchor.Anchor {
	if a == nil {
		return nil
	}
	data, err := anchor.MarshalAnchor(a)
	if err != nil {
		// Anchor is a plain data struct; marshaling cannot fail.
		panic(fmt.Sprintf("anchor deep copy: %v", err))
	}
	cp, err := anchor.UnmarshalAnchor(data)
	if err != nil {
		panic(fmt.Sprintf("anchor deep copy: %v", err))
	}
	return cp
}
