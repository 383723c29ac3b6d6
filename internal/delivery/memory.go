package delivery

import (
	"context"
	"sync"

	"github.com/thefass/ub-tools/internal/harvester"
)

// MemoryStore is an in-memory harvester.DeliveryTracker for tests and
// runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]harvester.DeliveryEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]harvester.DeliveryEntry)}
}

func key(mode harvester.DeliveryMode, url string) string {
	return string(mode) + "\x00" + url
}

// HasAlreadyDelivered mirrors the Postgres implementation's semantics.
func (s *MemoryStore) HasAlreadyDelivered(_ context.Context, mode harvester.DeliveryMode, url, checksum string) (bool, *harvester.DeliveryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key(mode, url)]
	if !ok {
		return false, nil, nil
	}
	copied := entry
	delivered := entry.Checksum == checksum && entry.ErrorMessage == ""
	return delivered, &copied, nil
}

// RecordDelivery stores the entry, replacing any previous delivery of
// the same URL in the same mode.
func (s *MemoryStore) RecordDelivery(_ context.Context, entry harvester.DeliveryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(entry.Mode, entry.URL)] = entry
	return nil
}

// Len reports the number of stored deliveries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
