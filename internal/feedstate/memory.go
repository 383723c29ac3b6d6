package feedstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory harvester.FeedStateStore for tests and
// runs without a database.
type MemoryStore struct {
	mu    sync.Mutex
	feeds map[string]feedState
	items map[string]bool
}

type feedState struct {
	lastBuild   time.Time
	lastHarvest time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		feeds: make(map[string]feedState),
		items: make(map[string]bool),
	}
}

func itemKey(feedURL, itemID string) string {
	return feedURL + "\x00" + itemID
}

func (s *MemoryStore) FeedState(_ context.Context, feedURL string) (time.Time, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.feeds[feedURL]
	return state.lastBuild, state.lastHarvest, ok, nil
}

func (s *MemoryStore) UpsertFeed(_ context.Context, feedURL string, lastBuild, harvestedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[feedURL] = feedState{lastBuild: lastBuild, lastHarvest: harvestedAt}
	return nil
}

func (s *MemoryStore) ItemProcessed(_ context.Context, feedURL, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[itemKey(feedURL, itemID)], nil
}

func (s *MemoryStore) MarkItemProcessed(_ context.Context, feedURL, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey(feedURL, itemID)] = true
	return nil
}
