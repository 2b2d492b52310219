package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.Event
	ids  map[string]struct{}
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		ids: make(map[string]struct{}),
	}
}

// InsertBulk appends events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Kind == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	for _, e := range events {
		copy := *e
		s.data = append(s.data, &copy)
		s.ids[e.EventID] = struct{}{}
	}
	return nil
}

// List retrieves events matching filter, ordered by timestamp_ms ASC, event_id ASC.
func (s *EventStore) List(_ context.Context, filter storage.EventFilter) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if filter.CycleID != "" && e.CycleID != filter.CycleID {
			continue
		}
		if filter.TokenID != "" && e.TokenID != filter.TokenID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		copy := *e
		result = append(result, &copy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].EventID < result[j].EventID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ storage.EventStore = (*EventStore)(nil)
