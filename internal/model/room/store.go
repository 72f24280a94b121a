package room

import (
	"context"
	"sync"
)

// Store persists rooms for the REST handlers and the relay.
type Store interface {
	Create(ctx context.Context, r Room) error
	FindByName(ctx context.Context, name string) (Room, error)
}

// MemoryStore implements Store with an in-process map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Room
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied rooms.
func NewMemoryStore(items ...Room) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Room, len(items))}
	for _, item := range items {
		s.items[item.Name] = item
	}
	return s
}

// Create stores r unless its name is taken.
func (s *MemoryStore) Create(_ context.Context, r Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[r.Name]; ok {
		return ErrRoomExists
	}
	s.items[r.Name] = r
	return nil
}

// FindByName looks up a room by its code.
func (s *MemoryStore) FindByName(_ context.Context, name string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[name]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return item, nil
}
