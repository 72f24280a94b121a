package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Envelope carries one encoded protocol frame between relay instances.
type Envelope struct {
	Room string `json:"room"`
	// Sender is the peer id of the originating connection.
	Sender string `json:"sender"`
	// ExcludeSender suppresses delivery back to the originating connection.
	ExcludeSender bool            `json:"excludeSender"`
	Payload       json.RawMessage `json:"payload"`
}

// Broker fans envelopes out to every subscriber of a room.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, room string) (Subscription, error)
	Close() error
}

// Subscription delivers the envelopes published to one room, in publish
// order. The channel is closed after Close.
type Subscription interface {
	Envelopes() <-chan Envelope
	Close() error
}

const subscriptionBuffer = 256

// MemoryBroker is a Broker for a single relay process.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBroker returns an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish implements Broker. Subscribers whose buffer is full miss the
// envelope.
func (b *MemoryBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[env.Room] {
		select {
		case sub.ch <- env:
		default:
			log.Printf("[relay] memory broker: subscriber of room=%s is full, dropping envelope", env.Room)
		}
	}
	return nil
}

// Subscribe implements Broker.
func (b *MemoryBroker) Subscribe(_ context.Context, room string) (Subscription, error) {
	sub := &memorySubscription{broker: b, room: room, ch: make(chan Envelope, subscriptionBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[room] == nil {
		b.subs[room] = make(map[*memorySubscription]struct{})
	}
	b.subs[room][sub] = struct{}{}
	return sub, nil
}

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for room, subs := range b.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, room)
	}
	return nil
}

type memorySubscription struct {
	broker *MemoryBroker
	room   string
	ch     chan Envelope
}

func (s *memorySubscription) Envelopes() <-chan Envelope { return s.ch }

func (s *memorySubscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[s.room]
	if !ok {
		return nil
	}
	if _, ok := subs[s]; !ok {
		return nil
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(b.subs, s.room)
	}
	close(s.ch)
	return nil
}
