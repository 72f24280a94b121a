package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "coderoom:room:"

// RedisChannel returns the pub/sub channel used for room.
func RedisChannel(room string) string {
	return redisChannelPrefix + room
}

// RedisBroker shares rooms between relay processes over Redis pub/sub.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, opts *redis.Options) (*RedisBroker, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return &RedisBroker{rdb: rdb}, nil
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, RedisChannel(env.Room), data).Err(); err != nil {
		return fmt.Errorf("publish to room %s: %w", env.Room, err)
	}
	return nil
}

// Subscribe implements Broker. It returns once Redis has confirmed the
// subscription, so nothing published afterwards is missed.
func (b *RedisBroker) Subscribe(ctx context.Context, room string) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, RedisChannel(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to room %s: %w", room, err)
	}

	sub := &redisSubscription{pubsub: pubsub, ch: make(chan Envelope, subscriptionBuffer)}
	go sub.pump(room)
	return sub, nil
}

// Close implements Broker.
func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	ch        chan Envelope
	closeOnce sync.Once
}

func (s *redisSubscription) pump(room string) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("[relay] redis broker: bad envelope on room=%s: %v", room, err)
			continue
		}
		s.ch <- env
	}
}

func (s *redisSubscription) Envelopes() <-chan Envelope { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.pubsub.Close() })
	return err
}
