package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversInOrder(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "R1")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "R2")
	require.NoError(t, err)

	for _, p := range []string{`1`, `2`, `3`} {
		require.NoError(t, b.Publish(ctx, Envelope{Room: "R1", Payload: []byte(p)}))
	}

	for _, want := range []string{`1`, `2`, `3`} {
		select {
		case env := <-sub.Envelopes():
			assert.Equal(t, want, string(env.Payload))
		case <-time.After(time.Second):
			t.Fatal("envelope not delivered")
		}
	}
	assert.Empty(t, other.Envelopes())
}

func TestMemoryBrokerCloseSubscription(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "R1")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, b.Publish(ctx, Envelope{Room: "R1", Payload: []byte(`1`)}))

	_, open := <-sub.Envelopes()
	assert.False(t, open)
}

func TestRedisChannel(t *testing.T) {
	assert.Equal(t, "coderoom:room:ABC123", RedisChannel("ABC123"))
}
