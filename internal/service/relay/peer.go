package relay

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

const peerBuffer = 256

// Peer is one websocket connection joined to a room.
type Peer struct {
	ID       uuid.UUID
	Username string
	Room     string

	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func newPeer(room, username string) *Peer {
	return &Peer{
		ID:       uuid.New(),
		Username: username,
		Room:     room,
		send:     make(chan []byte, peerBuffer),
		done:     make(chan struct{}),
	}
}

// Outbound yields frames to write to the connection.
func (p *Peer) Outbound() <-chan []byte { return p.send }

// Done is closed when the peer has left.
func (p *Peer) Done() <-chan struct{} { return p.done }

// deliver queues a frame. A peer that is gone or too slow misses it.
func (p *Peer) deliver(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	case <-p.done:
		return false
	default:
		log.Printf("[relay] peer=%s room=%s is not keeping up, dropping frame", p.ID, p.Room)
		return false
	}
}

func (p *Peer) close() {
	p.doneOnce.Do(func() { close(p.done) })
}
