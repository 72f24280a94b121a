// Package relay is the per-room hub: it fans protocol frames out to the
// other participants of a room and runs code on request.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/coderoom/backend/internal/model/protocol"
)

// TimeLayout formats relay-assigned chat and system timestamps.
const TimeLayout = "03:04 PM"

// AnonymousUser is the identity of a connection without a username.
const AnonymousUser = "Anonymous"

// ErrServiceClosed is returned by Join after Close.
var ErrServiceClosed = errors.New("relay closed")

// Executor runs submitted code.
type Executor interface {
	Run(ctx context.Context, language, code string) (string, error)
}

// Service tracks the peers connected to this process and bridges them to
// the broker.
type Service struct {
	broker   Broker
	executor Executor
	now      func() time.Time

	mu     sync.Mutex
	rooms  map[string]*roomState
	closed bool
	wg     sync.WaitGroup
}

type roomState struct {
	peers map[string]*Peer
	sub   Subscription
}

// NewService returns a relay publishing through broker. A nil executor
// answers every execute request with an execution_error.
func NewService(broker Broker, executor Executor) *Service {
	return &Service{
		broker:   broker,
		executor: executor,
		now:      time.Now,
		rooms:    make(map[string]*roomState),
	}
}

// Join registers a new peer in room and announces it to the room.
func (s *Service) Join(ctx context.Context, room, username string) (*Peer, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = AnonymousUser
	}
	peer := newPeer(room, username)

	state, err := s.lockedRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	state.peers[peer.ID.String()] = peer
	count := len(state.peers)
	s.mu.Unlock()

	log.Printf("[relay] %s joined room=%s peer=%s peers=%d", username, room, peer.ID, count)
	s.announce(ctx, peer, fmt.Sprintf("%s joined the room", username))
	return peer, nil
}

// lockedRoom returns the state of room with s.mu held, subscribing to the broker
// first if this process has no peers there yet. The subscribe call runs
// without the lock.
func (s *Service) lockedRoom(ctx context.Context, room string) (*roomState, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	if state, ok := s.rooms[room]; ok {
		return state, nil
	}
	s.mu.Unlock()

	sub, err := s.broker.Subscribe(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", room, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return nil, ErrServiceClosed
	}
	if state, ok := s.rooms[room]; ok {
		// Another join subscribed first.
		if err := sub.Close(); err != nil {
			log.Printf("[relay] close duplicate subscription room=%s: %v", room, err)
		}
		return state, nil
	}
	state := &roomState{peers: make(map[string]*Peer), sub: sub}
	s.rooms[room] = state
	s.wg.Add(1)
	go s.pump(room, sub)
	return state, nil
}

// Leave removes peer from its room and announces the departure. It is safe
// to call more than once.
func (s *Service) Leave(ctx context.Context, peer *Peer) {
	s.mu.Lock()
	state, ok := s.rooms[peer.Room]
	if !ok || state.peers[peer.ID.String()] != peer {
		s.mu.Unlock()
		peer.close()
		return
	}
	delete(state.peers, peer.ID.String())
	empty := len(state.peers) == 0
	if empty {
		delete(s.rooms, peer.Room)
	}
	s.mu.Unlock()

	peer.close()
	log.Printf("[relay] %s left room=%s peer=%s", peer.Username, peer.Room, peer.ID)
	s.announce(ctx, peer, fmt.Sprintf("%s left the room", peer.Username))

	if empty {
		if err := state.sub.Close(); err != nil {
			log.Printf("[relay] close subscription room=%s: %v", peer.Room, err)
		}
	}
}

// HandleFrame routes one inbound frame from peer.
func (s *Service) HandleFrame(ctx context.Context, peer *Peer, raw []byte) error {
	msg, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case protocol.CodeUpdate:
		return s.publish(ctx, peer, m, true)
	case protocol.CursorUpdate:
		m.Username = peer.Username
		return s.publish(ctx, peer, m, true)
	case protocol.ChatMessage:
		m.Username = peer.Username
		m.Timestamp = s.now().Format(TimeLayout)
		return s.publish(ctx, peer, m, false)
	case protocol.ExecuteCode:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(ctx, peer, m)
		}()
		return nil
	default:
		log.Printf("[relay] dropped %q frame from peer=%s", msg.Kind(), peer.ID)
		return nil
	}
}

// Peers returns the number of local peers in room.
func (s *Service) Peers(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.rooms[room]; ok {
		return len(state.peers)
	}
	return 0
}

// Close disconnects every local peer and waits for background work.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	rooms := s.rooms
	s.rooms = make(map[string]*roomState)
	s.mu.Unlock()

	for _, state := range rooms {
		for _, peer := range state.peers {
			peer.close()
		}
		state.sub.Close()
	}
	s.wg.Wait()
}

func (s *Service) execute(ctx context.Context, peer *Peer, m protocol.ExecuteCode) {
	var reply protocol.Message
	if s.executor == nil {
		reply = protocol.ExecutionError{Error: "code execution is not available"}
	} else if output, err := s.executor.Run(ctx, m.Language, m.Code); err != nil {
		log.Printf("[relay] execute for peer=%s failed: %v", peer.ID, err)
		reply = protocol.ExecutionError{Error: err.Error()}
	} else {
		reply = protocol.ExecutionResult{Output: output}
	}

	frame, err := protocol.Encode(reply)
	if err != nil {
		log.Printf("[relay] encode execution reply: %v", err)
		return
	}
	peer.deliver(frame)
}

func (s *Service) announce(ctx context.Context, peer *Peer, text string) {
	msg := protocol.SystemMessage{Message: text, Timestamp: s.now().Format(TimeLayout)}
	if err := s.publish(ctx, peer, msg, false); err != nil {
		log.Printf("[relay] announce in room=%s: %v", peer.Room, err)
	}
}

func (s *Service) publish(ctx context.Context, peer *Peer, msg protocol.Message, excludeSender bool) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return s.broker.Publish(ctx, Envelope{
		Room:          peer.Room,
		Sender:        peer.ID.String(),
		ExcludeSender: excludeSender,
		Payload:       payload,
	})
}

// pump delivers a room's envelopes to the local peers until the
// subscription closes.
func (s *Service) pump(room string, sub Subscription) {
	defer s.wg.Done()
	for env := range sub.Envelopes() {
		s.mu.Lock()
		state, ok := s.rooms[room]
		var targets []*Peer
		if ok && state.sub == sub {
			targets = make([]*Peer, 0, len(state.peers))
			for id, peer := range state.peers {
				if env.ExcludeSender && id == env.Sender {
					continue
				}
				targets = append(targets, peer)
			}
		}
		s.mu.Unlock()

		for _, peer := range targets {
			peer.deliver(env.Payload)
		}
	}
}
