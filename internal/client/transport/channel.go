// Package transport provides the persistent, ordered connection between a
// participant and the room relay.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/coderoom/backend/internal/model/protocol"
)

// ErrChannelClosed is reported to OnClose handlers when the channel was
// closed locally.
var ErrChannelClosed = errors.New("transport: channel closed")

// State is the lifecycle position of a channel.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Channel is the contract the client core depends on.
type Channel interface {
	// Send writes m if the channel is open and reports whether it did.
	// Messages sent in any other state are dropped, never queued.
	Send(m protocol.Message) bool
	OnMessage(fn func(raw []byte))
	OnClose(fn func(err error))
	State() State
	Close() error
}

// Options tunes the websocket connection.
type Options struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	Header           http.Header
}

// DefaultOptions mirrors the relay's keepalive settings.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     54 * time.Second,
	}
}

// RoomURL builds the relay address of room from a base URL. http and https
// bases are mapped to ws and wss.
func RoomURL(base, room, username string) (string, error) {
	if strings.TrimSpace(room) == "" {
		return "", errors.New("room is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid relay url %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/code/" + url.PathEscape(room) + "/"
	if username != "" {
		q := u.Query()
		q.Set("username", username)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// WebSocketChannel implements Channel with gorilla/websocket. Handlers must
// be registered before Connect.
type WebSocketChannel struct {
	opts  Options
	state atomic.Int32

	conn    *websocket.Conn
	writeMu sync.Mutex

	onMessage func([]byte)
	onClose   func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// New returns a channel in the connecting state.
func New(opts Options) *WebSocketChannel {
	defaults := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	return &WebSocketChannel{
		opts:      opts,
		onMessage: func([]byte) {},
		onClose:   func(error) {},
		done:      make(chan struct{}),
	}
}

// OnMessage registers the inbound frame handler. It runs on the read
// goroutine.
func (c *WebSocketChannel) OnMessage(fn func(raw []byte)) {
	if fn != nil {
		c.onMessage = fn
	}
}

// OnClose registers the handler called once when the channel closes.
func (c *WebSocketChannel) OnClose(fn func(err error)) {
	if fn != nil {
		c.onClose = fn
	}
}

// State returns the current lifecycle state.
func (c *WebSocketChannel) State() State {
	return State(c.state.Load())
}

// Connect dials rawURL and starts reading.
func (c *WebSocketChannel) Connect(ctx context.Context, rawURL string) error {
	if c.State() != StateConnecting {
		return fmt.Errorf("connect in state %s", c.State())
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, rawURL, c.opts.Header)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	c.conn = conn
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		// Closed while the handshake was in flight.
		conn.Close()
		return fmt.Errorf("connect: %w", ErrChannelClosed)
	}

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Send implements Channel.
func (c *WebSocketChannel) Send(m protocol.Message) bool {
	if c.State() != StateOpen {
		return false
	}

	data, err := protocol.Encode(m)
	if err != nil {
		log.Printf("[transport] encode %s failed: %v", m.Kind(), err)
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() != StateOpen {
		return false
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[transport] write %s failed: %v", m.Kind(), err)
		return false
	}
	return true
}

// Close closes the channel. The OnClose handler receives ErrChannelClosed.
func (c *WebSocketChannel) Close() error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed))
		return nil
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	c.shutdown(ErrChannelClosed)
	return nil
}

func (c *WebSocketChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[transport] read error: %v", err)
			}
			c.shutdown(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		c.onMessage(data)
	}
}

func (c *WebSocketChannel) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *WebSocketChannel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if c.State() == StateClosing {
			cause = ErrChannelClosed
		}
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.conn.Close()
		c.onClose(cause)
	})
}
