// Package client wires the collaboration core for one participant: the
// channel to the relay, the session, the dispatcher, the debouncer and the
// caret resolver.
//
// Every local action, inbound frame and debounce fire runs as a callback on
// a single event loop, so handlers never interleave and the session needs
// no locking.
package client

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/coderoom/backend/internal/client/debounce"
	"github.com/zhouzirui/coderoom/backend/internal/client/dispatch"
	"github.com/zhouzirui/coderoom/backend/internal/client/geometry"
	"github.com/zhouzirui/coderoom/backend/internal/client/session"
	"github.com/zhouzirui/coderoom/backend/internal/client/transport"
	"github.com/zhouzirui/coderoom/backend/internal/model/protocol"
)

// ConnectionLostNotice is shown once the relay connection is gone.
const ConnectionLostNotice = "Connection lost. Please refresh the page."

// CompletionFailedNotice is shown when the completion backend fails.
const CompletionFailedNotice = "Failed to get AI suggestion."

// TabText replaces a tab keystroke.
const TabText = "    "

// ErrConnectionLost is returned by Run when the channel closes.
var ErrConnectionLost = errors.New("connection lost")

// Completer returns a suggestion for the given buffer.
type Completer interface {
	Suggest(ctx context.Context, code string) (string, error)
}

// Options configures a Client.
type Options struct {
	Room        string
	Debounce    time.Duration
	Scheduler   debounce.Scheduler
	Resolver    *geometry.Resolver
	RemoteCaret dispatch.CaretMode
	Completer   Completer
	Now         func() time.Time
}

// Client is one participant in one room.
type Client struct {
	channel    transport.Channel
	presenter  dispatch.Presenter
	session    *session.Session
	dispatcher *dispatch.Dispatcher
	debouncer  *debounce.Debouncer
	resolver   *geometry.Resolver
	completer  Completer

	events chan func()
	lost   chan error
	done   chan struct{}
}

// New wires a client to ch. Handlers are registered on ch immediately, so
// New must be called before the channel connects.
func New(ch transport.Channel, p dispatch.Presenter, opts Options) *Client {
	if p == nil {
		p = dispatch.NopPresenter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Resolver == nil {
		opts.Resolver = geometry.NewResolver(geometry.Metrics{LineHeight: 20}, geometry.Monospace{CharWidth: 8, TabSize: 4})
	}

	c := &Client{
		channel:   ch,
		presenter: p,
		session:   session.New(opts.Room),
		resolver:  opts.Resolver,
		completer: opts.Completer,
		events:    make(chan func(), 64),
		lost:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	dispatchOpts := []dispatch.Option{dispatch.WithClock(opts.Now)}
	if opts.RemoteCaret == dispatch.CaretLocal {
		dispatchOpts = append(dispatchOpts, dispatch.WithLocalCarets(opts.Resolver))
	}
	c.dispatcher = dispatch.New(c.session, p, dispatchOpts...)
	c.debouncer = debounce.New(opts.Debounce, opts.Scheduler, func() { c.post(c.flush) })

	ch.OnMessage(func(raw []byte) {
		c.post(func() { c.receive(raw) })
	})
	ch.OnClose(func(err error) {
		select {
		case c.lost <- err:
		default:
		}
	})
	return c
}

// Run processes events until ctx ends or the channel closes. A pending
// debounced update is discarded on exit.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.channel.Close()
			return ctx.Err()
		case err := <-c.lost:
			if errors.Is(err, transport.ErrChannelClosed) {
				return nil
			}
			log.Printf("[client] room=%s connection closed: %v", c.session.Room(), err)
			c.presenter.Notice(ConnectionLostNotice)
			return ErrConnectionLost
		case fn := <-c.events:
			fn()
		}
	}
}

// Edit records a local edit and restarts the update window. The caret is
// reported right away.
func (c *Client) Edit(text string, caret int) {
	c.post(func() {
		c.session.ApplyLocal(text, caret)
		c.debouncer.Trigger()
		c.sendCursor()
	})
}

// MoveCaret reports a caret move without an edit.
func (c *Client) MoveCaret(offset int) {
	c.post(func() {
		c.session.SetCaret(offset)
		c.sendCursor()
	})
}

// InsertTab inserts TabText at the caret.
func (c *Client) InsertTab() {
	c.post(func() { c.insert(TabText) })
}

// Execute asks the relay to run the current buffer.
func (c *Client) Execute(language string) {
	c.post(func() {
		c.channel.Send(protocol.ExecuteCode{Code: c.session.Buffer(), Language: language})
	})
}

// Chat sends a chat line. Blank lines are not sent.
func (c *Client) Chat(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.post(func() {
		c.channel.Send(protocol.ChatMessage{Message: text})
	})
}

// Complete requests a suggestion for the current buffer and inserts it at
// the caret. The request runs off the loop.
func (c *Client) Complete(ctx context.Context) {
	if c.completer == nil {
		c.post(func() { c.presenter.Notice(CompletionFailedNotice) })
		return
	}
	c.post(func() {
		code := c.session.Buffer()
		go func() {
			suggestion, err := c.completer.Suggest(ctx, code)
			c.post(func() {
				if err != nil {
					log.Printf("[client] completion failed: %v", err)
					c.presenter.Notice(CompletionFailedNotice)
					return
				}
				c.insert(suggestion)
			})
		}()
	})
}

// Snapshot returns a copy of the session taken on the loop.
func (c *Client) Snapshot(ctx context.Context) (session.Snapshot, error) {
	out := make(chan session.Snapshot, 1)
	if !c.post(func() { out <- c.session.Snapshot() }) {
		return session.Snapshot{}, ErrConnectionLost
	}
	select {
	case snap := <-out:
		return snap, nil
	case <-c.done:
		return session.Snapshot{}, ErrConnectionLost
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}
}

func (c *Client) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) receive(raw []byte) {
	if err := c.dispatcher.Dispatch(raw); err != nil {
		log.Printf("[client] dropped inbound frame: %v", err)
	}
}

// flush emits the buffer as it is when the window closes.
func (c *Client) flush() {
	c.channel.Send(protocol.CodeUpdate{Code: c.session.Buffer()})
}

func (c *Client) insert(text string) {
	c.session.InsertAtCaret(text)
	c.presenter.RenderBuffer(c.session.Buffer(), c.session.Caret())
	c.debouncer.Trigger()
	c.sendCursor()
}

func (c *Client) sendCursor() {
	offset := c.session.Caret()
	coords := c.resolver.Resolve(c.session.Buffer(), offset)
	c.channel.Send(protocol.CursorUpdate{Position: protocol.Position{
		Index:  offset,
		Coords: protocol.Coords{Top: coords.Top, Left: coords.Left},
	}})
}
