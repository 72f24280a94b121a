// Package dispatch applies inbound protocol frames to a session.
package dispatch

import (
	"fmt"
	"log"
	"time"

	"github.com/zhouzirui/coderoom/backend/internal/client/geometry"
	"github.com/zhouzirui/coderoom/backend/internal/client/session"
	"github.com/zhouzirui/coderoom/backend/internal/model/protocol"
)

// ChatTimeLayout formats receive times for chat lines that arrive without
// a timestamp.
const ChatTimeLayout = "3:04 PM"

// CaretMode selects where remote caret coordinates come from.
type CaretMode int

const (
	// CaretSender trusts the pixel coordinates computed by the sender.
	CaretSender CaretMode = iota
	// CaretLocal re-resolves the reported offset with local metrics.
	CaretLocal
)

// ParseCaretMode maps "sender" or "local" to a CaretMode.
func ParseCaretMode(s string) (CaretMode, error) {
	switch s {
	case "", "sender":
		return CaretSender, nil
	case "local":
		return CaretLocal, nil
	default:
		return CaretSender, fmt.Errorf("unknown remote caret mode %q", s)
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the receive clock.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLocalCarets resolves remote carets with the given resolver instead of
// trusting sender coordinates.
func WithLocalCarets(r *geometry.Resolver) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.mode = CaretLocal
			d.resolver = r
		}
	}
}

// Dispatcher applies one inbound frame at a time. Every call runs to
// completion before the next.
type Dispatcher struct {
	session   *session.Session
	presenter Presenter
	now       func() time.Time
	mode      CaretMode
	resolver  *geometry.Resolver
}

// New returns a dispatcher writing into s and rendering through p.
func New(s *session.Session, p Presenter, opts ...Option) *Dispatcher {
	if p == nil {
		p = NopPresenter{}
	}
	d := &Dispatcher{session: s, presenter: p, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch decodes and applies a raw frame. Malformed frames and unknown
// tags leave the session untouched; the returned error is for logging only.
func (d *Dispatcher) Dispatch(raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	msg, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	return d.Apply(msg)
}

// Apply applies a decoded message.
func (d *Dispatcher) Apply(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.CodeUpdate:
		d.applyCode(m)
	case protocol.ExecutionResult:
		d.presenter.ShowOutput(resultOutput(m.Output))
	case protocol.ExecutionError:
		d.presenter.ShowOutput(errorOutput(m.Error))
	case protocol.ChatMessage:
		d.applyChat(m)
	case protocol.CursorUpdate:
		return d.applyCursor(m)
	case protocol.SystemMessage:
		d.applySystem(m)
	case protocol.Ignored:
		log.Printf("[dispatch] ignoring message type %q", m.Type)
	default:
		// execute_code only ever travels to the relay.
		log.Printf("[dispatch] ignoring outbound-only message type %q", msg.Kind())
	}
	return nil
}

func (d *Dispatcher) applyCode(m protocol.CodeUpdate) {
	if !d.session.ApplyRemote(m.Code) {
		return
	}
	d.presenter.RenderBuffer(d.session.Buffer(), d.session.Caret())
	if d.mode == CaretLocal {
		d.relayoutCursors()
	}
}

func (d *Dispatcher) applyChat(m protocol.ChatMessage) {
	timestamp := m.Timestamp
	if timestamp == "" {
		timestamp = d.now().Format(ChatTimeLayout)
	}
	entry := session.ChatEntry{Author: m.Username, Text: m.Message, Timestamp: timestamp}
	d.session.AppendChat(entry)
	d.presenter.AppendChat(entry)
}

func (d *Dispatcher) applySystem(m protocol.SystemMessage) {
	timestamp := m.Timestamp
	if timestamp == "" {
		timestamp = d.now().Format(ChatTimeLayout)
	}
	entry := session.ChatEntry{Text: m.Message, Timestamp: timestamp, System: true}
	d.session.AppendChat(entry)
	d.presenter.AppendChat(entry)
}

func (d *Dispatcher) applyCursor(m protocol.CursorUpdate) error {
	if m.Username == "" {
		return fmt.Errorf("%w: cursor_update without username", protocol.ErrMalformed)
	}
	coords := geometry.Coords{Top: m.Position.Coords.Top, Left: m.Position.Coords.Left}
	if d.mode == CaretLocal {
		coords = d.resolver.Resolve(d.session.Buffer(), m.Position.Index)
	}
	cursor := d.session.UpsertCursor(m.Username, m.Position.Index, coords, d.now())
	d.presenter.MoveCursor(cursor)
	return nil
}

// relayoutCursors re-resolves every remote caret against the new buffer.
// Offsets and report times are kept.
func (d *Dispatcher) relayoutCursors() {
	buffer := d.session.Buffer()
	for _, c := range d.session.Cursors() {
		coords := d.resolver.Resolve(buffer, c.Offset)
		if coords == c.Coords {
			continue
		}
		d.presenter.MoveCursor(d.session.UpsertCursor(c.Participant, c.Offset, coords, c.UpdatedAt))
	}
}
