// Package session holds the per-room state of one participant: the shared
// buffer, the local caret, the remote carets and the chat transcript.
//
// A Session is not safe for concurrent use. It is owned by the client event
// loop and every mutation happens inside a loop callback.
package session

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/coderoom/backend/internal/client/geometry"
)

// Cursor is the last known caret of a remote participant.
type Cursor struct {
	Participant string
	Offset      int
	Coords      geometry.Coords
	UpdatedAt   time.Time
}

// ChatEntry is one line of the transcript. System entries come from the
// relay rather than a participant.
type ChatEntry struct {
	Author    string
	Text      string
	Timestamp string
	System    bool
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	Room    string
	Buffer  string
	Caret   int
	Cursors []Cursor
	Chat    []ChatEntry
}

// Session is the state of one room as seen by one participant.
type Session struct {
	room    string
	buffer  string
	caret   int
	cursors map[string]*Cursor
	chat    []ChatEntry
}

// New returns an empty session for room.
func New(room string) *Session {
	return &Session{
		room:    room,
		cursors: make(map[string]*Cursor),
		chat:    make([]ChatEntry, 0, 16),
	}
}

// Room returns the room identifier supplied at creation.
func (s *Session) Room() string { return s.room }

// Buffer returns the current buffer text.
func (s *Session) Buffer() string { return s.buffer }

// Caret returns the local caret as a rune offset into the buffer.
func (s *Session) Caret() int { return s.caret }

// ApplyRemote replaces the buffer with text received from the relay. The
// local caret keeps its linear offset, clamped to the new length. It
// reports false and changes nothing when text equals the current buffer.
func (s *Session) ApplyRemote(text string) bool {
	if text == s.buffer {
		return false
	}
	s.buffer = text
	s.caret = clamp(s.caret, utf8.RuneCountInString(text))
	return true
}

// ApplyLocal records a local edit together with the caret it left behind.
func (s *Session) ApplyLocal(text string, caret int) {
	s.buffer = text
	s.caret = clamp(caret, utf8.RuneCountInString(text))
}

// InsertAtCaret inserts text at the caret and moves the caret past it.
func (s *Session) InsertAtCaret(text string) {
	runes := []rune(s.buffer)
	at := clamp(s.caret, len(runes))
	inserted := []rune(text)

	next := make([]rune, 0, len(runes)+len(inserted))
	next = append(next, runes[:at]...)
	next = append(next, inserted...)
	next = append(next, runes[at:]...)

	s.buffer = string(next)
	s.caret = at + len(inserted)
}

// SetCaret moves the local caret and returns the clamped offset.
func (s *Session) SetCaret(offset int) int {
	s.caret = clamp(offset, utf8.RuneCountInString(s.buffer))
	return s.caret
}

// UpsertCursor records a remote caret, creating the entry on first report.
func (s *Session) UpsertCursor(participant string, offset int, coords geometry.Coords, at time.Time) Cursor {
	c, ok := s.cursors[participant]
	if !ok {
		c = &Cursor{Participant: participant}
		s.cursors[participant] = c
	}
	c.Offset = offset
	c.Coords = coords
	c.UpdatedAt = at
	return *c
}

// Cursor returns the last known caret of participant.
func (s *Session) Cursor(participant string) (Cursor, bool) {
	c, ok := s.cursors[participant]
	if !ok {
		return Cursor{}, false
	}
	return *c, true
}

// Cursors returns all remote carets ordered by participant.
func (s *Session) Cursors() []Cursor {
	out := make([]Cursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}

// AppendChat adds an entry to the end of the transcript.
func (s *Session) AppendChat(entry ChatEntry) {
	s.chat = append(s.chat, entry)
}

// Chat returns a copy of the transcript in arrival order.
func (s *Session) Chat() []ChatEntry {
	copied := make([]ChatEntry, len(s.chat))
	copy(copied, s.chat)
	return copied
}

// Snapshot copies the whole session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Room:    s.room,
		Buffer:  s.buffer,
		Caret:   s.caret,
		Cursors: s.Cursors(),
		Chat:    s.Chat(),
	}
}

func clamp(offset, length int) int {
	if offset < 0 {
		return 0
	}
	if offset > length {
		return length
	}
	return offset
}
