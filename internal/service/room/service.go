package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/zhouzirui/coderoom/backend/internal/model/room"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxAttempts  = 8
)

var (
	// ErrInvalidName is returned for room names the relay route cannot carry.
	ErrInvalidName = errors.New("room name must be letters, digits or underscores")
	// ErrCodeSpaceExhausted is returned when every generated code collided.
	ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")
)

var validName = regexp.MustCompile(`^\w+$`)

// ValidName reports whether name can be used as a room identifier.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// Service creates and resolves rooms on top of a Store.
type Service struct {
	store room.Store
	now   func() time.Time
	code  func() string
}

// NewService wraps store.
func NewService(store room.Store) *Service {
	return &Service{store: store, now: time.Now, code: generateCode}
}

// Create allocates a fresh room code. An empty language falls back to
// room.DefaultLanguage.
func (s *Service) Create(ctx context.Context, language, creator string) (room.Room, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = room.DefaultLanguage
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		r := room.Room{
			Name:      s.code(),
			Language:  language,
			Creator:   strings.TrimSpace(creator),
			CreatedAt: s.now().UTC(),
		}
		err := s.store.Create(ctx, r)
		if err == nil {
			log.Printf("[room] created room=%s language=%s", r.Name, r.Language)
			return r, nil
		}
		if !errors.Is(err, room.ErrRoomExists) {
			return room.Room{}, err
		}
	}
	return room.Room{}, ErrCodeSpaceExhausted
}

// Get returns the room named name.
func (s *Service) Get(ctx context.Context, name string) (room.Room, error) {
	if !ValidName(name) {
		return room.Room{}, ErrInvalidName
	}
	return s.store.FindByName(ctx, name)
}

// Ensure returns the room named name, creating it with the default language
// when it does not exist yet.
func (s *Service) Ensure(ctx context.Context, name, creator string) (room.Room, error) {
	existing, err := s.Get(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, room.ErrRoomNotFound) {
		return room.Room{}, err
	}

	r := room.Room{
		Name:      name,
		Language:  room.DefaultLanguage,
		Creator:   creator,
		CreatedAt: s.now().UTC(),
	}
	switch err := s.store.Create(ctx, r); {
	case err == nil:
		log.Printf("[room] auto-created room=%s", name)
		return r, nil
	case errors.Is(err, room.ErrRoomExists):
		// Lost a race with another connection.
		return s.store.FindByName(ctx, name)
	default:
		return room.Room{}, fmt.Errorf("ensure room %s: %w", name, err)
	}
}

func generateCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return b.String()
}
