package room

import (
	"errors"
	"time"
)

// DefaultLanguage is used when a room is created without one.
const DefaultLanguage = "python"

var (
	// ErrRoomNotFound is returned when no room has the requested name.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when a room name is already taken.
	ErrRoomExists = errors.New("room already exists")
)

// Room is a shared editing space addressed by its short code.
type Room struct {
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Creator   string    `json:"creator,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
