package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON objects or
	// that lack a field their tag requires.
	ErrMalformed = errors.New("protocol: malformed message")
	// ErrUnencodable is returned when encoding an Ignored message.
	ErrUnencodable = errors.New("protocol: message cannot be encoded")
)

// wireMessage is the flat JSON shape shared by every variant. Pointer
// fields distinguish "absent" from "empty" where the distinction matters.
type wireMessage struct {
	Type      string    `json:"type"`
	Code      *string   `json:"code,omitempty"`
	Language  string    `json:"language,omitempty"`
	Output    *string   `json:"output,omitempty"`
	Error     *string   `json:"error,omitempty"`
	Username  string    `json:"username,omitempty"`
	Message   *string   `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Position  *Position `json:"position,omitempty"`
}

// Decode parses one frame. Unknown tags decode to Ignored without error so
// callers can drop them explicitly.
func Decode(raw []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch Kind(w.Type) {
	case KindCodeUpdate:
		if w.Code == nil {
			return nil, missing(w.Type, "code")
		}
		return CodeUpdate{Code: *w.Code}, nil
	case KindExecuteCode:
		if w.Code == nil {
			return nil, missing(w.Type, "code")
		}
		return ExecuteCode{Code: *w.Code, Language: w.Language}, nil
	case KindExecutionResult:
		if w.Output == nil {
			return nil, missing(w.Type, "output")
		}
		return ExecutionResult{Output: *w.Output}, nil
	case KindExecutionError:
		if w.Error == nil {
			return nil, missing(w.Type, "error")
		}
		return ExecutionError{Error: *w.Error}, nil
	case KindChatMessage:
		if w.Message == nil {
			return nil, missing(w.Type, "message")
		}
		return ChatMessage{Username: w.Username, Message: *w.Message, Timestamp: w.Timestamp}, nil
	case KindCursorUpdate:
		if w.Position == nil {
			return nil, missing(w.Type, "position")
		}
		return CursorUpdate{Username: w.Username, Position: *w.Position}, nil
	case KindSystemMessage:
		if w.Message == nil {
			return nil, missing(w.Type, "message")
		}
		return SystemMessage{Message: *w.Message, Timestamp: w.Timestamp}, nil
	default:
		return Ignored{Type: w.Type}, nil
	}
}

// Encode renders a message as a single JSON frame.
func Encode(m Message) ([]byte, error) {
	w := wireMessage{Type: string(m.Kind())}

	switch v := m.(type) {
	case CodeUpdate:
		w.Code = &v.Code
	case ExecuteCode:
		w.Code = &v.Code
		w.Language = v.Language
	case ExecutionResult:
		w.Output = &v.Output
	case ExecutionError:
		w.Error = &v.Error
	case ChatMessage:
		w.Username = v.Username
		w.Message = &v.Message
		w.Timestamp = v.Timestamp
	case CursorUpdate:
		w.Username = v.Username
		w.Position = &v.Position
	case SystemMessage:
		w.Message = &v.Message
		w.Timestamp = v.Timestamp
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnencodable, m.Kind())
	}

	return json.Marshal(w)
}

func missing(tag, field string) error {
	return fmt.Errorf("%w: %s without %s", ErrMalformed, tag, field)
}
