// Package protocol defines the messages exchanged between room participants
// and the relay. Every frame is a JSON object tagged by its "type" field.
package protocol

// Kind identifies the variant carried by a frame.
type Kind string

const (
	KindCodeUpdate      Kind = "code_update"
	KindExecuteCode     Kind = "execute_code"
	KindExecutionResult Kind = "execution_result"
	KindExecutionError  Kind = "execution_error"
	KindChatMessage     Kind = "chat_message"
	KindCursorUpdate    Kind = "cursor_update"
	KindSystemMessage   Kind = "system_message"
)

// Message is implemented only by the variants declared in this package.
type Message interface {
	Kind() Kind
	isMessage()
}

// CodeUpdate carries the complete buffer text, never a diff.
type CodeUpdate struct {
	Code string
}

// ExecuteCode asks the relay to run the buffer. Sent by clients only.
type ExecuteCode struct {
	Code     string
	Language string
}

// ExecutionResult is the output of a successful run.
type ExecutionResult struct {
	Output string
}

// ExecutionError reports a run that could not complete.
type ExecutionError struct {
	Error string
}

// ChatMessage is a chat line. Clients send only Message; the relay stamps
// Username and Timestamp before fanning it out.
type ChatMessage struct {
	Username  string
	Message   string
	Timestamp string
}

// Coords are pixel coordinates relative to the text area origin.
type Coords struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// Position is a caret report: the linear offset plus the coordinates the
// sender resolved for it.
type Position struct {
	Index  int    `json:"index"`
	Coords Coords `json:"coords"`
}

// CursorUpdate reports a caret position. Username is set by the relay.
type CursorUpdate struct {
	Username string
	Position Position
}

// SystemMessage is a relay notice such as a join or leave.
type SystemMessage struct {
	Message   string
	Timestamp string
}

// Ignored stands in for any frame whose tag is not part of the protocol.
type Ignored struct {
	Type string
}

func (CodeUpdate) Kind() Kind      { return KindCodeUpdate }
func (ExecuteCode) Kind() Kind     { return KindExecuteCode }
func (ExecutionResult) Kind() Kind { return KindExecutionResult }
func (ExecutionError) Kind() Kind  { return KindExecutionError }
func (ChatMessage) Kind() Kind     { return KindChatMessage }
func (CursorUpdate) Kind() Kind    { return KindCursorUpdate }
func (SystemMessage) Kind() Kind   { return KindSystemMessage }
func (m Ignored) Kind() Kind       { return Kind(m.Type) }

func (CodeUpdate) isMessage()      {}
func (ExecuteCode) isMessage()     {}
func (ExecutionResult) isMessage() {}
func (ExecutionError) isMessage()  {}
func (ChatMessage) isMessage()     {}
func (CursorUpdate) isMessage()    {}
func (SystemMessage) isMessage()   {}
func (Ignored) isMessage()         {}
