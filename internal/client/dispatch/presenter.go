package dispatch

import (
	"html"
	"strings"

	"github.com/zhouzirui/coderoom/backend/internal/client/session"
)

// Output is an execution result ready for display. Text is the literal
// text; HTML is the same text escaped for markup surfaces.
type Output struct {
	Text  string
	HTML  string
	Error bool
}

// Presenter renders session changes. It is called from the client event
// loop and must not block.
type Presenter interface {
	RenderBuffer(text string, caret int)
	ShowOutput(out Output)
	AppendChat(entry session.ChatEntry)
	MoveCursor(cursor session.Cursor)
	Notice(message string)
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) RenderBuffer(string, int)     {}
func (NopPresenter) ShowOutput(Output)            {}
func (NopPresenter) AppendChat(session.ChatEntry) {}
func (NopPresenter) MoveCursor(session.Cursor)    {}
func (NopPresenter) Notice(string)                {}

// resultOutput escapes untrusted output and turns newlines into line
// breaks. No other markup is interpreted.
func resultOutput(text string) Output {
	return Output{
		Text: text,
		HTML: strings.ReplaceAll(html.EscapeString(text), "\n", "<br>"),
	}
}

func errorOutput(text string) Output {
	text = "Error: " + text
	return Output{
		Text:  text,
		HTML:  html.EscapeString(text),
		Error: true,
	}
}
