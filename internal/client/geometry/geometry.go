// Package geometry maps a linear caret offset inside a text buffer to pixel
// coordinates inside the rendered text area.
package geometry

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Coords are pixel coordinates relative to the text area's top-left corner.
type Coords struct {
	Top  float64
	Left float64
}

// Metrics describes how the text area renders text.
type Metrics struct {
	LineHeight   float64
	PaddingTop   float64
	PaddingLeft  float64
	PaddingRight float64
	// WrapWidth is the outer width of the text area. Zero disables wrapping.
	WrapWidth float64
}

// Measurer reports the rendered width of a single visual line of text.
type Measurer interface {
	Width(s string) float64
}

// cells ignores the process locale so ambiguous-width runes always take a
// single cell.
var cells = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	return c
}()

// Monospace measures text in fixed-width cells. Wide runes take two cells
// and tabs advance to the next multiple of TabSize.
type Monospace struct {
	CharWidth float64
	TabSize   int
}

// Width implements Measurer.
func (m Monospace) Width(s string) float64 {
	tab := m.TabSize
	if tab <= 0 {
		tab = 8
	}

	n := 0
	for _, r := range s {
		if r == '\t' {
			n += tab - n%tab
			continue
		}
		n += cells.RuneWidth(r)
	}
	return float64(n) * m.CharWidth
}

// Resolver is a pure function of its inputs; it keeps no state between calls.
type Resolver struct {
	metrics  Metrics
	measurer Measurer
}

// NewResolver returns a resolver for the given metrics.
func NewResolver(metrics Metrics, measurer Measurer) *Resolver {
	return &Resolver{metrics: metrics, measurer: measurer}
}

// Metrics returns the metrics the resolver was built with.
func (r *Resolver) Metrics() Metrics {
	return r.metrics
}

// Resolve returns the coordinates of the caret placed before the rune at
// offset. Offsets outside the text are clamped.
func (r *Resolver) Resolve(text string, offset int) Coords {
	before := prefix(text, offset)
	lines := strings.Split(before, "\n")
	current := lines[len(lines)-1]

	row := 0
	for _, line := range lines[:len(lines)-1] {
		rows, _ := r.wrap(line)
		row += rows
	}
	rows, last := r.wrap(current)
	row += rows - 1

	return Coords{
		Top:  float64(row)*r.metrics.LineHeight + r.metrics.PaddingTop,
		Left: r.measurer.Width(last) + r.metrics.PaddingLeft,
	}
}

// wrap breaks a logical line into visual rows no wider than the content
// box and returns the row count and the text on the final row.
func (r *Resolver) wrap(line string) (int, string) {
	limit := r.metrics.WrapWidth - r.metrics.PaddingLeft - r.metrics.PaddingRight
	if r.metrics.WrapWidth <= 0 || limit <= 0 {
		return 1, line
	}

	rows := 1
	start := 0
	for i, ch := range line {
		next := i + utf8.RuneLen(ch)
		if i > start && r.measurer.Width(line[start:next]) > limit {
			rows++
			start = i
		}
	}
	return rows, line[start:]
}

// prefix returns the text before the rune offset, clamped to the text.
func prefix(text string, offset int) string {
	if offset <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == offset {
			return text[:i]
		}
		n++
	}
	return text
}
