// Package termview renders viewer snapshots for ANSI terminals.
package termview

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"pkt.systems/cellview/internal/snapshot"
	"pkt.systems/cellview/schema"
)

var spinnerFrames = []rune{'|', '/', '-', '\\'}

const (
	markerWaiting  = '…'
	markerComplete = '✓'
	gutterSep      = " │ "
	lineNumWidth   = 4
)

// Options controls rendering.
type Options struct {
	Width int
	Theme Theme
	// Plain disables escape sequences.
	Plain bool
	// Selected is the cell under the keyboard cursor, if any.
	Selected schema.NodeID
	// Cursor is the token under the keyboard cursor inside Selected.
	Cursor  schema.TokenID
	Spinner int
}

// Range is a half-open range of rendered line indexes.
type Range struct {
	Start int
	End   int
}

// Layout is a rendered document.
type Layout struct {
	Lines []string
	Cells map[schema.NodeID]Range
}

// Render lays out every visible cell of doc in order.
func Render(doc snapshot.Document, opts Options) Layout {
	opts = normalizeOptions(opts)
	layout := Layout{Cells: make(map[schema.NodeID]Range, len(doc.Cells))}
	for _, cell := range doc.Cells {
		start := len(layout.Lines)
		layout.Lines = append(layout.Lines, CellLines(cell, opts)...)
		layout.Cells[cell.ID] = Range{Start: start, End: len(layout.Lines)}
	}
	return layout
}

// Text renders doc without escape sequences, one cell block after another.
func Text(doc snapshot.Document, width int) string {
	layout := Render(doc, Options{Width: width, Plain: true})
	if len(layout.Lines) == 0 {
		return ""
	}
	return strings.Join(layout.Lines, "\n") + "\n"
}

// CellLines renders one cell: a gutter with the state marker and line
// number followed by the wrapped cell text.
func CellLines(cell snapshot.Cell, opts Options) []string {
	opts = normalizeOptions(opts)
	textWidth := opts.Width - gutterWidth()
	if textWidth < 1 {
		textWidth = 1
	}
	selected := opts.Selected != "" && cell.ID == opts.Selected
	var rows [][]styledRune
	for _, logical := range logicalLines(cell.Runs, opts, selected) {
		rows = append(rows, wrapStyled(logical, textWidth)...)
	}
	if len(rows) == 0 {
		rows = [][]styledRune{nil}
	}
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		lines = append(lines, renderGutter(cell, opts, selected, i == 0)+encodeStyled(row, opts.Plain))
	}
	return lines
}

// StatusLine renders the bar shown above the cells.
func StatusLine(doc snapshot.Document, opts Options, note string) string {
	opts = normalizeOptions(opts)
	parts := []string{
		"cellview",
		fmt.Sprintf("seq %d", doc.Seq),
		fmt.Sprintf("cells %d/%d", len(doc.Visible), doc.Live),
	}
	if doc.Active != nil {
		parts = append(parts, fmt.Sprintf("hover %s:%s", doc.Active.Node, doc.Active.Token))
	}
	if note != "" {
		parts = append(parts, note)
	}
	text := " " + strings.Join(parts, " │ ") + " "
	text = trimToWidth(text, opts.Width)
	if opts.Plain {
		return text
	}
	pad := opts.Width - visibleWidth(text)
	if pad < 0 {
		pad = 0
	}
	theme := opts.Theme
	return ansiBgRGB(theme.BarBG) + ansiFgRGB(theme.BarFG) + text + strings.Repeat(" ", pad) + ansiReset
}

func normalizeOptions(opts Options) Options {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Theme.Name == "" {
		opts.Theme = ThemeFor(DefaultTheme)
	}
	return opts
}

func gutterWidth() int {
	return 2 + lineNumWidth + utf8.RuneCountInString(gutterSep)
}

func stateMarker(state string, spinner int) rune {
	switch state {
	case schema.ResultWaiting.String():
		return markerWaiting
	case schema.ResultRunning.String():
		if spinner < 0 {
			spinner = -spinner
		}
		return spinnerFrames[spinner%len(spinnerFrames)]
	case schema.ResultComplete.String():
		return markerComplete
	default:
		return '?'
	}
}

func renderGutter(cell snapshot.Cell, opts Options, selected, first bool) string {
	marker := " "
	number := strings.Repeat(" ", lineNumWidth)
	if first {
		marker = string(stateMarker(cell.State, opts.Spinner))
		number = fmt.Sprintf("%*d", lineNumWidth, cell.Line)
	}
	if opts.Plain {
		return marker + " " + number + gutterSep
	}
	theme := opts.Theme
	var b strings.Builder
	if first {
		b.WriteString(ansiFgRGB(markerColor(cell.State, theme)))
		b.WriteString(marker)
		b.WriteString(ansiReset)
	} else {
		b.WriteString(marker)
	}
	b.WriteString(" ")
	if selected {
		b.WriteString(ansiBold + ansiFgRGB(theme.SelectedFG))
	} else {
		b.WriteString(ansiFgRGB(theme.GutterFG))
	}
	b.WriteString(number)
	b.WriteString(gutterSep)
	b.WriteString(ansiReset)
	return b.String()
}

func markerColor(state string, theme Theme) rgb {
	switch state {
	case schema.ResultWaiting.String():
		return theme.WaitingFG
	case schema.ResultRunning.String():
		return theme.SpinnerFG
	case schema.ResultComplete.String():
		return theme.CompleteFG
	default:
		return theme.ErrorFG
	}
}

type styledRune struct {
	r     rune
	style string
}

func runStyle(run snapshot.Run, opts Options, selected bool) string {
	if opts.Plain {
		return ""
	}
	theme := opts.Theme
	var b strings.Builder
	switch run.Highlight {
	case snapshot.HighlightSelf:
		b.WriteString(ansiBgRGB(theme.SelfBG) + ansiFgRGB(theme.SelfFG))
	case snapshot.HighlightRelated:
		b.WriteString(ansiBgRGB(theme.RelatedBG) + ansiFgRGB(theme.RelatedFG))
	default:
		if run.Math {
			b.WriteString(ansiFgRGB(theme.MathFG))
		}
	}
	if selected && opts.Cursor != "" && run.Token == opts.Cursor {
		b.WriteString(ansiUnderline)
	}
	return b.String()
}

func logicalLines(runs []snapshot.Run, opts Options, selected bool) [][]styledRune {
	var lines [][]styledRune
	var current []styledRune
	for _, run := range runs {
		style := runStyle(run, opts, selected)
		for _, r := range run.Text {
			switch {
			case r == '\n':
				lines = append(lines, current)
				current = nil
			case r == '\t':
				for i := 0; i < 4; i++ {
					current = append(current, styledRune{r: ' ', style: style})
				}
			case r == '\r' || r == utf8.RuneError || unicode.IsControl(r):
			default:
				current = append(current, styledRune{r: r, style: style})
			}
		}
	}
	if len(current) > 0 || len(lines) == 0 {
		lines = append(lines, current)
	}
	return lines
}

type styledToken struct {
	runes []styledRune
	space bool
}

func tokenizeStyled(line []styledRune) []styledToken {
	var tokens []styledToken
	for _, sr := range line {
		space := unicode.IsSpace(sr.r)
		if n := len(tokens); n > 0 && tokens[n-1].space == space {
			tokens[n-1].runes = append(tokens[n-1].runes, sr)
			continue
		}
		tokens = append(tokens, styledToken{runes: []styledRune{sr}, space: space})
	}
	return tokens
}

// wrapStyled breaks a line at word boundaries, splitting words longer
// than width. Spaces at a wrap point are dropped.
func wrapStyled(line []styledRune, width int) [][]styledRune {
	if width <= 0 || len(line) == 0 {
		return [][]styledRune{nil}
	}
	var rows [][]styledRune
	var row []styledRune
	suppressLeadingSpace := false
	flush := func(wrapped bool) {
		if len(row) == 0 {
			return
		}
		rows = append(rows, row)
		row = nil
		suppressLeadingSpace = wrapped
	}
	for _, token := range tokenizeStyled(line) {
		if token.space {
			if len(row) == 0 && suppressLeadingSpace {
				continue
			}
			if len(row)+len(token.runes) > width {
				flush(true)
				continue
			}
			row = append(row, token.runes...)
			continue
		}
		word := token.runes
		if len(word) > width {
			if len(row) > 0 {
				flush(true)
			}
			for start := 0; start < len(word); start += width {
				end := start + width
				if end > len(word) {
					end = len(word)
				}
				row = append(row, word[start:end]...)
				if len(row) >= width {
					flush(true)
				}
			}
			continue
		}
		if len(row)+len(word) > width && len(row) > 0 {
			flush(true)
		}
		row = append(row, word...)
		suppressLeadingSpace = false
	}
	flush(false)
	if len(rows) == 0 {
		return [][]styledRune{nil}
	}
	return rows
}

func encodeStyled(row []styledRune, plain bool) string {
	var b strings.Builder
	current := ""
	for _, sr := range row {
		if !plain && sr.style != current {
			if current != "" {
				b.WriteString(ansiReset)
			}
			b.WriteString(sr.style)
			current = sr.style
		}
		b.WriteRune(sr.r)
	}
	if current != "" {
		b.WriteString(ansiReset)
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		return i + 1
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}

// StripANSI removes escape sequences from text.
func StripANSI(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width++
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
		visible++
	}
	return b.String()
}

func trimToWidth(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width])
}
