package termview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pkt.systems/cellview/internal/eventbus"
	"pkt.systems/cellview/internal/logx"
	"pkt.systems/cellview/internal/snapshot"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// Source is the viewer as seen by an interactive session.
type Source interface {
	Snapshot(ctx context.Context) snapshot.Document
	Hover(ctx context.Context, node schema.NodeID, token schema.TokenID, enter bool) (snapshot.Cell, error)
}

// Events is where a session subscribes to viewer changes.
type Events interface {
	Subscribe() (<-chan eventbus.Event, func())
}

// Size is a terminal size in cells.
type Size struct {
	Width  int
	Height int
}

// SessionConfig configures an interactive session.
type SessionConfig struct {
	Theme string
	Plain bool
	// AltScreen switches to the alternate screen for the session.
	AltScreen bool
}

// Session is an interactive terminal view of the viewer. Up and Down
// select a cell, Left and Right move a token cursor across the selected
// cell and hover the token under it.
type Session struct {
	src     Source
	in      io.Reader
	screen  *Screen
	bus     Events
	theme   Theme
	plain   bool
	alt     bool
	width   int
	height  int
	ctx     context.Context
	doc     snapshot.Document
	follow  bool
	offset  int
	spinner int
	dirty   bool

	selected schema.NodeID
	cursor   schema.TokenID
	hovered  *snapshot.Active
	note     string
}

// NewSession returns a session reading keys from in and drawing to out.
// Events from bus trigger a refresh of the snapshot; a nil bus disables
// that.
func NewSession(src Source, in io.Reader, out io.Writer, bus Events, cfg SessionConfig) *Session {
	s := &Session{
		src:    src,
		in:     in,
		screen: NewScreen(out),
		bus:    bus,
		theme:  ThemeFor(cfg.Theme),
		plain:  cfg.Plain,
		alt:    cfg.AltScreen,
		follow: true,
		ctx:    context.Background(),
	}
	s.SetSize(80, 24)
	return s
}

// SetSize updates the terminal size.
func (s *Session) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	s.width = width
	s.height = height
}

func (s *Session) log() pslog.Logger {
	return pslog.Ctx(s.ctx)
}

// Run draws the session until the input ends, the user quits or ctx is
// done. Any token hovered by the session is left on exit.
func (s *Session) Run(ctx context.Context, resize <-chan Size) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	if s.alt {
		s.screen.EnterAltScreen()
		defer s.screen.ExitAltScreen()
	}
	defer s.leaveHovered()

	var events <-chan eventbus.Event
	unsubscribe := func() {}
	if s.bus != nil {
		events, unsubscribe = s.bus.Subscribe()
	}
	defer func() { unsubscribe() }()

	s.refresh()
	s.render()
	s.log().Info("termview session start", "width", s.width, "height", s.height)

	keys := make(chan key, 16)
	go readKeys(s.in, keys)

	spinnerTicker := time.NewTicker(250 * time.Millisecond)
	defer spinnerTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if s.handleKey(k) {
				s.log().Info("termview session quit")
				return nil
			}
		case size, ok := <-resize:
			if !ok {
				resize = nil
				break
			}
			s.SetSize(size.Width, size.Height)
			s.dirty = true
			s.log().Debug("termview resize", "width", s.width, "height", s.height)
		case ev, ok := <-events:
			if !ok {
				// Dropped for lagging; resubscribe and resynchronize.
				s.log().Warn("termview events closed; resubscribing")
				events, unsubscribe = s.bus.Subscribe()
				s.refresh()
				s.dirty = true
				break
			}
			s.handleEvent(ev)
		case <-spinnerTicker.C:
			if s.hasRunning() {
				s.spinner = (s.spinner + 1) % len(spinnerFrames)
				s.dirty = true
			}
		}
		if s.dirty {
			s.render()
			s.dirty = false
		}
	}
}

func (s *Session) handleEvent(ev eventbus.Event) {
	if ev.Type == eventbus.EventReset {
		s.selected = ""
		s.cursor = ""
		s.hovered = nil
		s.follow = true
	}
	s.refresh()
	s.dirty = true
}

// refresh takes a new snapshot and drops a selection that is no longer
// visible.
func (s *Session) refresh() {
	s.doc = s.src.Snapshot(s.ctx)
	if s.selected == "" {
		return
	}
	cell, ok := s.doc.Cell(s.selected)
	if !ok {
		s.selected = ""
		s.cursor = ""
		s.hovered = nil
		return
	}
	if s.cursor != "" && indexOf(cell.Hoverable, s.cursor) < 0 {
		s.cursor = ""
	}
	if s.hovered != nil && (s.doc.Active == nil || *s.doc.Active != *s.hovered) {
		s.hovered = nil
	}
}

func (s *Session) handleKey(k key) bool {
	switch k.kind {
	case keyCtrlC, keyCtrlD:
		return true
	case keyRune:
		switch k.r {
		case 'q', 'Q':
			return true
		case 'k':
			s.moveSelection(-1)
		case 'j':
			s.moveSelection(1)
		case 'h':
			s.moveCursor(-1)
		case 'l':
			s.moveCursor(1)
		case 'g':
			s.follow = false
			s.offset = 0
		case 'G':
			s.tail()
		default:
			return false
		}
	case keyUp:
		s.moveSelection(-1)
	case keyDown:
		s.moveSelection(1)
	case keyLeft, keyShiftTab:
		s.moveCursor(-1)
	case keyRight, keyTab:
		s.moveCursor(1)
	case keyEscape:
		s.leaveHovered()
		s.selected = ""
		s.cursor = ""
	case keyHome:
		s.follow = false
		s.offset = 0
	case keyEnd:
		s.tail()
	case keyPageUp:
		s.scroll(-(s.bodyHeight() - 1))
	case keyPageDown:
		s.scroll(s.bodyHeight() - 1)
	case keyCtrlL:
		s.refresh()
	default:
		return false
	}
	s.dirty = true
	return false
}

func (s *Session) tail() {
	s.leaveHovered()
	s.selected = ""
	s.cursor = ""
	s.follow = true
}

func (s *Session) scroll(delta int) {
	if delta == 0 {
		delta = 1
	}
	s.follow = false
	s.offset += delta
	if s.offset < 0 {
		s.offset = 0
	}
}

func (s *Session) moveSelection(step int) {
	visible := s.doc.Visible
	if len(visible) == 0 {
		return
	}
	idx := indexOf(visible, s.selected)
	switch {
	case idx < 0 && step < 0:
		idx = len(visible) - 1
	case idx < 0:
		idx = 0
	default:
		idx += step
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(visible) {
		s.tail()
		return
	}
	if visible[idx] == s.selected {
		return
	}
	s.leaveHovered()
	s.selected = visible[idx]
	s.cursor = ""
	s.follow = false
}

func (s *Session) moveCursor(step int) {
	if s.selected == "" {
		s.moveSelection(-1)
		if s.selected == "" {
			return
		}
	}
	cell, ok := s.doc.Cell(s.selected)
	if !ok || len(cell.Hoverable) == 0 {
		s.note = "no hoverable tokens"
		return
	}
	idx := indexOf(cell.Hoverable, s.cursor)
	switch {
	case idx < 0 && step < 0:
		idx = len(cell.Hoverable) - 1
	case idx < 0:
		idx = 0
	default:
		idx = (idx + step + len(cell.Hoverable)) % len(cell.Hoverable)
	}
	s.cursor = cell.Hoverable[idx]
	s.enter(cell.ID, s.cursor)
}

func (s *Session) enter(node schema.NodeID, token schema.TokenID) {
	log := logx.WithToken(logx.WithNode(s.ctx, node), token)
	if _, err := s.src.Hover(s.ctx, node, token, true); err != nil {
		s.note = hoverNote(err)
		log.Warn("termview hover enter failed", "error", err)
		s.refresh()
		return
	}
	s.note = ""
	s.hovered = &snapshot.Active{Node: node, Token: token}
	s.refresh()
}

func (s *Session) leaveHovered() {
	if s.hovered == nil {
		return
	}
	active := *s.hovered
	s.hovered = nil
	if _, err := s.src.Hover(s.ctx, active.Node, active.Token, false); err != nil {
		logx.WithToken(logx.WithNode(s.ctx, active.Node), active.Token).Debug("termview hover leave failed", "error", err)
	}
	s.refresh()
}

func hoverNote(err error) string {
	switch {
	case errors.Is(err, schema.ErrStructural):
		return "structural error"
	case errors.Is(err, schema.ErrTokenNotHoverable):
		return "token not hoverable"
	case errors.Is(err, schema.ErrCellNotFound):
		return "cell gone"
	default:
		return fmt.Sprintf("hover failed: %v", err)
	}
}

func (s *Session) hasRunning() bool {
	for _, cell := range s.doc.Cells {
		if cell.State == schema.ResultRunning.String() {
			return true
		}
	}
	return false
}

func (s *Session) bodyHeight() int {
	h := s.height - 1
	if h < 1 {
		h = 1
	}
	return h
}

func (s *Session) options() Options {
	return Options{
		Width:    s.width,
		Theme:    s.theme,
		Plain:    s.plain,
		Selected: s.selected,
		Cursor:   s.cursor,
		Spinner:  s.spinner,
	}
}

// Frame returns the lines of the current screen.
func (s *Session) Frame() []string {
	opts := s.options()
	note := s.note
	if note == "" && s.selected != "" {
		note = "cell " + string(s.selected)
		if s.cursor != "" {
			note += " token " + string(s.cursor)
		}
	}
	lines := make([]string, 0, s.height)
	lines = append(lines, StatusLine(s.doc, opts, note))
	layout := Render(s.doc, opts)
	lines = append(lines, s.viewport(layout)...)
	return lines
}

func (s *Session) viewport(layout Layout) []string {
	height := s.bodyHeight()
	total := len(layout.Lines)
	maxOffset := total - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if s.follow {
		s.offset = maxOffset
	} else if r, ok := layout.Cells[s.selected]; ok && s.selected != "" {
		if r.Start < s.offset {
			s.offset = r.Start
		}
		if r.End > s.offset+height {
			s.offset = r.End - height
		}
	}
	if s.offset > maxOffset {
		s.offset = maxOffset
	}
	if s.offset < 0 {
		s.offset = 0
	}
	end := s.offset + height
	if end > total {
		end = total
	}
	rows := make([]string, 0, height)
	for _, line := range layout.Lines[s.offset:end] {
		trimmed := trimANSIToWidth(line, s.width)
		if !s.plain && trimmed != line {
			trimmed += ansiReset
		}
		rows = append(rows, trimmed)
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	return rows
}

func (s *Session) render() {
	if err := s.screen.Render(s.Frame()); err != nil {
		s.log().Warn("termview render failed", "error", err)
	}
}

func indexOf[T comparable](items []T, want T) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}
