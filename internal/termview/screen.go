package termview

import (
	"io"
	"strings"
)

// Screen redraws a full frame on the alternate screen.
type Screen struct {
	out io.Writer
}

// NewScreen returns a Screen writing to out.
func NewScreen(out io.Writer) *Screen {
	return &Screen{out: out}
}

// EnterAltScreen switches to the alternate screen and clears it.
func (s *Screen) EnterAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1049h\x1b[H\x1b[2J")
}

// ExitAltScreen restores the main screen and the cursor.
func (s *Screen) ExitAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1049l\x1b[?25h")
}

// Render clears the screen and writes lines top to bottom with the cursor
// hidden.
func (s *Screen) Render(lines []string) error {
	var b strings.Builder
	b.WriteString("\x1b[?25l")
	b.WriteString("\x1b[H\x1b[2J")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
	}
	_, err := io.WriteString(s.out, b.String())
	return err
}
