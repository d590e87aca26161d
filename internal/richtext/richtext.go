// Package richtext typesets inline and display math inside prose blocks.
package richtext

import (
	"strings"

	"pkt.systems/cellview/internal/dom"
)

const (
	// ProseClass marks elements whose text may contain math.
	ProseClass = "prose-block"
	// MathClass marks a rendered math span.
	MathClass = "math"
	// InlineClass marks inline math.
	InlineClass = "math-inline"
	// DisplayClass marks display math.
	DisplayClass = "math-display"
)

// Segment is a slice of prose text, either literal or math.
type Segment struct {
	Text    string
	Math    bool
	Display bool
}

type delimiter struct {
	open    string
	close   string
	display bool
}

// Longer openers first so "$$" wins over "$".
var delimiters = []delimiter{
	{open: "$$", close: "$$", display: true},
	{open: `\[`, close: `\]`, display: true},
	{open: `\(`, close: `\)`, display: false},
	{open: "$", close: "$", display: false},
}

// Split scans text for math delimiters. Escaped dollars (`\$`) stay literal
// and are kept verbatim so that splitting rendered output again yields the
// same result. An opener without a closer is literal text.
func Split(input string) []Segment {
	if input == "" {
		return nil
	}
	var segments []Segment
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		segments = append(segments, Segment{Text: buf.String()})
		buf.Reset()
	}

	for i := 0; i < len(input); {
		if input[i] == '\\' && i+1 < len(input) && input[i+1] == '$' {
			buf.WriteString(`\$`)
			i += 2
			continue
		}
		matched := false
		for _, delim := range delimiters {
			if !strings.HasPrefix(input[i:], delim.open) {
				continue
			}
			body := input[i+len(delim.open):]
			end := findClosing(body, delim.close)
			if end < 0 {
				continue
			}
			tex := body[:end]
			if strings.TrimSpace(tex) == "" {
				continue
			}
			flush()
			segments = append(segments, Segment{Text: tex, Math: true, Display: delim.display})
			i += len(delim.open) + end + len(delim.close)
			matched = true
			break
		}
		if matched {
			continue
		}
		buf.WriteByte(input[i])
		i++
	}
	flush()
	return segments
}

// findClosing returns the offset of the first unescaped closer, or -1.
func findClosing(remaining, closer string) int {
	dollar := closer[0] == '$'
	for i := 0; i < len(remaining); i++ {
		if dollar && remaining[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(remaining[i:], closer) {
			return i
		}
	}
	return -1
}

// HasMath reports whether Split would produce at least one math segment.
func HasMath(input string) bool {
	for _, seg := range Split(input) {
		if seg.Math {
			return true
		}
	}
	return false
}

var ignoredTags = map[string]bool{
	"script":   true,
	"noscript": true,
	"style":    true,
	"textarea": true,
	"pre":      true,
	"code":     true,
	"option":   true,
}

// Renderer rewrites math in the prose blocks of a subtree.
type Renderer struct{}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render typesets every prose block under root, root included.
func (r *Renderer) Render(root *dom.Node) {
	r.Apply(root)
}

// Apply typesets every prose block under root and returns the number of
// math spans it created. Already rendered math is left untouched.
func (r *Renderer) Apply(root *dom.Node) int {
	if root == nil {
		return 0
	}
	blocks := root.QueryByClass(ProseClass)
	if root.HasClass(ProseClass) {
		blocks = append([]*dom.Node{root}, blocks...)
	}
	created := 0
	for _, block := range blocks {
		created += renderBlock(block)
	}
	return created
}

func renderBlock(block *dom.Node) int {
	var texts []*dom.Node
	block.Walk(func(node *dom.Node) bool {
		if node.Type == dom.TextNode {
			texts = append(texts, node)
			return false
		}
		if node.Type != dom.ElementNode {
			return false
		}
		if node != block && (node.HasClass(MathClass) || ignoredTags[node.Tag]) {
			return false
		}
		return true
	})
	created := 0
	for _, text := range texts {
		segments := Split(text.Data)
		if !containsMath(segments) {
			continue
		}
		replacement := make([]*dom.Node, 0, len(segments))
		for _, seg := range segments {
			if !seg.Math {
				replacement = append(replacement, dom.NewText(seg.Text))
				continue
			}
			replacement = append(replacement, mathSpan(seg))
			created++
		}
		text.ReplaceWith(replacement...)
	}
	return created
}

func containsMath(segments []Segment) bool {
	for _, seg := range segments {
		if seg.Math {
			return true
		}
	}
	return false
}

func mathSpan(seg Segment) *dom.Node {
	span := dom.NewElement("span")
	class := MathClass + " " + InlineClass
	if seg.Display {
		class = MathClass + " " + DisplayClass
	}
	span.SetClass(class)
	span.SetAttr("data-tex", seg.Text)
	span.AppendChild(dom.NewText(seg.Text))
	return span
}
