// Package snapshot holds immutable views of the viewer state that can be
// handed to other goroutines.
package snapshot

import (
	"strings"

	"pkt.systems/cellview/internal/cellrender"
	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/internal/hover"
	"pkt.systems/cellview/internal/richtext"
	"pkt.systems/cellview/schema"
)

// Highlight is the hover styling of a run of text.
type Highlight int

const (
	// HighlightNone is unstyled text.
	HighlightNone Highlight = iota
	// HighlightSelf is text inside the hovered token's parent.
	HighlightSelf
	// HighlightRelated is text inside a sibling subtree.
	HighlightRelated
)

func (h Highlight) String() string {
	switch h {
	case HighlightSelf:
		return "self"
	case HighlightRelated:
		return "related"
	default:
		return "none"
	}
}

// Run is a stretch of cell text sharing one style.
type Run struct {
	Text      string         `json:"text"`
	Highlight Highlight      `json:"highlight"`
	Token     schema.TokenID `json:"token,omitempty"`
	Math      bool           `json:"math,omitempty"`
}

// Cell is the view of one visible cell.
type Cell struct {
	ID        schema.NodeID    `json:"id"`
	Line      int              `json:"line"`
	Block     schema.BlockID   `json:"block"`
	State     string           `json:"state"`
	HTML      string           `json:"html"`
	Text      string           `json:"text"`
	Lexemes   []schema.TokenID `json:"lexemes"`
	Hoverable []schema.TokenID `json:"hoverable"`
	Runs      []Run            `json:"-"`
}

// Active is the hovered token.
type Active struct {
	Node  schema.NodeID  `json:"node"`
	Token schema.TokenID `json:"token"`
}

// Document is the view of the whole surface.
type Document struct {
	Seq     uint64          `json:"seq"`
	Visible []schema.NodeID `json:"visible"`
	Cells   []Cell          `json:"cells"`
	Live    int             `json:"live"`
	Active  *Active         `json:"active,omitempty"`
	HTML    string          `json:"-"`
}

// Cell returns the visible cell with id. A deleted cell can still be on
// display under an id that was created again; the newer one is displayed
// after it and wins.
func (d Document) Cell(id schema.NodeID) (Cell, bool) {
	for i := len(d.Cells) - 1; i >= 0; i-- {
		if d.Cells[i].ID == id {
			return d.Cells[i], true
		}
	}
	return Cell{}, false
}

const spanPrefix = "span_"

var blockTags = map[string]bool{
	"div": true, "p": true, "pre": true, "br": true, "li": true,
	"tr": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "table": true, "ul": true, "ol": true,
}

type frame struct {
	node      *dom.Node
	highlight Highlight
	token     schema.TokenID
	math      bool
	exit      bool
}

// Runs flattens the text of a cell element into styled runs. The line
// number marker is skipped and block elements end with a newline.
func Runs(el *dom.Node) []Run {
	if el == nil {
		return nil
	}
	var runs []Run
	emit := func(run Run) {
		if run.Text == "" {
			return
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.Highlight == run.Highlight && last.Token == run.Token && last.Math == run.Math {
				last.Text += run.Text
				return
			}
		}
		runs = append(runs, run)
	}
	endsWithNewline := func() bool {
		if len(runs) == 0 {
			return true
		}
		return strings.HasSuffix(runs[len(runs)-1].Text, "\n")
	}

	stack := []frame{}
	for _, child := range reversed(el.Children()) {
		stack = append(stack, frame{node: child})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := top.node
		if top.exit {
			if !endsWithNewline() {
				emit(Run{Text: "\n"})
			}
			continue
		}
		switch node.Type {
		case dom.TextNode:
			emit(Run{Text: node.Data, Highlight: top.highlight, Token: top.token, Math: top.math})
			continue
		case dom.ElementNode:
		default:
			continue
		}
		if node.HasClass(cellrender.LineNumClass) {
			continue
		}
		ctx := top
		if bg := node.Style(hover.PropBackground); bg != "" {
			ctx.highlight = highlightOf(bg)
		}
		if id := node.ID(); strings.HasPrefix(id, spanPrefix) {
			if idx := strings.LastIndexByte(id, '_'); idx > len(spanPrefix)-1 {
				ctx.token = schema.TokenID(id[idx+1:])
			}
		}
		if node.HasClass(richtext.MathClass) {
			ctx.math = true
		}
		if node.Tag == "br" {
			emit(Run{Text: "\n"})
			continue
		}
		if blockTags[node.Tag] {
			if !endsWithNewline() {
				emit(Run{Text: "\n"})
			}
			stack = append(stack, frame{node: node, exit: true})
		}
		for _, child := range reversed(node.Children()) {
			stack = append(stack, frame{node: child, highlight: ctx.highlight, token: ctx.token, math: ctx.math})
		}
	}
	for len(runs) > 0 && strings.TrimRight(runs[len(runs)-1].Text, "\n") == "" {
		runs = runs[:len(runs)-1]
	}
	if n := len(runs); n > 0 {
		runs[n-1].Text = strings.TrimRight(runs[n-1].Text, "\n")
	}
	return runs
}

// PlainText concatenates the run texts.
func PlainText(runs []Run) string {
	var b strings.Builder
	for _, run := range runs {
		b.WriteString(run.Text)
	}
	return b.String()
}

func highlightOf(background string) Highlight {
	switch background {
	case hover.RelatedBackground:
		return HighlightRelated
	case hover.SelfBackground:
		return HighlightSelf
	default:
		return HighlightNone
	}
}

func reversed(nodes []*dom.Node) []*dom.Node {
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}
