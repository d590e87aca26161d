package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MainOutputID is the id of the element cells are rendered into.
const MainOutputID = "main-output"

// ParseFragment parses markup as the content of a body element and returns
// the resulting top-level nodes, detached.
func ParseFragment(markup string) ([]*Node, error) {
	if markup == "" {
		return nil, nil
	}
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]*Node, 0, len(parsed))
	for _, node := range parsed {
		if converted := fromHTML(node); converted != nil {
			out = append(out, converted)
		}
	}
	return out, nil
}

func fromHTML(src *html.Node) *Node {
	var node *Node
	switch src.Type {
	case html.ElementNode:
		node = NewElement(src.Data)
		for _, attr := range src.Attr {
			if attr.Namespace != "" {
				node.SetAttr(attr.Namespace+":"+attr.Key, attr.Val)
				continue
			}
			node.SetAttr(attr.Key, attr.Val)
		}
	case html.TextNode:
		return NewText(src.Data)
	case html.CommentNode:
		return &Node{Type: CommentNode, Data: src.Data}
	default:
		return nil
	}
	for child := src.FirstChild; child != nil; child = child.NextSibling {
		if converted := fromHTML(child); converted != nil {
			node.AppendChild(converted)
		}
	}
	return node
}

func toHTML(n *Node) *html.Node {
	switch n.Type {
	case TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	case CommentNode:
		return &html.Node{Type: html.CommentNode, Data: n.Data}
	}
	out := &html.Node{Type: html.ElementNode, Data: n.Tag, DataAtom: atom.Lookup([]byte(n.Tag))}
	for _, attr := range n.attrs {
		out.Attr = append(out.Attr, html.Attribute{Key: attr.Key, Val: attr.Val})
	}
	if style := n.StyleText(); style != "" {
		out.Attr = append(out.Attr, html.Attribute{Key: "style", Val: style})
	}
	for _, child := range n.children {
		out.AppendChild(toHTML(child))
	}
	return out
}

// Render writes n and its subtree as HTML.
func (n *Node) Render(w io.Writer) error {
	return html.Render(w, toHTML(n))
}

// InnerHTML returns the serialized children of n.
func (n *Node) InnerHTML() string {
	var buf bytes.Buffer
	for _, child := range n.children {
		_ = html.Render(&buf, toHTML(child))
	}
	return buf.String()
}

// OuterHTML returns n serialized as HTML.
func (n *Node) OuterHTML() string {
	var buf bytes.Buffer
	_ = n.Render(&buf)
	return buf.String()
}

// Document is the display surface: a body holding the main output element.
type Document struct {
	body *Node
	main *Node
}

// NewDocument returns an empty surface.
func NewDocument() *Document {
	body := NewElement("body")
	main := NewElement("div")
	main.SetAttr("id", MainOutputID)
	body.AppendChild(main)
	return &Document{body: body, main: main}
}

// Body returns the body element.
func (d *Document) Body() *Node {
	return d.body
}

// MainOutput returns the element cells are appended to.
func (d *Document) MainOutput() *Node {
	return d.main
}

// GetElementByID searches the whole surface, like document.getElementById.
func (d *Document) GetElementByID(id string) *Node {
	if d.body.ID() == id {
		return d.body
	}
	return d.body.QueryByID(id)
}
