// Package dom is the in-memory display surface the viewer renders cells onto.
// It models the small part of a browser DOM the viewer needs: elements with
// ids, classes and inline styles, text, and tree mutation with DOM move
// semantics.
package dom

import (
	"sort"
	"strings"
)

// NodeType distinguishes elements from character data.
type NodeType int

const (
	// ElementNode is a tag with attributes and children.
	ElementNode NodeType = iota
	// TextNode is character data.
	TextNode
	// CommentNode is an HTML comment, kept so markup round-trips.
	CommentNode
)

// Attr is a single element attribute other than style.
type Attr struct {
	Key string
	Val string
}

// Node is one node of the surface tree.
type Node struct {
	Type NodeType
	// Tag is the lower-case element name for elements.
	Tag string
	// Data is the content of text and comment nodes.
	Data string

	attrs    []Attr
	style    map[string]string
	parent   *Node
	children []*Node
}

// NewElement returns a detached element.
func NewElement(tag string) *Node {
	return &Node{Type: ElementNode, Tag: strings.ToLower(tag)}
}

// NewText returns a detached text node.
func NewText(text string) *Node {
	return &Node{Type: TextNode, Data: text}
}

// Parent returns the parent node or nil when detached.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// Attr returns the value of an attribute.
func (n *Node) Attr(key string) (string, bool) {
	for _, attr := range n.attrs {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// SetAttr sets an attribute, replacing an existing value. The style
// attribute is parsed into the inline style map.
func (n *Node) SetAttr(key, val string) {
	key = strings.ToLower(key)
	if key == "style" {
		n.style = parseStyle(val)
		return
	}
	for i := range n.attrs {
		if n.attrs[i].Key == key {
			n.attrs[i].Val = val
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Key: key, Val: val})
}

// ID returns the id attribute.
func (n *Node) ID() string {
	id, _ := n.Attr("id")
	return id
}

// Class returns the class attribute.
func (n *Node) Class() string {
	class, _ := n.Attr("class")
	return class
}

// SetClass replaces the class attribute.
func (n *Node) SetClass(class string) {
	n.SetAttr("class", class)
}

// HasClass reports whether the class list contains class.
func (n *Node) HasClass(class string) bool {
	for _, field := range strings.Fields(n.Class()) {
		if field == class {
			return true
		}
	}
	return false
}

// Style returns an inline style property.
func (n *Node) Style(prop string) string {
	return n.style[prop]
}

// SetStyle sets an inline style property.
func (n *Node) SetStyle(prop, value string) {
	if n.style == nil {
		n.style = make(map[string]string)
	}
	n.style[prop] = value
}

// RemoveStyle unsets an inline style property.
func (n *Node) RemoveStyle(prop string) {
	delete(n.style, prop)
}

// StyleText returns the inline style in attribute form with sorted properties.
func (n *Node) StyleText() string {
	if len(n.style) == 0 {
		return ""
	}
	props := make([]string, 0, len(n.style))
	for prop := range n.style {
		props = append(props, prop)
	}
	sort.Strings(props)
	parts := make([]string, 0, len(props))
	for _, prop := range props {
		parts = append(parts, prop+": "+n.style[prop])
	}
	return strings.Join(parts, "; ")
}

// AppendChild appends child, detaching it from its current parent first.
func (n *Node) AppendChild(child *Node) {
	if child == nil || child == n {
		return
	}
	if child.parent != nil {
		child.parent.removeChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
}

// Remove detaches the node from its parent.
func (n *Node) Remove() {
	if n.parent == nil {
		return
	}
	n.parent.removeChild(n)
}

// RemoveChildren detaches every child.
func (n *Node) RemoveChildren() {
	for _, child := range n.children {
		child.parent = nil
	}
	n.children = nil
}

// ReplaceWith puts nodes in place of n and detaches n.
func (n *Node) ReplaceWith(nodes ...*Node) {
	parent := n.parent
	if parent == nil {
		return
	}
	for _, node := range nodes {
		if node.parent != nil {
			node.parent.removeChild(node)
		}
		node.parent = parent
	}
	// Detaching the replacements may have shifted n.
	idx := parent.indexOf(n)
	if idx < 0 {
		return
	}
	out := make([]*Node, 0, len(parent.children)-1+len(nodes))
	out = append(out, parent.children[:idx]...)
	out = append(out, nodes...)
	out = append(out, parent.children[idx+1:]...)
	parent.children = out
	n.parent = nil
}

// LastElementChild returns the last element child or nil.
func (n *Node) LastElementChild() *Node {
	for i := len(n.children) - 1; i >= 0; i-- {
		if n.children[i].Type == ElementNode {
			return n.children[i]
		}
	}
	return nil
}

// ElementChildren returns the element children in order.
func (n *Node) ElementChildren() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, child := range n.children {
		if child.Type == ElementNode {
			out = append(out, child)
		}
	}
	return out
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	stack := []*Node{n}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(node) {
			continue
		}
		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, node.children[i])
		}
	}
}

// QueryByID returns the first descendant element with the given id.
func (n *Node) QueryByID(id string) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		if found != nil {
			return false
		}
		if node != n && node.Type == ElementNode && node.ID() == id {
			found = node
			return false
		}
		return true
	})
	return found
}

// QueryByClass returns every descendant element carrying class.
func (n *Node) QueryByClass(class string) []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node != n && node.Type == ElementNode && node.HasClass(class) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Text returns the concatenated character data below n.
func (n *Node) Text() string {
	var b strings.Builder
	n.Walk(func(node *Node) bool {
		if node.Type == TextNode {
			b.WriteString(node.Data)
		}
		return true
	})
	return b.String()
}

// Clone returns a detached deep copy.
func (n *Node) Clone() *Node {
	out := &Node{
		Type:  n.Type,
		Tag:   n.Tag,
		Data:  n.Data,
		attrs: append([]Attr(nil), n.attrs...),
	}
	if len(n.style) > 0 {
		out.style = make(map[string]string, len(n.style))
		for k, v := range n.style {
			out.style[k] = v
		}
	}
	for _, child := range n.children {
		c := child.Clone()
		c.parent = out
		out.children = append(out.children, c)
	}
	return out
}

func (n *Node) indexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *Node) removeChild(child *Node) {
	idx := n.indexOf(child)
	if idx < 0 {
		return
	}
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	child.parent = nil
}

func parseStyle(value string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(value, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		if prop == "" || val == "" {
			continue
		}
		out[prop] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
