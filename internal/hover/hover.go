// Package hover highlights the syntactic context of a pointed-at token.
//
// Entering a token styles the subtree of its parent with the self highlight
// and every subtree rooted at one of the parent's children with the related
// highlight. Leaving clears the same spans. Spans are looked up by their
// derived id when the event happens, so a binding stays valid across in-place
// re-renders of the cell.
package hover

import (
	"context"
	"errors"

	"pkt.systems/cellview/internal/astindex"
	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/internal/logx"
	"pkt.systems/cellview/schema"
)

// Style values applied by Enter.
const (
	SelfBackground    = "lightblue"
	SelfOutlineColor  = "lightblue"
	SelfOutlineStyle  = "solid"
	RelatedBackground = "yellow"
)

// Style properties touched by the controller.
const (
	PropBackground   = "background-color"
	PropOutlineColor = "outline-color"
	PropOutlineStyle = "outline-style"
)

// CellContext is what a hover binding needs to know about its cell.
type CellContext struct {
	Node    schema.NodeID
	Element *dom.Node
	Block   schema.BlockID
	Index   *astindex.Index
}

func (c CellContext) span(token schema.TokenID) *dom.Node {
	if c.Element == nil {
		return nil
	}
	return c.Element.QueryByID(schema.SpanID(c.Block, token))
}

// Binding is the set of tokens of one cell that respond to pointer events.
type Binding struct {
	Cell   CellContext
	tokens []schema.TokenID
	set    map[schema.TokenID]bool
}

// Hoverable reports whether token is bound.
func (b *Binding) Hoverable(token schema.TokenID) bool {
	return b != nil && b.set[token]
}

// Tokens returns the bound tokens in lexeme order.
func (b *Binding) Tokens() []schema.TokenID {
	if b == nil {
		return nil
	}
	return append([]schema.TokenID(nil), b.tokens...)
}

// Active describes the token currently entered.
type Active struct {
	Cell  CellContext
	Token schema.TokenID
}

// Controller applies and clears hover highlights. It keeps at most one token
// active; entering a token leaves the previously active one first.
type Controller struct {
	active *Active
}

// New returns a Controller with no active token.
func New() *Controller {
	return &Controller{}
}

// Attach binds every lexeme of the cell that has a span in the cell element.
// Lexemes without a span are not hoverable.
func (c *Controller) Attach(ctx context.Context, cell CellContext, lexemes []schema.TokenID) *Binding {
	binding := &Binding{Cell: cell, set: make(map[schema.TokenID]bool, len(lexemes))}
	skipped := 0
	for _, token := range lexemes {
		if binding.set[token] {
			continue
		}
		if cell.span(token) == nil {
			skipped++
			continue
		}
		binding.set[token] = true
		binding.tokens = append(binding.tokens, token)
	}
	logx.WithNodeBlock(ctx, cell.Node, cell.Block).Trace("hover attach", "tokens", len(binding.tokens), "skipped", skipped)
	return binding
}

// Active returns the active token, if any.
func (c *Controller) Active() (Active, bool) {
	if c.active == nil {
		return Active{}, false
	}
	return *c.active, true
}

// Enter highlights the context of token. A structural error aborts the
// interaction and leaves no token active.
func (c *Controller) Enter(ctx context.Context, cell CellContext, token schema.TokenID) error {
	if c.active != nil {
		if c.active.Cell.Element == cell.Element && c.active.Token == token {
			return nil
		}
		prev := *c.active
		// Leave reports its own errors and always drops the active token.
		_ = c.Leave(ctx, prev.Cell, prev.Token)
	}
	log := logx.WithToken(logx.WithNodeBlock(ctx, cell.Node, cell.Block), token)
	parent, err := cell.Index.ParentOf(token)
	if err != nil {
		c.report(ctx, cell, token, err)
		return err
	}
	walk(cell, []schema.TokenID{parent}, applySelf)
	walk(cell, cell.Index.ChildrenOf(parent), applyRelated)
	c.active = &Active{Cell: cell, Token: token}
	log.Trace("hover enter", "parent", parent)
	return nil
}

// Leave clears the highlight applied by Enter for token. Leaving a token
// that is not the active one is a no-op: its highlight was already
// replaced when the active token was entered.
func (c *Controller) Leave(ctx context.Context, cell CellContext, token schema.TokenID) error {
	if c.active == nil || c.active.Cell.Element != cell.Element || c.active.Token != token {
		logx.WithToken(logx.WithNodeBlock(ctx, cell.Node, cell.Block), token).Trace("hover leave ignored; token not active")
		return nil
	}
	c.active = nil
	parent, err := cell.Index.ParentOf(token)
	if err != nil {
		c.report(ctx, cell, token, err)
		return err
	}
	walk(cell, []schema.TokenID{parent}, clearHighlight)
	walk(cell, cell.Index.ChildrenOf(parent), clearHighlight)
	logx.WithToken(logx.WithNodeBlock(ctx, cell.Node, cell.Block), token).Trace("hover leave", "parent", parent)
	return nil
}

// Clear forgets the active token without touching styles. Used when the
// surface is torn down by a reset.
func (c *Controller) Clear() {
	c.active = nil
}

// Forget drops the active token if it belongs to element.
func (c *Controller) Forget(element *dom.Node) {
	if c.active != nil && c.active.Cell.Element == element {
		c.active = nil
	}
}

func (c *Controller) report(ctx context.Context, cell CellContext, token schema.TokenID, err error) {
	log := logx.WithToken(logx.WithNodeBlock(ctx, cell.Node, cell.Block), token)
	var structural *astindex.StructuralError
	if errors.As(err, &structural) {
		log.Error("hover structural error", "error", err, "parents", structural.Parents, "children", structural.Children)
		return
	}
	log.Error("hover failed", "error", err)
}

func applySelf(span *dom.Node) {
	span.SetStyle(PropBackground, SelfBackground)
	span.SetStyle(PropOutlineColor, SelfOutlineColor)
	span.SetStyle(PropOutlineStyle, SelfOutlineStyle)
}

func applyRelated(span *dom.Node) {
	span.SetStyle(PropBackground, RelatedBackground)
}

func clearHighlight(span *dom.Node) {
	span.RemoveStyle(PropBackground)
	span.RemoveStyle(PropOutlineColor)
	span.RemoveStyle(PropOutlineStyle)
}

// walk visits every token in the subtrees rooted at roots, pre-order, and
// applies fn to each token's span. Tokens without a span are skipped but
// their children are still visited.
func walk(cell CellContext, roots []schema.TokenID, fn func(*dom.Node)) {
	seen := make(map[schema.TokenID]bool)
	stack := make([]schema.TokenID, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		token := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[token] {
			continue
		}
		seen[token] = true
		if span := cell.span(token); span != nil {
			fn(span)
		}
		children := cell.Index.ChildrenOf(token)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
