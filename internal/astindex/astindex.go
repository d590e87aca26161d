// Package astindex answers parent and children queries over the syntax index
// that accompanies each cell's source.
package astindex

import (
	"fmt"

	"pkt.systems/cellview/schema"
)

// StructuralError reports a token whose parent cannot be resolved. It carries
// the offending token and the index it was looked up in.
type StructuralError struct {
	Block    schema.BlockID
	Token    schema.TokenID
	Parents  map[schema.TokenID]schema.TokenID
	Children map[schema.TokenID][]schema.TokenID
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%v: block %s token %s has no parent (%d parent entries, %d child entries)",
		schema.ErrStructural, e.Block, e.Token, len(e.Parents), len(e.Children))
}

// Unwrap returns schema.ErrStructural.
func (e *StructuralError) Unwrap() error {
	return schema.ErrStructural
}

// Index is a read-only view over one block's syntax index.
type Index struct {
	block    schema.BlockID
	parent   map[schema.TokenID]schema.TokenID
	children map[schema.TokenID][]schema.TokenID
	isChild  map[schema.TokenID]bool
}

// New indexes info for block.
func New(block schema.BlockID, info schema.ASTInfo) *Index {
	isChild := make(map[schema.TokenID]bool)
	for _, kids := range info.Children {
		for _, kid := range kids {
			isChild[kid] = true
		}
	}
	return &Index{
		block:    block,
		parent:   info.Parent,
		children: info.Children,
		isChild:  isChild,
	}
}

// Block returns the block the index belongs to.
func (x *Index) Block() schema.BlockID {
	return x.block
}

// IsRoot reports whether token has no recorded parent and is nobody's child.
func (x *Index) IsRoot(token schema.TokenID) bool {
	if _, ok := x.parent[token]; ok {
		return false
	}
	return !x.isChild[token]
}

// ParentOf returns the parent of token. A root token is its own parent. Any
// other token without a parent entry is a structural error.
func (x *Index) ParentOf(token schema.TokenID) (schema.TokenID, error) {
	if parent, ok := x.parent[token]; ok {
		return parent, nil
	}
	if !x.isChild[token] {
		return token, nil
	}
	return "", &StructuralError{
		Block:    x.block,
		Token:    token,
		Parents:  x.parent,
		Children: x.children,
	}
}

// ChildrenOf returns the ordered children of token. A token without an entry
// has no children.
func (x *Index) ChildrenOf(token schema.TokenID) []schema.TokenID {
	return x.children[token]
}
