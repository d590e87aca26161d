package astindex

import (
	"errors"
	"reflect"
	"testing"

	"pkt.systems/cellview/schema"
)

func sample() schema.ASTInfo {
	return schema.ASTInfo{
		Parent: map[schema.TokenID]schema.TokenID{"2": "1", "3": "1"},
		Children: map[schema.TokenID][]schema.TokenID{
			"1": {"2", "3"},
			"9": {"10"},
		},
	}
}

func TestParentOf(t *testing.T) {
	idx := New("0", sample())
	parent, err := idx.ParentOf("2")
	if err != nil {
		t.Fatalf("parent: %v", err)
	}
	if parent != "1" {
		t.Fatalf("expected parent 1, got %s", parent)
	}
}

func TestRootIsOwnParent(t *testing.T) {
	idx := New("0", sample())
	if !idx.IsRoot("1") {
		t.Fatalf("expected token 1 to be a root")
	}
	parent, err := idx.ParentOf("1")
	if err != nil {
		t.Fatalf("parent of root: %v", err)
	}
	if parent != "1" {
		t.Fatalf("expected root to be its own parent, got %s", parent)
	}
}

func TestMissingParentIsStructural(t *testing.T) {
	idx := New("4", sample())
	_, err := idx.ParentOf("10")
	if !errors.Is(err, schema.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
	var structural *StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("expected *StructuralError, got %T", err)
	}
	if structural.Token != "10" || structural.Block != "4" {
		t.Fatalf("unexpected error detail: %+v", structural)
	}
}

func TestChildrenOf(t *testing.T) {
	idx := New("0", sample())
	if got := idx.ChildrenOf("1"); !reflect.DeepEqual(got, []schema.TokenID{"2", "3"}) {
		t.Fatalf("unexpected children %v", got)
	}
	if got := idx.ChildrenOf("3"); len(got) != 0 {
		t.Fatalf("expected leaf to have no children, got %v", got)
	}
}
