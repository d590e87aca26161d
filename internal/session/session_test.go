package session

import (
	"errors"
	"reflect"
	"testing"

	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/schema"
)

func TestCreateGetDelete(t *testing.T) {
	s := New()
	cell := &Cell{Element: dom.NewElement("div")}
	if err := s.Create("5", cell); err != nil {
		t.Fatalf("create: %v", err)
	}
	if cell.ID != "5" {
		t.Fatalf("expected id to be recorded on the cell, got %q", cell.ID)
	}
	if err := s.Create("5", &Cell{}); !errors.Is(err, schema.ErrCellExists) {
		t.Fatalf("expected ErrCellExists, got %v", err)
	}
	got, err := s.Get("5")
	if err != nil || got != cell {
		t.Fatalf("get: %v %v", got, err)
	}
	removed, err := s.Delete("5")
	if err != nil || removed != cell {
		t.Fatalf("delete: %v %v", removed, err)
	}
	if _, err := s.Get("5"); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound after delete, got %v", err)
	}
	if _, err := s.Delete("5"); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound on double delete, got %v", err)
	}
}

func TestResetDetachesElements(t *testing.T) {
	doc := dom.NewDocument()
	s := New()
	for _, id := range []schema.NodeID{"2", "1"} {
		el := dom.NewElement("div")
		doc.MainOutput().AppendChild(el)
		if err := s.Create(id, &Cell{Element: el}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if !reflect.DeepEqual(s.IDs(), []schema.NodeID{"1", "2"}) {
		t.Fatalf("unexpected ids %v", s.IDs())
	}
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty state, got %d", s.Len())
	}
	if doc.MainOutput().ChildCount() != 0 {
		t.Fatalf("expected surface to be empty after reset")
	}
}
