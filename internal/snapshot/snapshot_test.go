package snapshot

import (
	"testing"

	"pkt.systems/cellview/internal/dom"
)

func element(t *testing.T, markup string) *dom.Node {
	t.Helper()
	nodes, err := dom.ParseFragment(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	el := dom.NewElement("div")
	for _, node := range nodes {
		el.AppendChild(node)
	}
	return el
}

func TestRunsSkipLineNumberAndMergeStyles(t *testing.T) {
	el := element(t, `<div class="line-num">3</div><span id="span_0_1" style="background-color: lightblue">f <span id="span_0_2" style="background-color: yellow">x</span></span><result>42</result>`)
	runs := Runs(el)
	want := []Run{
		{Text: "f ", Highlight: HighlightSelf, Token: "1"},
		{Text: "x", Highlight: HighlightRelated, Token: "2"},
		{Text: "42"},
	}
	if len(runs) != len(want) {
		t.Fatalf("unexpected runs %+v", runs)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Fatalf("run %d: got %+v want %+v", i, runs[i], want[i])
		}
	}
}

func TestRunsBlockElementsBreakLines(t *testing.T) {
	el := element(t, `<div>one</div><div>two<br>three</div><span class="math math-inline">x^2</span>`)
	runs := Runs(el)
	if got := PlainText(runs); got != "one\ntwo\nthree\nx^2" {
		t.Fatalf("unexpected text %q", got)
	}
	last := runs[len(runs)-1]
	if !last.Math || last.Text != "x^2" {
		t.Fatalf("expected math run last, got %+v", last)
	}
}

func TestDocumentCellLookup(t *testing.T) {
	doc := Document{Cells: []Cell{{ID: "1"}, {ID: "2", Line: 7}}}
	cell, ok := doc.Cell("2")
	if !ok || cell.Line != 7 {
		t.Fatalf("unexpected lookup result %+v %v", cell, ok)
	}
	if _, ok := doc.Cell("9"); ok {
		t.Fatalf("expected missing cell")
	}
	doc.Cells = append(doc.Cells, Cell{ID: "2", Line: 8})
	if cell, _ := doc.Cell("2"); cell.Line != 8 {
		t.Fatalf("expected the later cell for a repeated id, got line %d", cell.Line)
	}
}
