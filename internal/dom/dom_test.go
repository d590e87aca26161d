package dom

import (
	"strings"
	"testing"
)

func TestAppendChildMovesNode(t *testing.T) {
	a := NewElement("div")
	b := NewElement("div")
	child := NewElement("span")
	a.AppendChild(child)
	b.AppendChild(child)
	if a.ChildCount() != 0 {
		t.Fatalf("expected child to leave old parent, got %d children", a.ChildCount())
	}
	if child.Parent() != b || b.ChildCount() != 1 {
		t.Fatalf("expected child under new parent")
	}

	other := NewElement("p")
	b.AppendChild(other)
	b.AppendChild(child)
	kids := b.Children()
	if len(kids) != 2 || kids[0] != other || kids[1] != child {
		t.Fatalf("expected re-append to move child to the end, got %v", kids)
	}
}

func TestLastElementChildSkipsText(t *testing.T) {
	parent := NewElement("div")
	first := NewElement("span")
	parent.AppendChild(first)
	parent.AppendChild(NewText("trailing"))
	if got := parent.LastElementChild(); got != first {
		t.Fatalf("expected span, got %v", got)
	}
	first.Remove()
	if got := parent.LastElementChild(); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestParseFragmentAndQuery(t *testing.T) {
	nodes, err := ParseFragment(`<span id="span_0_1" class="code">f <span id="span_0_2" style="color: red">x</span></span><div class="prose-block">hi</div>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d", len(nodes))
	}
	root := NewElement("div")
	for _, node := range nodes {
		root.AppendChild(node)
	}
	inner := root.QueryByID("span_0_2")
	if inner == nil {
		t.Fatalf("expected to find nested span")
	}
	if inner.Style("color") != "red" {
		t.Fatalf("expected inline style to parse, got %q", inner.Style("color"))
	}
	if got := root.QueryByClass("prose-block"); len(got) != 1 || got[0].Text() != "hi" {
		t.Fatalf("unexpected class query result: %v", got)
	}
	if root.Text() != "f xhi" {
		t.Fatalf("unexpected text %q", root.Text())
	}
}

func TestStyleRendersSorted(t *testing.T) {
	el := NewElement("span")
	el.SetAttr("id", "s")
	el.SetStyle("outline-style", "solid")
	el.SetStyle("background-color", "lightblue")
	out := el.OuterHTML()
	want := `<span id="s" style="background-color: lightblue; outline-style: solid"></span>`
	if out != want {
		t.Fatalf("unexpected render\n got: %s\nwant: %s", out, want)
	}
	el.RemoveStyle("outline-style")
	el.RemoveStyle("background-color")
	if strings.Contains(el.OuterHTML(), "style") {
		t.Fatalf("expected style attribute to disappear, got %s", el.OuterHTML())
	}
}

func TestReplaceWith(t *testing.T) {
	parent := NewElement("div")
	text := NewText("a $x$ b")
	parent.AppendChild(text)
	span := NewElement("span")
	text.ReplaceWith(NewText("a "), span, NewText(" b"))
	if parent.ChildCount() != 3 || parent.Children()[1] != span {
		t.Fatalf("unexpected children after replace: %v", parent.Children())
	}
	if text.Parent() != nil {
		t.Fatalf("expected replaced node to be detached")
	}
}

func TestDocumentMainOutput(t *testing.T) {
	doc := NewDocument()
	if doc.GetElementByID(MainOutputID) != doc.MainOutput() {
		t.Fatalf("expected main output lookup")
	}
	cell := NewElement("div")
	cell.SetAttr("id", "target")
	doc.MainOutput().AppendChild(cell)
	if doc.GetElementByID("target") != cell {
		t.Fatalf("expected lookup of appended cell")
	}
	cell.Remove()
	if doc.GetElementByID("target") != nil {
		t.Fatalf("expected detached cell to be unreachable")
	}
}

func TestCloneIsDetachedDeepCopy(t *testing.T) {
	parent := NewElement("div")
	el := NewElement("span")
	el.SetStyle("color", "red")
	el.AppendChild(NewText("x"))
	parent.AppendChild(el)
	clone := el.Clone()
	clone.SetStyle("color", "blue")
	if clone.Parent() != nil || el.Style("color") != "red" || clone.Text() != "x" {
		t.Fatalf("unexpected clone state")
	}
}
