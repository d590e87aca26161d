package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const captureCreate = `{"nodeMapUpdate":{"mapUpdates":{"5":{"tag":"Create","contents":[{"jdLine":7,"jdHTML":"<span id=\"span_0_1\">total</span>","jdBlockId":0,"jdASTInfo":{"astParent":{},"astChildren":{}},"jdLexemeList":[1]},{"tag":"Complete","contents":"<pre>12</pre>"}]}}},"orderedNodesUpdate":{"numDropped":0,"newTail":[5]}}`

func runReplay(t *testing.T, lines []string, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"replay", path}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestReplayPrintsHTML(t *testing.T) {
	out, err := runReplay(t, []string{`"start"`, captureCreate, ""})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out, `id="main-output"`) || !strings.Contains(out, `data-node="5"`) || !strings.Contains(out, "<pre>12</pre>") {
		t.Fatalf("unexpected html output %s", out)
	}
}

func TestReplayPrintsText(t *testing.T) {
	out, err := runReplay(t, []string{captureCreate}, "--text", "--width", "40")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out, "total") || !strings.Contains(out, "12") || !strings.Contains(out, "7") {
		t.Fatalf("unexpected text output %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected plain text, got %q", out)
	}
}

func TestReplayFailsOnBadLines(t *testing.T) {
	out, err := runReplay(t, []string{captureCreate, `{"not":"a message"`, `"start"`})
	if err == nil {
		t.Fatalf("expected replay to fail on an undecodable line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected failing line in error, got %v", err)
	}
	if strings.Contains(out, `data-node="5"`) {
		t.Fatalf("expected later reset to still apply, got %s", out)
	}
}
