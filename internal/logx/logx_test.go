package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithTokenAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithToken(newCaptureLogger(capture), "17")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["token"] != "17" {
		t.Fatalf("expected token field, got %+v", entry)
	}
}

func TestWithTokenSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	log := WithToken(newCaptureLogger(capture), "")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["token"]; ok {
		t.Fatalf("did not expect token field for empty id")
	}
}

func TestWithNodeBlockAddsFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithNodeBlock(ctx, "5", "0")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["node"] != "5" {
		t.Fatalf("expected node field, got %+v", entry)
	}
	if entry["block"] != "0" {
		t.Fatalf("expected block field, got %+v", entry)
	}
}

func TestWithNodeDeduplicatesContextMarker(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("node", "5")
	ctx := ContextWithNodeLogger(context.Background(), logger, "5")
	WithNode(ctx, "5").Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"node"`)) != 1 {
		t.Fatalf("expected a single node field, got %s", line)
	}
}

func TestCopyContextFields(t *testing.T) {
	src := ContextWithBlock(ContextWithNode(context.Background(), "5"), "2")
	dst := CopyContextFields(context.Background(), src)
	if node, _ := dst.Value(nodeKey).(schema.NodeID); node != "5" {
		t.Fatalf("expected node marker to be copied")
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
