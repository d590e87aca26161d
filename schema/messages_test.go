package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeMessageReset(t *testing.T) {
	msg, err := DecodeMessage([]byte(`"start"`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.Reset {
		t.Fatalf("expected reset message, got %+v", msg)
	}
}

func TestDecodeMessageRejectsUnknownSignal(t *testing.T) {
	if _, err := DecodeMessage([]byte(`"stop"`)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestDecodeMessageCreate(t *testing.T) {
	payload := `{
		"nodeMapUpdate": {"mapUpdates": {"5": {"tag": "Create", "contents": [
			{"jdLine": 1, "jdHTML": "<span id=\"span_0_1\">x</span>", "jdBlockId": 0,
			 "jdASTInfo": {"astParent": {"1": 0}, "astChildren": {"0": [1]}},
			 "jdLexemeList": [1]},
			{"tag": "Waiting"}
		]}}},
		"orderedNodesUpdate": {"numDropped": 0, "newTail": [5]}
	}`
	msg, err := DecodeMessage([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	op, ok := msg.Ops["5"]
	if !ok {
		t.Fatalf("expected op for node 5, got %+v", msg.Ops)
	}
	if op.Err != nil {
		t.Fatalf("unexpected op error: %v", op.Err)
	}
	if op.Kind != OpCreate || op.Result.State != ResultWaiting {
		t.Fatalf("unexpected op: %+v", op)
	}
	if op.Source.Line != 1 || op.Source.BlockID != "0" {
		t.Fatalf("unexpected source: %+v", op.Source)
	}
	if op.Source.AST.Parent["1"] != "0" {
		t.Fatalf("expected numeric parent to decode as string id, got %+v", op.Source.AST.Parent)
	}
	if !reflect.DeepEqual(op.Source.AST.Children["0"], []TokenID{"1"}) {
		t.Fatalf("unexpected children: %+v", op.Source.AST.Children)
	}
	if !reflect.DeepEqual(msg.NewTail, []NodeID{"5"}) {
		t.Fatalf("unexpected tail: %+v", msg.NewTail)
	}
}

func TestDecodeMessageKeepsBadItems(t *testing.T) {
	payload := `{
		"nodeMapUpdate": {"mapUpdates": {
			"1": {"tag": "Frobnicate"},
			"2": {"tag": "Update", "contents": [{"jdLine": 2, "jdHTML": "", "jdBlockId": 1,
				"jdASTInfo": {"astParent": {}, "astChildren": {}}, "jdLexemeList": []},
				{"tag": "Exploded"}]},
			"3": {"tag": "Update"},
			"4": {"tag": "Delete"}
		}},
		"orderedNodesUpdate": {"numDropped": 1, "newTail": []}
	}`
	msg, err := DecodeMessage([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !errors.Is(msg.Ops["1"].Err, ErrUnknownOpTag) {
		t.Fatalf("expected unknown op tag, got %v", msg.Ops["1"].Err)
	}
	if !errors.Is(msg.Ops["2"].Err, ErrUnknownResultTag) {
		t.Fatalf("expected unknown result tag, got %v", msg.Ops["2"].Err)
	}
	if !errors.Is(msg.Ops["3"].Err, ErrMissingContents) {
		t.Fatalf("expected missing contents, got %v", msg.Ops["3"].Err)
	}
	if msg.Ops["4"].Err != nil || msg.Ops["4"].Kind != OpDelete {
		t.Fatalf("expected clean delete, got %+v", msg.Ops["4"])
	}
	if msg.NumDropped != 1 {
		t.Fatalf("expected numDropped 1, got %d", msg.NumDropped)
	}
}

func TestDecodeMessageRejectsNegativeDrop(t *testing.T) {
	payload := `{"nodeMapUpdate": {"mapUpdates": {}}, "orderedNodesUpdate": {"numDropped": -1, "newTail": []}}`
	if _, err := DecodeMessage([]byte(payload)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestEncodeMessageIsReadableByDecoder(t *testing.T) {
	msg := Message{
		Ops: map[NodeID]CellOp{
			"7": {Kind: OpCreate, Source: Source{Line: 3, HTML: "<b>x</b>", BlockID: "2"}, Result: Result{State: ResultComplete, Contents: "<result>42</result>"}},
			"8": {Kind: OpDelete},
			"9": {Err: ErrUnknownOpTag},
		},
		NumDropped: 2,
		NewTail:    []NodeID{"7"},
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	var updates map[string]json.RawMessage
	if err := json.Unmarshal(raw["nodeMapUpdate"]["mapUpdates"], &updates); err != nil {
		t.Fatalf("unmarshal updates: %v", err)
	}
	if _, ok := updates["9"]; ok {
		t.Fatalf("expected failed op to be omitted")
	}
	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	created := decoded.Ops["7"]
	if created.Result.Contents != "<result>42</result>" || created.Source.AST.Parent == nil || created.Source.Lexemes == nil {
		t.Fatalf("unexpected decoded create: %+v", created)
	}
	if decoded.NumDropped != 2 || !reflect.DeepEqual(decoded.NewTail, []NodeID{"7"}) {
		t.Fatalf("unexpected ordered update: %+v", decoded)
	}
}

func TestEncodeResetSignal(t *testing.T) {
	data, err := EncodeMessage(ResetMessage())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `"start"` {
		t.Fatalf("unexpected reset encoding %s", data)
	}
}

func TestSpanID(t *testing.T) {
	if got := SpanID("3", "17"); got != "span_3_17" {
		t.Fatalf("unexpected span id %q", got)
	}
}
