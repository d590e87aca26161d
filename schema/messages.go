package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResetSignal is the wire form of the session restart message.
const ResetSignal = "start"

type wireMessage struct {
	NodeMapUpdate struct {
		MapUpdates map[NodeID]json.RawMessage `json:"mapUpdates"`
	} `json:"nodeMapUpdate"`
	OrderedNodesUpdate struct {
		NumDropped int      `json:"numDropped"`
		NewTail    []NodeID `json:"newTail"`
	} `json:"orderedNodesUpdate"`
}

type wireOp struct {
	Tag      string          `json:"tag"`
	Contents json.RawMessage `json:"contents,omitempty"`
}

type wireResult struct {
	Tag      string  `json:"tag"`
	Contents *string `json:"contents,omitempty"`
}

// DecodeMessage decodes one stream payload. Only a payload that is not a
// message at all fails; a malformed operation is kept with its Err set so
// the rest of the message can still be applied.
func DecodeMessage(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrInvalidMessage)
	}
	if trimmed[0] == '"' {
		var signal string
		if err := json.Unmarshal(trimmed, &signal); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if signal == ResetSignal {
			return ResetMessage(), nil
		}
		return Message{}, fmt.Errorf("%w: unexpected signal %q", ErrInvalidMessage, signal)
	}
	var wire wireMessage
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if wire.OrderedNodesUpdate.NumDropped < 0 {
		return Message{}, fmt.Errorf("%w: negative numDropped %d", ErrInvalidMessage, wire.OrderedNodesUpdate.NumDropped)
	}
	msg := Message{
		Ops:        make(map[NodeID]CellOp, len(wire.NodeMapUpdate.MapUpdates)),
		NumDropped: wire.OrderedNodesUpdate.NumDropped,
		NewTail:    wire.OrderedNodesUpdate.NewTail,
	}
	for id, raw := range wire.NodeMapUpdate.MapUpdates {
		msg.Ops[id] = decodeOp(raw)
	}
	return msg, nil
}

func decodeOp(raw json.RawMessage) CellOp {
	var wire wireOp
	if err := json.Unmarshal(raw, &wire); err != nil {
		return CellOp{Err: fmt.Errorf("%w: %v", ErrInvalidMessage, err)}
	}
	kind, err := ParseOpKind(wire.Tag)
	if err != nil {
		return CellOp{Err: err}
	}
	op := CellOp{Kind: kind}
	if kind == OpDelete {
		return op
	}
	var contents []json.RawMessage
	if len(wire.Contents) == 0 || json.Unmarshal(wire.Contents, &contents) != nil || len(contents) != 2 {
		op.Err = fmt.Errorf("%w: %s expects [source, result]", ErrMissingContents, kind)
		return op
	}
	if err := json.Unmarshal(contents[0], &op.Source); err != nil {
		op.Err = fmt.Errorf("%w: source: %v", ErrInvalidMessage, err)
		return op
	}
	result, err := decodeResult(contents[1])
	if err != nil {
		op.Err = err
		return op
	}
	op.Result = result
	return op
}

func decodeResult(raw json.RawMessage) (Result, error) {
	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, fmt.Errorf("%w: result: %v", ErrInvalidMessage, err)
	}
	state, err := ParseResultState(wire.Tag)
	if err != nil {
		return Result{}, err
	}
	result := Result{State: state}
	if state == ResultComplete && wire.Contents != nil {
		result.Contents = *wire.Contents
	}
	return result, nil
}

// EncodeMessage renders a message in wire form. Ops carrying an Err are
// omitted.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Reset {
		return json.Marshal(ResetSignal)
	}
	updates := make(map[NodeID]any, len(msg.Ops))
	for id, op := range msg.Ops {
		if op.Err != nil {
			continue
		}
		encoded, err := encodeOp(op)
		if err != nil {
			return nil, fmt.Errorf("encode op %s: %w", id, err)
		}
		updates[id] = encoded
	}
	tail := msg.NewTail
	if tail == nil {
		tail = []NodeID{}
	}
	payload := map[string]any{
		"nodeMapUpdate": map[string]any{"mapUpdates": updates},
		"orderedNodesUpdate": map[string]any{
			"numDropped": msg.NumDropped,
			"newTail":    tail,
		},
	}
	return json.Marshal(payload)
}

func encodeOp(op CellOp) (wireOp, error) {
	switch op.Kind {
	case OpDelete:
		return wireOp{Tag: op.Kind.String()}, nil
	case OpCreate, OpUpdate:
		result := wireResult{Tag: op.Result.State.String()}
		switch op.Result.State {
		case ResultWaiting, ResultRunning:
		case ResultComplete:
			contents := op.Result.Contents
			result.Contents = &contents
		default:
			return wireOp{}, fmt.Errorf("%w: %s", ErrUnknownResultTag, op.Result.State)
		}
		contents, err := json.Marshal([]any{normalizeSource(op.Source), result})
		if err != nil {
			return wireOp{}, err
		}
		return wireOp{Tag: op.Kind.String(), Contents: contents}, nil
	default:
		return wireOp{}, fmt.Errorf("%w: %s", ErrUnknownOpTag, op.Kind)
	}
}

// normalizeSource replaces nil collections so page scripts can index them.
func normalizeSource(src Source) Source {
	if src.AST.Parent == nil {
		src.AST.Parent = map[TokenID]TokenID{}
	}
	if src.AST.Children == nil {
		src.AST.Children = map[TokenID][]TokenID{}
	}
	if src.Lexemes == nil {
		src.Lexemes = []TokenID{}
	}
	return src
}
