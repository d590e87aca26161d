package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeID identifies a cell. The server assigns it and never reuses it for a
// different cell without deleting the old one first.
type NodeID string

// BlockID identifies the source block a cell was rendered from.
type BlockID string

// TokenID identifies a lexeme within a block.
type TokenID string

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *NodeID) UnmarshalJSON(data []byte) error {
	value, err := unmarshalID(data)
	if err != nil {
		return err
	}
	*id = NodeID(value)
	return nil
}

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *BlockID) UnmarshalJSON(data []byte) error {
	value, err := unmarshalID(data)
	if err != nil {
		return err
	}
	*id = BlockID(value)
	return nil
}

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *TokenID) UnmarshalJSON(data []byte) error {
	value, err := unmarshalID(data)
	if err != nil {
		return err
	}
	*id = TokenID(value)
	return nil
}

// The server encodes integer ids as JSON numbers in arrays and values but as
// strings in object keys, so both spellings map onto the same id.
func unmarshalID(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidMessage)
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return "", err
		}
		return value, nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return "", fmt.Errorf("%w: identifier %s", ErrInvalidMessage, data)
	}
	return number.String(), nil
}

// SpanID returns the display-surface id of a token's span within its block.
func SpanID(block BlockID, token TokenID) string {
	return "span_" + string(block) + "_" + string(token)
}

// ASTInfo is the syntax index shipped with each source fragment.
// A token missing from Children has no children.
type ASTInfo struct {
	Parent   map[TokenID]TokenID   `json:"astParent"`
	Children map[TokenID][]TokenID `json:"astChildren"`
}

// Source is the pre-rendered source fragment of a cell.
type Source struct {
	Line    int       `json:"jdLine"`
	HTML    string    `json:"jdHTML"`
	BlockID BlockID   `json:"jdBlockId"`
	AST     ASTInfo   `json:"jdASTInfo"`
	Lexemes []TokenID `json:"jdLexemeList"`
}

// ResultState is the evaluation state of a cell.
type ResultState int

const (
	// ResultWaiting means the cell has not started evaluating.
	ResultWaiting ResultState = iota + 1
	// ResultRunning means the cell is evaluating.
	ResultRunning
	// ResultComplete means the cell finished and carries output markup.
	ResultComplete
)

func (s ResultState) String() string {
	switch s {
	case ResultWaiting:
		return "Waiting"
	case ResultRunning:
		return "Running"
	case ResultComplete:
		return "Complete"
	default:
		return fmt.Sprintf("ResultState(%d)", int(s))
	}
}

// ParseResultState maps a wire tag onto a ResultState.
func ParseResultState(tag string) (ResultState, error) {
	switch tag {
	case "Waiting":
		return ResultWaiting, nil
	case "Running":
		return ResultRunning, nil
	case "Complete":
		return ResultComplete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownResultTag, tag)
	}
}

// Result is the evaluation result of a cell. Contents is only meaningful
// for ResultComplete.
type Result struct {
	State    ResultState
	Contents string
}

// OpKind is the kind of a keyed cell operation.
type OpKind int

const (
	// OpCreate adds a new cell.
	OpCreate OpKind = iota + 1
	// OpUpdate re-renders an existing cell in place.
	OpUpdate
	// OpDelete drops a cell.
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "Create"
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// ParseOpKind maps a wire tag onto an OpKind.
func ParseOpKind(tag string) (OpKind, error) {
	switch tag {
	case "Create":
		return OpCreate, nil
	case "Update":
		return OpUpdate, nil
	case "Delete":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOpTag, tag)
	}
}

// CellOp is one keyed operation of an update message. Err is set when the
// wire item could not be decoded; such ops are reported and skipped.
type CellOp struct {
	Kind   OpKind
	Source Source
	Result Result
	Err    error
}

// Message is one unit of the update stream. A Reset message clears all
// state; otherwise Ops are applied and the visible list loses NumDropped
// entries from its end before NewTail is appended.
type Message struct {
	Reset      bool
	Ops        map[NodeID]CellOp
	NumDropped int
	NewTail    []NodeID
}

// ResetMessage returns the session restart signal.
func ResetMessage() Message {
	return Message{Reset: true}
}
