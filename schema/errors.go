package schema

import "errors"

var (
	// ErrInvalidMessage indicates a message that cannot be decoded at all.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownOpTag indicates an operation tag other than Create, Update or Delete.
	ErrUnknownOpTag = errors.New("unknown operation tag")
	// ErrUnknownResultTag indicates a result tag other than Waiting, Running or Complete.
	ErrUnknownResultTag = errors.New("unknown result tag")
	// ErrMissingContents indicates a Create or Update without source and result.
	ErrMissingContents = errors.New("operation contents missing")
	// ErrCellExists indicates a create for a node id that is already live.
	ErrCellExists = errors.New("cell already exists")
	// ErrCellNotFound indicates a reference to a node id that is not live.
	ErrCellNotFound = errors.New("cell not found")
	// ErrDropOutOfRange indicates numDropped exceeds the visible list length.
	ErrDropOutOfRange = errors.New("numDropped exceeds visible cells")
	// ErrStructural indicates an AST index without an expected parent entry.
	ErrStructural = errors.New("inconsistent ast index")
	// ErrTokenNotHoverable indicates a hover request for a token without a bound span.
	ErrTokenNotHoverable = errors.New("token is not hoverable")
)
