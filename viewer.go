package cellview

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/cellview/internal/cellrender"
	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/internal/hover"
	"pkt.systems/cellview/internal/logx"
	"pkt.systems/cellview/internal/reconcile"
	"pkt.systems/cellview/internal/session"
	"pkt.systems/cellview/internal/snapshot"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// EventSink receives viewer changes after they were applied.
type EventSink interface {
	OnUpdate(seq uint64, msg schema.Message)
	OnReset(seq uint64)
	OnHover(seq uint64, node schema.NodeID, token schema.TokenID, enter bool)
}

// Viewer owns the session state and the display surface. Messages and
// pointer events are serialized by its lock and each is handled to
// completion before the next one starts.
type Viewer struct {
	mu    sync.Mutex
	doc   *dom.Document
	state *session.State
	hover *hover.Controller
	rec   *reconcile.Reconciler
	sink  EventSink
	seq   uint64
}

// NewViewer returns an empty viewer. A nil rich-text collaborator is
// skipped; a nil sink drops events.
func NewViewer(sink EventSink, rich cellrender.RichText) *Viewer {
	doc := dom.NewDocument()
	state := session.New()
	hoverCtl := hover.New()
	return &Viewer{
		doc:   doc,
		state: state,
		hover: hoverCtl,
		rec:   reconcile.New(doc, state, cellrender.New(rich), hoverCtl),
		sink:  sink,
	}
}

// Apply applies one message. A message rejected as a whole is not counted
// and not published.
func (v *Viewer) Apply(ctx context.Context, msg schema.Message) (reconcile.Report, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	report, err := v.rec.Apply(ctx, msg)
	if err != nil {
		return report, err
	}
	v.seq++
	if v.sink != nil {
		if msg.Reset {
			v.sink.OnReset(v.seq)
		} else {
			v.sink.OnUpdate(v.seq, msg)
		}
	}
	return report, nil
}

// Run applies messages until the channel closes or ctx is done.
func (v *Viewer) Run(ctx context.Context, messages <-chan schema.Message) error {
	log := pslog.Ctx(ctx)
	log.Info("viewer run")
	for {
		select {
		case <-ctx.Done():
			log.Info("viewer stopped", "seq", v.Seq())
			return nil
		case msg, ok := <-messages:
			if !ok {
				log.Info("viewer stream closed", "seq", v.Seq())
				return nil
			}
			if _, err := v.Apply(ctx, msg); err != nil {
				log.Warn("viewer message rejected", "error", err)
			}
		}
	}
}

// Hover enters or leaves token in the cell displayed for node and returns
// the updated cell view. Entering leaves any other active token first.
func (v *Viewer) Hover(ctx context.Context, node schema.NodeID, token schema.TokenID, enter bool) (snapshot.Cell, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cell, err := v.state.Get(node)
	if err != nil {
		return snapshot.Cell{}, err
	}
	if !cell.Hover.Hoverable(token) {
		return snapshot.Cell{}, fmt.Errorf("%w: node %s token %s", schema.ErrTokenNotHoverable, node, token)
	}
	if enter {
		err = v.hover.Enter(ctx, cell.Hover.Cell, token)
	} else {
		err = v.hover.Leave(ctx, cell.Hover.Cell, token)
	}
	if err != nil {
		return snapshot.Cell{}, err
	}
	logx.WithToken(logx.WithNode(ctx, node), token).Debug("viewer hover", "enter", enter)
	if v.sink != nil {
		v.sink.OnHover(v.seq, node, token, enter)
	}
	return cellView(cell), nil
}

// Seq returns the number of messages applied so far.
func (v *Viewer) Seq() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seq
}

// Snapshot returns the current visible document. Cells deleted by the
// server stay in it until they are dropped from the display.
func (v *Viewer) Snapshot(context.Context) snapshot.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	cells := v.rec.VisibleCells()
	doc := snapshot.Document{
		Seq:     v.seq,
		Visible: make([]schema.NodeID, 0, len(cells)),
		Cells:   make([]snapshot.Cell, 0, len(cells)),
		Live:    v.state.Len(),
		HTML:    v.doc.MainOutput().OuterHTML(),
	}
	for _, cell := range cells {
		doc.Visible = append(doc.Visible, cell.ID)
		doc.Cells = append(doc.Cells, cellView(cell))
	}
	if active, ok := v.hover.Active(); ok {
		doc.Active = &snapshot.Active{Node: active.Cell.Node, Token: active.Token}
	}
	return doc
}

// Cell returns the view of the live cell for node.
func (v *Viewer) Cell(_ context.Context, node schema.NodeID) (snapshot.Cell, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cell, err := v.state.Get(node)
	if err != nil {
		return snapshot.Cell{}, false
	}
	return cellView(cell), true
}

// SnapshotMessages returns messages that rebuild the current state on an
// empty consumer, together with the sequence number they correspond to.
// The first is a reset. The visible cells follow in display order; a cell
// that is displayed but already deleted is created, appended and deleted
// again so that it keeps its place. A last message creates the live cells
// that are not displayed.
func (v *Viewer) SnapshotMessages(context.Context) ([]schema.Message, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	msgs := []schema.Message{schema.ResetMessage()}
	orphaned := make(map[*session.Cell]bool)
	for _, cell := range v.rec.Orphaned() {
		orphaned[cell] = true
	}
	shown := make(map[*session.Cell]bool)
	cur := schema.Message{Ops: make(map[schema.NodeID]schema.CellOp)}
	flush := func() {
		if len(cur.Ops) == 0 && len(cur.NewTail) == 0 {
			return
		}
		msgs = append(msgs, cur)
		cur = schema.Message{Ops: make(map[schema.NodeID]schema.CellOp)}
	}
	for _, cell := range v.rec.VisibleCells() {
		shown[cell] = true
		if _, dup := cur.Ops[cell.ID]; dup {
			flush()
		}
		cur.Ops[cell.ID] = createOp(cell)
		cur.NewTail = append(cur.NewTail, cell.ID)
		if orphaned[cell] {
			flush()
			msgs = append(msgs, schema.Message{Ops: map[schema.NodeID]schema.CellOp{
				cell.ID: {Kind: schema.OpDelete},
			}})
		}
	}
	flush()
	for _, id := range v.state.IDs() {
		cell, err := v.state.Get(id)
		if err != nil || shown[cell] {
			continue
		}
		cur.Ops[id] = createOp(cell)
	}
	flush()
	return msgs, v.seq
}

func createOp(cell *session.Cell) schema.CellOp {
	return schema.CellOp{Kind: schema.OpCreate, Source: cell.Source, Result: cell.Result}
}

func cellView(cell *session.Cell) snapshot.Cell {
	runs := snapshot.Runs(cell.Element)
	return snapshot.Cell{
		ID:        cell.ID,
		Line:      cell.Source.Line,
		Block:     cell.Source.BlockID,
		State:     cell.Result.State.String(),
		HTML:      cell.Element.OuterHTML(),
		Text:      snapshot.PlainText(runs),
		Lexemes:   append([]schema.TokenID(nil), cell.Source.Lexemes...),
		Hoverable: cell.Hover.Tokens(),
		Runs:      runs,
	}
}
