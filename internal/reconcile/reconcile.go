// Package reconcile applies update messages to the session state and the
// display surface.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"pkt.systems/cellview/internal/astindex"
	"pkt.systems/cellview/internal/cellrender"
	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/internal/hover"
	"pkt.systems/cellview/internal/logx"
	"pkt.systems/cellview/internal/session"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// Step names used in skip reports.
const (
	StepCreate = "create"
	StepUpdate = "update"
	StepDelete = "delete"
	StepDecode = "decode"
	StepTail   = "tail"
)

// DeletedAttr marks a displayed element whose cell was deleted. The element
// stays on the surface until it is dropped or displaced.
const DeletedAttr = "data-deleted"

// Skip is one item of a message that was reported and not applied.
type Skip struct {
	Node schema.NodeID
	Step string
	Err  error
}

// Report summarizes the effect of one message.
type Report struct {
	Reset    bool
	Dropped  []schema.NodeID
	Created  []schema.NodeID
	Updated  []schema.NodeID
	Deleted  []schema.NodeID
	Appended []schema.NodeID
	Attached []schema.NodeID
	Skipped  []Skip
}

// Err joins the errors of every skipped item, or returns nil.
func (r Report) Err() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Skipped))
	for _, skip := range r.Skipped {
		errs = append(errs, fmt.Errorf("%s %s: %w", skip.Step, skip.Node, skip.Err))
	}
	return errors.Join(errs...)
}

// Reconciler is the single writer of the session state and the surface.
type Reconciler struct {
	doc      *dom.Document
	state    *session.State
	renderer *cellrender.Renderer
	hover    *hover.Controller
	// visible mirrors the children of #main-output. A deleted cell stays in
	// it until a drop removes it or it is displaced by a re-append.
	visible []*session.Cell
}

// New wires a Reconciler over its collaborators.
func New(doc *dom.Document, state *session.State, renderer *cellrender.Renderer, hoverCtl *hover.Controller) *Reconciler {
	if renderer == nil {
		renderer = cellrender.New(nil)
	}
	if hoverCtl == nil {
		hoverCtl = hover.New()
	}
	return &Reconciler{
		doc:      doc,
		state:    state,
		renderer: renderer,
		hover:    hoverCtl,
	}
}

// Visible returns the displayed node ids in display order.
func (r *Reconciler) Visible() []schema.NodeID {
	ids := make([]schema.NodeID, len(r.visible))
	for i, cell := range r.visible {
		ids[i] = cell.ID
	}
	return ids
}

// VisibleCells returns the displayed cells in display order, including
// cells already deleted from the session state.
func (r *Reconciler) VisibleCells() []*session.Cell {
	return append([]*session.Cell(nil), r.visible...)
}

// Orphaned returns the displayed cells whose node id no longer maps to them
// in the session state.
func (r *Reconciler) Orphaned() []*session.Cell {
	var out []*session.Cell
	for _, cell := range r.visible {
		if live, err := r.state.Get(cell.ID); err != nil || live != cell {
			out = append(out, cell)
		}
	}
	return out
}

// Apply applies msg in full. Per-item failures are logged, collected in the
// report and skipped. The only error returned is for a message that cannot
// be applied at all, in which case nothing was changed.
func (r *Reconciler) Apply(ctx context.Context, msg schema.Message) (Report, error) {
	log := pslog.Ctx(ctx)
	if msg.Reset {
		r.reset()
		log.Debug("reconcile reset")
		return Report{Reset: true}, nil
	}
	if msg.NumDropped > len(r.visible) {
		err := fmt.Errorf("%w: drop %d of %d", schema.ErrDropOutOfRange, msg.NumDropped, len(r.visible))
		log.Warn("reconcile rejected message", "error", err)
		return Report{}, err
	}

	var report Report
	r.drop(msg.NumDropped, &report)

	created := make(map[schema.NodeID]bool)
	for _, id := range sortedIDs(msg.Ops) {
		op := msg.Ops[id]
		r.applyOp(ctx, id, op, created, &report)
	}

	r.appendTail(ctx, msg.NewTail, &report)

	for _, id := range msg.NewTail {
		if !created[id] {
			continue
		}
		cell, err := r.state.Get(id)
		if err != nil || cell.Hover != nil {
			continue
		}
		cell.Hover = r.hover.Attach(ctx, cellContext(cell), cell.Source.Lexemes)
		report.Attached = append(report.Attached, id)
	}

	log.Debug("reconcile apply",
		"dropped", len(report.Dropped),
		"created", len(report.Created),
		"updated", len(report.Updated),
		"deleted", len(report.Deleted),
		"appended", len(report.Appended),
		"skipped", len(report.Skipped),
		"visible", len(r.visible),
	)
	return report, nil
}

func (r *Reconciler) reset() {
	r.hover.Clear()
	r.state.Reset()
	r.doc.MainOutput().RemoveChildren()
	r.visible = nil
}

func (r *Reconciler) drop(n int, report *Report) {
	for i := 0; i < n; i++ {
		last := len(r.visible) - 1
		cell := r.visible[last]
		r.visible = r.visible[:last]
		cell.Element.Remove()
		report.Dropped = append(report.Dropped, cell.ID)
	}
}

func (r *Reconciler) applyOp(ctx context.Context, id schema.NodeID, op schema.CellOp, created map[schema.NodeID]bool, report *Report) {
	log := logx.WithNode(ctx, id)
	if op.Err != nil {
		r.skip(log, report, id, StepDecode, op.Err)
		return
	}
	switch op.Kind {
	case schema.OpCreate:
		if _, err := r.state.Get(id); err == nil {
			r.skip(log, report, id, StepCreate, fmt.Errorf("create %s: %w", id, schema.ErrCellExists))
			return
		}
		el, err := r.renderer.Render(op.Source, op.Result)
		if err != nil {
			r.skip(log, report, id, StepCreate, err)
			return
		}
		el.SetAttr("data-node", string(id))
		cell := &session.Cell{Element: el, Source: op.Source, Result: op.Result}
		if err := r.state.Create(id, cell); err != nil {
			r.skip(log, report, id, StepCreate, err)
			return
		}
		created[id] = true
		report.Created = append(report.Created, id)
		log.Trace("reconcile create", "line", op.Source.Line, "state", op.Result.State)
	case schema.OpUpdate:
		cell, err := r.state.Get(id)
		if err != nil {
			r.skip(log, report, id, StepUpdate, err)
			return
		}
		if err := r.renderer.Fill(cell.Element, op.Source, op.Result); err != nil {
			r.skip(log, report, id, StepUpdate, err)
			return
		}
		cell.Source = op.Source
		cell.Result = op.Result
		r.hover.Forget(cell.Element)
		if cell.Hover != nil {
			cell.Hover = r.hover.Attach(ctx, cellContext(cell), cell.Source.Lexemes)
		}
		report.Updated = append(report.Updated, id)
		log.Trace("reconcile update", "line", op.Source.Line, "state", op.Result.State)
	case schema.OpDelete:
		cell, err := r.state.Delete(id)
		if err != nil {
			r.skip(log, report, id, StepDelete, err)
			return
		}
		// The element may stay on display; clear its highlight before it
		// stops responding to pointer events.
		if active, ok := r.hover.Active(); ok && active.Cell.Element == cell.Element {
			_ = r.hover.Leave(ctx, active.Cell, active.Token)
		}
		cell.Hover = nil
		if r.isVisible(cell) {
			cell.Element.SetAttr(DeletedAttr, "")
			log.Debug("reconcile delete keeps visible element")
		}
		report.Deleted = append(report.Deleted, id)
		log.Trace("reconcile delete")
	default:
		r.skip(log, report, id, StepDecode, fmt.Errorf("%w: %s", schema.ErrUnknownOpTag, op.Kind))
	}
}

func (r *Reconciler) appendTail(ctx context.Context, tail []schema.NodeID, report *Report) {
	main := r.doc.MainOutput()
	for _, id := range tail {
		cell, err := r.state.Get(id)
		if err != nil {
			r.skip(logx.WithNode(ctx, id), report, id, StepTail, err)
			continue
		}
		r.removeVisible(cell)
		main.AppendChild(cell.Element)
		r.visible = append(r.visible, cell)
		report.Appended = append(report.Appended, id)
	}
}

func (r *Reconciler) removeVisible(cell *session.Cell) {
	for i, visible := range r.visible {
		if visible == cell {
			r.visible = append(r.visible[:i], r.visible[i+1:]...)
			return
		}
	}
}

func (r *Reconciler) isVisible(cell *session.Cell) bool {
	for _, visible := range r.visible {
		if visible == cell {
			return true
		}
	}
	return false
}

func (r *Reconciler) skip(log pslog.Logger, report *Report, id schema.NodeID, step string, err error) {
	log.Warn("reconcile skipped item", "step", step, "error", err)
	report.Skipped = append(report.Skipped, Skip{Node: id, Step: step, Err: err})
}

func cellContext(cell *session.Cell) hover.CellContext {
	return hover.CellContext{
		Node:    cell.ID,
		Element: cell.Element,
		Block:   cell.Source.BlockID,
		Index:   astindex.New(cell.Source.BlockID, cell.Source.AST),
	}
}

func sortedIDs(ops map[schema.NodeID]schema.CellOp) []schema.NodeID {
	ids := make([]schema.NodeID, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
