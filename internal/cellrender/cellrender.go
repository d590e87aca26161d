// Package cellrender builds the display element of a cell from its source
// fragment and evaluation result.
package cellrender

import (
	"fmt"
	"strconv"

	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/schema"
)

// Class names of the cell container and its parts.
const (
	CellClass     = "cell"
	LineNumClass  = "line-num"
	WaitingClass  = "waiting-cell"
	RunningClass  = "running-cell"
	CompleteClass = "complete-cell"
)

// RichText post-processes a freshly built container in place.
type RichText interface {
	Render(root *dom.Node)
}

// Renderer renders cells. The zero value renders without rich text.
type Renderer struct {
	rich RichText
}

// New returns a Renderer. A nil rich-text collaborator is skipped.
func New(rich RichText) *Renderer {
	return &Renderer{rich: rich}
}

// Render returns a new container for the cell. With an unknown result state
// the container is still returned, without result content, together with an
// error wrapping schema.ErrUnknownResultTag.
func (r *Renderer) Render(source schema.Source, result schema.Result) (*dom.Node, error) {
	el := dom.NewElement("div")
	el.SetClass(CellClass)
	err := r.Fill(el, source, result)
	return el, err
}

// Fill replaces the content of an existing container, keeping its identity.
// An unknown result state leaves the class untouched.
func (r *Renderer) Fill(el *dom.Node, source schema.Source, result schema.Result) error {
	el.RemoveChildren()

	lineNum := dom.NewElement("div")
	lineNum.SetClass(LineNumClass)
	lineNum.AppendChild(dom.NewText(strconv.Itoa(source.Line)))
	el.AppendChild(lineNum)

	sourceNodes, err := dom.ParseFragment(source.HTML)
	if err != nil {
		return fmt.Errorf("render source: %w", err)
	}
	for _, node := range sourceNodes {
		el.AppendChild(node)
	}

	var stateErr error
	switch result.State {
	case schema.ResultWaiting:
		el.SetClass(CellClass + " " + WaitingClass)
	case schema.ResultRunning:
		el.SetClass(CellClass + " " + RunningClass)
	case schema.ResultComplete:
		el.SetClass(CellClass + " " + CompleteClass)
		resultNodes, err := dom.ParseFragment(result.Contents)
		if err != nil {
			return fmt.Errorf("render result: %w", err)
		}
		for _, node := range resultNodes {
			el.AppendChild(node)
		}
	default:
		stateErr = fmt.Errorf("%w: %s", schema.ErrUnknownResultTag, result.State)
	}

	if r != nil && r.rich != nil {
		r.rich.Render(el)
	}
	return stateErr
}

// StateOf returns the result state encoded in a container's class, or zero.
func StateOf(el *dom.Node) schema.ResultState {
	switch {
	case el.HasClass(WaitingClass):
		return schema.ResultWaiting
	case el.HasClass(RunningClass):
		return schema.ResultRunning
	case el.HasClass(CompleteClass):
		return schema.ResultComplete
	default:
		return 0
	}
}
