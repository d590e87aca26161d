// Package session owns the live cells of one viewer session.
package session

import (
	"fmt"
	"sort"

	"pkt.systems/cellview/internal/dom"
	"pkt.systems/cellview/internal/hover"
	"pkt.systems/cellview/schema"
)

// Cell is one live cell and the element it is displayed in.
type Cell struct {
	ID      schema.NodeID
	Element *dom.Node
	Source  schema.Source
	Result  schema.Result
	// Hover is set once the cell has been bound for pointer events.
	Hover *hover.Binding
}

// State maps node ids to their cells. It has a single owner and does no
// locking of its own.
type State struct {
	cells map[schema.NodeID]*Cell
}

// New returns an empty State.
func New() *State {
	return &State{cells: make(map[schema.NodeID]*Cell)}
}

// Create registers cell under id.
func (s *State) Create(id schema.NodeID, cell *Cell) error {
	if _, ok := s.cells[id]; ok {
		return fmt.Errorf("create %s: %w", id, schema.ErrCellExists)
	}
	cell.ID = id
	s.cells[id] = cell
	return nil
}

// Get returns the cell registered under id.
func (s *State) Get(id schema.NodeID) (*Cell, error) {
	cell, ok := s.cells[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, schema.ErrCellNotFound)
	}
	return cell, nil
}

// Delete removes the mapping for id and returns the removed cell. The
// element is left where it is; the caller decides whether it stays visible.
func (s *State) Delete(id schema.NodeID) (*Cell, error) {
	cell, ok := s.cells[id]
	if !ok {
		return nil, fmt.Errorf("delete %s: %w", id, schema.ErrCellNotFound)
	}
	delete(s.cells, id)
	return cell, nil
}

// Reset detaches every owned element from the surface and clears the state.
func (s *State) Reset() {
	for _, cell := range s.cells {
		if cell.Element != nil {
			cell.Element.Remove()
		}
	}
	s.cells = make(map[schema.NodeID]*Cell)
}

// Len returns the number of live cells.
func (s *State) Len() int {
	return len(s.cells)
}

// IDs returns the live node ids in sorted order.
func (s *State) IDs() []schema.NodeID {
	ids := make([]schema.NodeID, 0, len(s.cells))
	for id := range s.cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
