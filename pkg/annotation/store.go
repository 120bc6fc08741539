package annotation

import (
	"github.com/menta2k/labeller/pkg/types"
	"github.com/menta2k/labeller/pkg/viewport"
)

// Store is the mutable annotation collection for one displayed image.
// It is not safe for concurrent use.
type Store struct {
	state State
}

// NewStore creates an empty store using mapping m for pointer conversion
func NewStore(m viewport.Mapping, minBoxSize float64) *Store {
	return &Store{state: NewState(m, types.SideFront, minBoxSize)}
}

// Snapshot returns the current immutable state
func (s *Store) Snapshot() State {
	return s.state
}

// Restore replaces the current state with an earlier snapshot
func (s *Store) Restore(st State) {
	s.state = st
}

// SetMapping installs a freshly computed mapping
func (s *Store) SetMapping(m viewport.Mapping) {
	s.state = s.state.WithMapping(m)
}

// SetSide selects the side for boxes committed from now on
func (s *Store) SetSide(side types.Side) {
	s.state = s.state.WithSide(side)
}

// Side returns the active side selector
func (s *Store) Side() types.Side {
	return s.state.Side()
}

// StartBox anchors a new box at the screen point p
func (s *Store) StartBox(p types.Point) {
	s.state = s.state.PointerDown(p)
}

// UpdateBox moves the live corner of the box being drawn
func (s *Store) UpdateBox(p types.Point) {
	s.state = s.state.PointerMove(p)
}

// CommitBox finishes the box at p. It returns false, leaving the boxes unchanged,
// when the drag is smaller than the minimum size.
func (s *Store) CommitBox(p types.Point) (types.BoundingBox, bool) {
	next, box, ok := s.state.PointerUp(p)
	s.state = next
	return box, ok
}

// Cancel abandons the box being drawn
func (s *Store) Cancel() {
	s.state = s.state.Cancel()
}

// Add appends a normalized box
func (s *Store) Add(b types.BoundingBox) error {
	next, err := s.state.Add(b)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Remove deletes the box at index i
func (s *Store) Remove(i int) error {
	next, err := s.state.Remove(i)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Clear drops every box
func (s *Store) Clear() {
	s.state = s.state.Clear()
}

// List returns the boxes in creation order
func (s *Store) List() []types.BoundingBox {
	return s.state.Boxes()
}

// Len returns the number of committed boxes
func (s *Store) Len() int {
	return s.state.Len()
}

// ScreenRects returns the committed boxes projected for rendering
func (s *Store) ScreenRects() []viewport.ScreenRect {
	return s.state.ScreenRects()
}

// InProgress returns the rectangle currently being dragged, if any
func (s *Store) InProgress() (viewport.ScreenRect, bool) {
	return s.state.InProgress()
}
