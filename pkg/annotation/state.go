// Package annotation holds the bounding boxes drawn on the currently displayed image.
//
// Drawing is modelled as a small state machine (idle, drawing) driven by pointer
// messages. State is a value: every transition returns a new State and leaves the
// receiver untouched, so callers can keep snapshots for undo or testing. Store wraps
// a State for callers that prefer an imperative API.
package annotation

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/labeller/pkg/types"
	"github.com/menta2k/labeller/pkg/viewport"
)

// DefaultMinBoxSize is the smallest accepted drag, in screen pixels, along each axis
const DefaultMinBoxSize = 5.0

var (
	// ErrIndexOutOfRange is returned when removing a box that does not exist
	ErrIndexOutOfRange = errors.New("box index out of range")
	// ErrEmptyBox is returned when adding a box with no area
	ErrEmptyBox = errors.New("box has no area")
)

// Phase is the drawing state
type Phase int

const (
	Idle Phase = iota
	Drawing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is an immutable snapshot of the annotation set and the box being drawn
type State struct {
	phase      Phase
	anchor     types.Point
	current    types.Point
	boxes      []types.BoundingBox
	side       types.Side
	mapping    viewport.Mapping
	minBoxSize float64
}

// NewState returns an idle state with no boxes. A non-positive minBoxSize
// selects DefaultMinBoxSize.
func NewState(m viewport.Mapping, side types.Side, minBoxSize float64) State {
	if side == "" {
		side = types.SideFront
	}
	if minBoxSize <= 0 {
		minBoxSize = DefaultMinBoxSize
	}
	return State{mapping: m, side: side, minBoxSize: minBoxSize}
}

// Phase returns the current drawing phase
func (s State) Phase() Phase { return s.phase }

// Side returns the side applied to the next committed box
func (s State) Side() types.Side { return s.side }

// Mapping returns the viewport mapping used to convert pointer positions
func (s State) Mapping() viewport.Mapping { return s.mapping }

// Len returns the number of committed boxes
func (s State) Len() int { return len(s.boxes) }

// Boxes returns a copy of the committed boxes in creation order
func (s State) Boxes() []types.BoundingBox {
	out := make([]types.BoundingBox, len(s.boxes))
	copy(out, s.boxes)
	return out
}

// WithSide changes the side selector. Committed boxes keep their side.
func (s State) WithSide(side types.Side) State {
	s.side = side
	return s
}

// WithMapping replaces the viewport mapping, e.g. after a resize. A drag in
// progress is dropped because its screen points refer to the old layout.
func (s State) WithMapping(m viewport.Mapping) State {
	s.mapping = m
	s.phase = Idle
	return s
}

// PointerDown anchors a new box at p
func (s State) PointerDown(p types.Point) State {
	s.phase = Drawing
	s.anchor = p
	s.current = p
	return s
}

// PointerMove updates the live corner of the box being drawn
func (s State) PointerMove(p types.Point) State {
	if s.phase != Drawing {
		return s
	}
	s.current = p
	return s
}

// PointerUp finishes the drag at p. The box is committed only if the drag spans at
// least the minimum size on both axes and still has area after clamping to the
// image; otherwise the returned state has the same boxes as the receiver and ok is
// false.
func (s State) PointerUp(p types.Point) (next State, box types.BoundingBox, ok bool) {
	if s.phase != Drawing {
		return s, types.BoundingBox{}, false
	}
	anchor := s.anchor
	s.phase = Idle
	s.current = p

	if math.Abs(p.X-anchor.X) < s.minBoxSize || math.Abs(p.Y-anchor.Y) < s.minBoxSize {
		return s, types.BoundingBox{}, false
	}

	a := s.mapping.ScreenToNormalized(anchor)
	b := s.mapping.ScreenToNormalized(p)
	box = types.BoundingBox{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
		Side:   s.side,
	}
	// A drag entirely in the letterbox band clamps to an edge
	if box.Width <= 0 || box.Height <= 0 {
		return s, types.BoundingBox{}, false
	}

	s.boxes = appendBox(s.boxes, box)
	return s, box, true
}

// Cancel abandons the box being drawn
func (s State) Cancel() State {
	s.phase = Idle
	return s
}

// InProgress returns the screen rectangle of the box being drawn
func (s State) InProgress() (viewport.ScreenRect, bool) {
	if s.phase != Drawing {
		return viewport.ScreenRect{}, false
	}
	return viewport.ScreenRect{
		X:      math.Min(s.anchor.X, s.current.X),
		Y:      math.Min(s.anchor.Y, s.current.Y),
		Width:  math.Abs(s.current.X - s.anchor.X),
		Height: math.Abs(s.current.Y - s.anchor.Y),
		Side:   s.side,
	}, true
}

// Add appends an already normalized box, clamping it into the image
func (s State) Add(b types.BoundingBox) (State, error) {
	b = Normalize(b)
	if b.Width <= 0 || b.Height <= 0 {
		return s, ErrEmptyBox
	}
	if b.Side == "" {
		b.Side = s.side
	}
	s.boxes = appendBox(s.boxes, b)
	return s, nil
}

// Remove deletes the box at index i, keeping the order of the rest
func (s State) Remove(i int) (State, error) {
	if i < 0 || i >= len(s.boxes) {
		return s, fmt.Errorf("remove %d of %d: %w", i, len(s.boxes), ErrIndexOutOfRange)
	}
	boxes := make([]types.BoundingBox, 0, len(s.boxes)-1)
	boxes = append(boxes, s.boxes[:i]...)
	boxes = append(boxes, s.boxes[i+1:]...)
	s.boxes = boxes
	return s, nil
}

// Clear removes every box and any drag in progress
func (s State) Clear() State {
	s.boxes = nil
	s.phase = Idle
	return s
}

// ScreenRects projects the committed boxes into screen space, in creation order
func (s State) ScreenRects() []viewport.ScreenRect {
	rects := make([]viewport.ScreenRect, len(s.boxes))
	for i, b := range s.boxes {
		rects[i] = s.mapping.BoxToScreen(b)
	}
	return rects
}

// Normalize orders the corners of b and clamps it into [0,1]
func Normalize(b types.BoundingBox) types.BoundingBox {
	x0, x1 := b.X, b.X+b.Width
	y0, y1 := b.Y, b.Y+b.Height
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	x0, x1 = clamp01(x0), clamp01(x1)
	y0, y1 = clamp01(y0), clamp01(y1)
	return types.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0, Side: b.Side}
}

// appendBox never writes into a backing array shared with an earlier snapshot
func appendBox(boxes []types.BoundingBox, b types.BoundingBox) []types.BoundingBox {
	out := make([]types.BoundingBox, len(boxes), len(boxes)+1)
	copy(out, boxes)
	return append(out, b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
