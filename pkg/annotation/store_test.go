package annotation

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/labeller/pkg/types"
	"github.com/menta2k/labeller/pkg/viewport"
)

// testMapping shows a 500x250 image at native size in an 800x600 viewport:
// display 500x250 at offset (150,175).
func testMapping(t *testing.T) viewport.Mapping {
	t.Helper()
	m, err := viewport.Compute(500, 250, 800, 600)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return m
}

func drag(s *Store, from, to types.Point) (types.BoundingBox, bool) {
	s.StartBox(from)
	s.UpdateBox(types.Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2})
	return s.CommitBox(to)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCommitBox(t *testing.T) {
	s := NewStore(testMapping(t), 0)

	box, ok := drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 400, Y: 300})
	if !ok {
		t.Fatal("Expected box to be committed")
	}

	if !almostEqual(box.X, 0.1) || !almostEqual(box.Y, 0.1) {
		t.Errorf("Expected origin (0.1,0.1), got (%f,%f)", box.X, box.Y)
	}
	if !almostEqual(box.Width, 0.4) || !almostEqual(box.Height, 0.4) {
		t.Errorf("Expected size 0.4x0.4, got %fx%f", box.Width, box.Height)
	}
	if box.Side != types.SideFront {
		t.Errorf("Expected default side front, got %s", box.Side)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 box, got %d", s.Len())
	}
}

func TestCommitRejectsSmallDrags(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	if _, ok := drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 300, Y: 300}); !ok {
		t.Fatal("setup drag should commit")
	}
	before := s.List()

	cases := []struct{ from, to types.Point }{
		{types.Point{X: 200, Y: 200}, types.Point{X: 204.9, Y: 300}},
		{types.Point{X: 200, Y: 200}, types.Point{X: 300, Y: 204}},
		{types.Point{X: 300, Y: 300}, types.Point{X: 296, Y: 200}},
		{types.Point{X: 250, Y: 250}, types.Point{X: 250, Y: 250}},
	}

	for _, c := range cases {
		if _, ok := drag(s, c.from, c.to); ok {
			t.Errorf("drag %v -> %v should be rejected", c.from, c.to)
		}
		after := s.List()
		if len(after) != len(before) || after[0] != before[0] {
			t.Errorf("store changed after rejected drag %v -> %v", c.from, c.to)
		}
		if s.Snapshot().Phase() != Idle {
			t.Errorf("Expected idle after rejected commit, got %s", s.Snapshot().Phase())
		}
	}
}

func TestCommitMinBoxSizeBoundary(t *testing.T) {
	s := NewStore(testMapping(t), 0)

	if _, ok := drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 205, Y: 205}); !ok {
		t.Error("a drag of exactly the minimum size should be accepted")
	}
}

func TestCommitRejectsLetterboxDrags(t *testing.T) {
	s := NewStore(testMapping(t), 0)

	// Left band is x < 150; both corners clamp to the left edge
	if box, ok := drag(s, types.Point{X: 20, Y: 200}, types.Point{X: 100, Y: 300}); ok {
		t.Errorf("drag inside the letterbox should not commit, got %+v", box)
	}
	// Bottom band is y >= 425
	if box, ok := drag(s, types.Point{X: 200, Y: 450}, types.Point{X: 400, Y: 550}); ok {
		t.Errorf("drag below the image should not commit, got %+v", box)
	}
	if s.Len() != 0 {
		t.Errorf("Expected no boxes, got %d", s.Len())
	}
	if s.Snapshot().Phase() != Idle {
		t.Error("Expected idle after a rejected commit")
	}

	box, ok := drag(s, types.Point{X: 20, Y: 200}, types.Point{X: 250, Y: 300})
	if !ok {
		t.Fatal("drag reaching into the image should commit")
	}
	if box.X != 0 || !almostEqual(box.Width, 0.2) {
		t.Errorf("Expected box clamped to the left edge, got %+v", box)
	}
}

func TestCommitNormalizesDirection(t *testing.T) {
	m := testMapping(t)
	a := types.Point{X: 200, Y: 200}
	b := types.Point{X: 400, Y: 300}

	directions := []struct{ from, to types.Point }{
		{a, b},
		{b, a},
		{types.Point{X: a.X, Y: b.Y}, types.Point{X: b.X, Y: a.Y}},
		{types.Point{X: b.X, Y: a.Y}, types.Point{X: a.X, Y: b.Y}},
	}

	for _, d := range directions {
		s := NewStore(m, 0)
		box, ok := drag(s, d.from, d.to)
		if !ok {
			t.Fatalf("drag %v -> %v should commit", d.from, d.to)
		}
		if box.Width < 0 || box.Height < 0 {
			t.Errorf("negative size for drag %v -> %v: %+v", d.from, d.to, box)
		}
		if !almostEqual(box.X, 0.1) || !almostEqual(box.Y, 0.1) {
			t.Errorf("drag %v -> %v: expected top-left (0.1,0.1), got (%f,%f)", d.from, d.to, box.X, box.Y)
		}
	}
}

func TestCommitClampsOutsideImage(t *testing.T) {
	s := NewStore(testMapping(t), 0)

	// Drag from the letterbox bar across the far edge of the image
	box, ok := drag(s, types.Point{X: 10, Y: 10}, types.Point{X: 790, Y: 590})
	if !ok {
		t.Fatal("Expected box to be committed")
	}
	if box.X != 0 || box.Y != 0 || box.Width != 1 || box.Height != 1 {
		t.Errorf("Expected box clamped to the full image, got %+v", box)
	}
}

func TestSideTagging(t *testing.T) {
	s := NewStore(testMapping(t), 0)

	drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 300, Y: 300})
	s.SetSide(types.SideBack)
	drag(s, types.Point{X: 300, Y: 300}, types.Point{X: 400, Y: 400})

	// Switching mid-drag applies to the box being drawn
	s.SetSide(types.SideFront)
	s.StartBox(types.Point{X: 160, Y: 180})
	s.SetSide(types.SideBack)
	s.CommitBox(types.Point{X: 260, Y: 280})

	boxes := s.List()
	want := []types.Side{types.SideFront, types.SideBack, types.SideBack}
	if len(boxes) != len(want) {
		t.Fatalf("Expected %d boxes, got %d", len(want), len(boxes))
	}
	for i, side := range want {
		if boxes[i].Side != side {
			t.Errorf("box %d: expected side %s, got %s", i, side, boxes[i].Side)
		}
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	for i := 0; i < 4; i++ {
		x := 160 + float64(i)*50
		drag(s, types.Point{X: x, Y: 200}, types.Point{X: x + 40, Y: 300})
	}
	before := s.List()

	if err := s.Remove(1); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	after := s.List()
	if len(after) != 3 {
		t.Fatalf("Expected 3 boxes, got %d", len(after))
	}
	want := []types.BoundingBox{before[0], before[2], before[3]}
	for i := range want {
		if after[i] != want[i] {
			t.Errorf("box %d: expected %+v, got %+v", i, want[i], after[i])
		}
	}

	rects := s.ScreenRects()
	if len(rects) != 3 {
		t.Fatalf("Expected 3 screen rects, got %d", len(rects))
	}
	for i, r := range rects {
		if !almostEqual(r.X, s.Snapshot().Mapping().BoxToScreen(want[i]).X) {
			t.Errorf("screen rect %d does not match remaining box", i)
		}
	}
}

func TestRemoveOutOfRange(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 300, Y: 300})

	for _, i := range []int{-1, 1, 5} {
		if err := s.Remove(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Remove(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
	if s.Len() != 1 {
		t.Errorf("Expected store unchanged, got %d boxes", s.Len())
	}
}

func TestClear(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 300, Y: 300})
	s.StartBox(types.Point{X: 400, Y: 400})

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d boxes", s.Len())
	}
	if _, drawing := s.InProgress(); drawing {
		t.Error("Expected no drag in progress after Clear")
	}
}

func TestCancel(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	s.StartBox(types.Point{X: 200, Y: 200})
	s.UpdateBox(types.Point{X: 300, Y: 300})

	r, drawing := s.InProgress()
	if !drawing || r.Width != 100 || r.Height != 100 {
		t.Errorf("Expected 100x100 drag in progress, got %+v (drawing=%v)", r, drawing)
	}

	s.Cancel()
	if _, ok := s.CommitBox(types.Point{X: 300, Y: 300}); ok {
		t.Error("commit after cancel should not add a box")
	}
	if s.Len() != 0 {
		t.Errorf("Expected no boxes, got %d", s.Len())
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	m := testMapping(t)
	s0 := NewState(m, types.SideFront, 0)

	s1, _, ok := s0.PointerDown(types.Point{X: 200, Y: 200}).PointerUp(types.Point{X: 300, Y: 300})
	if !ok {
		t.Fatal("Expected commit")
	}
	s2, _, _ := s1.PointerDown(types.Point{X: 300, Y: 300}).PointerUp(types.Point{X: 400, Y: 400})
	s3, err := s2.Remove(0)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if s0.Len() != 0 || s1.Len() != 1 || s2.Len() != 2 || s3.Len() != 1 {
		t.Errorf("unexpected lengths %d %d %d %d", s0.Len(), s1.Len(), s2.Len(), s3.Len())
	}
	if s2.Boxes()[0] != s1.Boxes()[0] {
		t.Error("earlier snapshot was modified")
	}

	boxes := s2.Boxes()
	boxes[0].X = 0.99
	if s2.Boxes()[0].X == 0.99 {
		t.Error("Boxes must return a copy")
	}
}

func TestRestore(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 300, Y: 300})
	snap := s.Snapshot()

	drag(s, types.Point{X: 300, Y: 300}, types.Point{X: 400, Y: 400})
	s.Clear()
	s.Restore(snap)

	if s.Len() != 1 {
		t.Errorf("Expected the snapshot's single box back, got %d", s.Len())
	}
}

func TestAdd(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	s.SetSide(types.SideBack)

	if err := s.Add(types.BoundingBox{X: 0.9, Y: -0.1, Width: 0.3, Height: 0.3}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b := s.List()[0]
	if !almostEqual(b.X, 0.9) || b.Y != 0 || !almostEqual(b.Width, 0.1) || !almostEqual(b.Height, 0.2) {
		t.Errorf("Expected clamped box, got %+v", b)
	}
	if b.Side != types.SideBack {
		t.Errorf("Expected unset side to default to the selector, got %s", b.Side)
	}

	if err := s.Add(types.BoundingBox{X: 1.2, Y: 0.5, Width: 0.1, Height: 0.1}); !errors.Is(err, ErrEmptyBox) {
		t.Errorf("Expected ErrEmptyBox for a box outside the image, got %v", err)
	}
}

func TestSetMappingKeepsBoxes(t *testing.T) {
	s := NewStore(testMapping(t), 0)
	box, _ := drag(s, types.Point{X: 200, Y: 200}, types.Point{X: 400, Y: 300})

	m2, _ := viewport.Compute(500, 250, 400, 400)
	s.SetMapping(m2)

	if got := s.List()[0]; got != box {
		t.Errorf("normalized box changed on resize: %+v -> %+v", box, got)
	}
	r := s.ScreenRects()[0]
	want := m2.BoxToScreen(box)
	if !almostEqual(r.X, want.X) || !almostEqual(r.Width, want.Width) {
		t.Errorf("Expected reprojection %+v, got %+v", want, r)
	}
}

func TestPhaseString(t *testing.T) {
	if Idle.String() != "idle" || Drawing.String() != "drawing" {
		t.Errorf("unexpected phase names %q %q", Idle, Drawing)
	}
}
