package viewport

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/labeller/pkg/types"
)

const epsilon = 1e-9

func TestComputeNeverUpscales(t *testing.T) {
	m, err := Compute(200, 100, 800, 600)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if m.Scale != 1.0 {
		t.Errorf("Expected scale 1.0, got %f", m.Scale)
	}
	if m.DisplayWidth != 200 || m.DisplayHeight != 100 {
		t.Errorf("Expected display 200x100, got %.0fx%.0f", m.DisplayWidth, m.DisplayHeight)
	}
	if m.OffsetX != 300 || m.OffsetY != 250 {
		t.Errorf("Expected offset (300,250), got (%f,%f)", m.OffsetX, m.OffsetY)
	}
}

func TestComputeLetterbox(t *testing.T) {
	// Wide image in a square viewport: bars above and below
	m, err := Compute(2000, 1000, 500, 500)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if m.Scale != 0.25 {
		t.Errorf("Expected scale 0.25, got %f", m.Scale)
	}
	if m.DisplayWidth != 500 || m.DisplayHeight != 250 {
		t.Errorf("Expected display 500x250, got %.0fx%.0f", m.DisplayWidth, m.DisplayHeight)
	}
	if m.OffsetX != 0 || m.OffsetY != 125 {
		t.Errorf("Expected offset (0,125), got (%f,%f)", m.OffsetX, m.OffsetY)
	}
}

func TestComputeFloorsDisplaySize(t *testing.T) {
	m, err := Compute(1001, 333, 500, 500)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if m.DisplayWidth != math.Floor(1001*m.Scale) {
		t.Errorf("Display width %f is not floored", m.DisplayWidth)
	}
	if m.DisplayHeight != math.Floor(333*m.Scale) {
		t.Errorf("Display height %f is not floored", m.DisplayHeight)
	}
}

func TestComputeInvalid(t *testing.T) {
	cases := []struct {
		nw, nh int
		vw, vh float64
	}{
		{0, 100, 100, 100},
		{100, -1, 100, 100},
		{100, 100, 0, 100},
		{100, 100, 100, -5},
	}

	for _, c := range cases {
		if _, err := Compute(c.nw, c.nh, c.vw, c.vh); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("Compute(%d,%d,%g,%g): expected ErrInvalidDimensions, got %v", c.nw, c.nh, c.vw, c.vh, err)
		}
	}
}

func TestScreenToNormalizedClamps(t *testing.T) {
	m, _ := Compute(400, 200, 800, 600) // display 400x200 at (200,200)

	cases := []struct {
		in   types.Point
		want types.Point
	}{
		{types.Point{X: 200, Y: 200}, types.Point{X: 0, Y: 0}},
		{types.Point{X: 600, Y: 400}, types.Point{X: 1, Y: 1}},
		{types.Point{X: 400, Y: 300}, types.Point{X: 0.5, Y: 0.5}},
		{types.Point{X: 0, Y: 0}, types.Point{X: 0, Y: 0}},
		{types.Point{X: 799, Y: 599}, types.Point{X: 1, Y: 1}},
		{types.Point{X: 100, Y: 300}, types.Point{X: 0, Y: 0.5}},
	}

	for _, c := range cases {
		got := m.ScreenToNormalized(c.in)
		if math.Abs(got.X-c.want.X) > epsilon || math.Abs(got.Y-c.want.Y) > epsilon {
			t.Errorf("ScreenToNormalized(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	mappings := []struct {
		nw, nh int
		vw, vh float64
	}{
		{1000, 2000, 800, 600},
		{640, 480, 1920, 1080},
		{3000, 1000, 1024, 768},
		{123, 457, 300, 300},
	}

	for _, mm := range mappings {
		m, err := Compute(mm.nw, mm.nh, mm.vw, mm.vh)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}

		for i := 0; i <= 10; i++ {
			for j := 0; j <= 10; j++ {
				p := types.Point{X: float64(i) / 10, Y: float64(j) / 10}
				back := m.ScreenToNormalized(m.NormalizedToScreen(p))
				if math.Abs(back.X-p.X) > epsilon || math.Abs(back.Y-p.Y) > epsilon {
					t.Errorf("%dx%d in %gx%g: round trip of %v gave %v", mm.nw, mm.nh, mm.vw, mm.vh, p, back)
				}
			}
		}

		// Screen points strictly inside the display area survive the opposite trip
		s := types.Point{X: m.OffsetX + m.DisplayWidth/3, Y: m.OffsetY + m.DisplayHeight/7}
		back := m.NormalizedToScreen(m.ScreenToNormalized(s))
		if math.Abs(back.X-s.X) > 1e-6 || math.Abs(back.Y-s.Y) > 1e-6 {
			t.Errorf("screen round trip of %v gave %v", s, back)
		}
	}
}

func TestBoxToScreen(t *testing.T) {
	m, _ := Compute(1000, 500, 500, 500) // scale 0.5, display 500x250 at (0,125)

	r := m.BoxToScreen(types.BoundingBox{X: 0.2, Y: 0.4, Width: 0.5, Height: 0.2, Side: types.SideBack})
	if math.Abs(r.X-100) > epsilon || math.Abs(r.Y-225) > epsilon {
		t.Errorf("Expected origin (100,225), got (%f,%f)", r.X, r.Y)
	}
	if math.Abs(r.Width-250) > epsilon || math.Abs(r.Height-50) > epsilon {
		t.Errorf("Expected size 250x50, got %fx%f", r.Width, r.Height)
	}
	if r.Side != types.SideBack {
		t.Errorf("Expected side back, got %s", r.Side)
	}
}

func TestContains(t *testing.T) {
	m, _ := Compute(100, 100, 300, 300)

	if !m.Contains(types.Point{X: 150, Y: 150}) {
		t.Error("center should be inside the display area")
	}
	if m.Contains(types.Point{X: 50, Y: 150}) {
		t.Error("letterbox bar should be outside the display area")
	}
}

func BenchmarkScreenToNormalized(b *testing.B) {
	m, _ := Compute(1920, 1080, 1280, 720)
	p := types.Point{X: 640, Y: 360}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ScreenToNormalized(p)
	}
}
