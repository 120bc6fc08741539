// Package viewport maps between screen, display and normalized image coordinates.
//
// A Mapping describes how an image of a given natural size is letterboxed into a
// viewport: it is scaled down (never up) to fit and centered. Mappings are plain
// values and are recomputed whenever the image or the viewport size changes.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/labeller/pkg/types"
)

// ErrInvalidDimensions is returned for non-positive image or viewport sizes
var ErrInvalidDimensions = errors.New("invalid dimensions")

// Mapping is the placement of a scaled image inside a viewport
type Mapping struct {
	OffsetX       float64 `json:"offsetX"`
	OffsetY       float64 `json:"offsetY"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
	Scale         float64 `json:"scale"`
}

// ScreenRect is an axis-aligned rectangle in screen space
type ScreenRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Side   types.Side
}

// Compute derives the mapping for an image of naturalWidth x naturalHeight pixels
// shown in a viewport of viewportWidth x viewportHeight.
func Compute(naturalWidth, naturalHeight int, viewportWidth, viewportHeight float64) (Mapping, error) {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return Mapping{}, fmt.Errorf("image %dx%d: %w", naturalWidth, naturalHeight, ErrInvalidDimensions)
	}
	if viewportWidth <= 0 || viewportHeight <= 0 {
		return Mapping{}, fmt.Errorf("viewport %gx%g: %w", viewportWidth, viewportHeight, ErrInvalidDimensions)
	}

	nw, nh := float64(naturalWidth), float64(naturalHeight)
	scale := math.Min(math.Min(viewportWidth/nw, viewportHeight/nh), 1.0)

	// A sub-pixel display would make the normalized conversion divide by zero
	dw := math.Max(1, math.Floor(nw*scale))
	dh := math.Max(1, math.Floor(nh*scale))

	return Mapping{
		OffsetX:       (viewportWidth - dw) / 2,
		OffsetY:       (viewportHeight - dh) / 2,
		DisplayWidth:  dw,
		DisplayHeight: dh,
		Scale:         scale,
	}, nil
}

// ScreenToNormalized converts a screen position into normalized image coordinates.
// Positions outside the displayed image collapse to the nearest edge.
func (m Mapping) ScreenToNormalized(p types.Point) types.Point {
	if m.DisplayWidth <= 0 || m.DisplayHeight <= 0 {
		return types.Point{}
	}
	return types.Point{
		X: clamp01((p.X - m.OffsetX) / m.DisplayWidth),
		Y: clamp01((p.Y - m.OffsetY) / m.DisplayHeight),
	}
}

// NormalizedToScreen converts normalized image coordinates into a screen position
func (m Mapping) NormalizedToScreen(p types.Point) types.Point {
	return types.Point{
		X: m.OffsetX + p.X*m.DisplayWidth,
		Y: m.OffsetY + p.Y*m.DisplayHeight,
	}
}

// BoxToScreen projects a normalized box into screen space for rendering
func (m Mapping) BoxToScreen(b types.BoundingBox) ScreenRect {
	tl := m.NormalizedToScreen(types.Point{X: b.X, Y: b.Y})
	return ScreenRect{
		X:      tl.X,
		Y:      tl.Y,
		Width:  b.Width * m.DisplayWidth,
		Height: b.Height * m.DisplayHeight,
		Side:   b.Side,
	}
}

// Contains reports whether a screen position falls on the displayed image
func (m Mapping) Contains(p types.Point) bool {
	return p.X >= m.OffsetX && p.X <= m.OffsetX+m.DisplayWidth &&
		p.Y >= m.OffsetY && p.Y <= m.OffsetY+m.DisplayHeight
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
