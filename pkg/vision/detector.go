// Package vision proposes card regions without a model: cards scanned on a
// plain background show up as connected blobs that differ in color from the
// image border.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/labeller/pkg/types"
)

// RegionDetector finds foreground regions in scans
type RegionDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for region detection
type DetectionConfig struct {
	ColorThreshold float64 // RGB distance from the background, 0..441
	MinRegionRatio float64 // smallest region, as a fraction of the image area
	MaxRegions     int
	WorkSize       int // images are downscaled to fit this square first
}

// New creates a new RegionDetector with default configuration
func New() *RegionDetector {
	return &RegionDetector{
		config: DetectionConfig{
			ColorThreshold: 40,
			MinRegionRatio: 0.02,
			MaxRegions:     10,
			WorkSize:       256,
		},
	}
}

// NewWithConfig creates a new RegionDetector with custom configuration
func NewWithConfig(config DetectionConfig) *RegionDetector {
	return &RegionDetector{config: config}
}

// Region represents a rectangular region of interest in working pixels
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64 // fraction of the rectangle covered by the blob
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// DetectRegions returns normalized boxes around foreground blobs, best first.
// Boxes are tagged front; the side has to be chosen by the user.
func (d *RegionDetector) DetectRegions(img image.Image) []types.Suggestion {
	work := img
	if d.config.WorkSize > 0 {
		work = imaging.Fit(img, d.config.WorkSize, d.config.WorkSize, imaging.Box)
	}
	small := imaging.Clone(work)
	w, h := small.Bounds().Dx(), small.Bounds().Dy()
	if w < 3 || h < 3 {
		return nil
	}

	mask := d.foregroundMask(small)
	regions := d.filterRegions(components(mask, w, h), w, h)

	out := make([]types.Suggestion, 0, len(regions))
	for _, r := range regions {
		out = append(out, types.Suggestion{
			Box: types.BoundingBox{
				X:      float64(r.X) / float64(w),
				Y:      float64(r.Y) / float64(h),
				Width:  float64(r.Width) / float64(w),
				Height: float64(r.Height) / float64(h),
				Side:   types.SideFront,
			},
			Label:      "card",
			Confidence: r.Score,
		})
	}
	return out
}

// SuggestBoxes decodes a base64 image and detects regions in it. The model
// argument is ignored.
func (d *RegionDetector) SuggestBoxes(ctx context.Context, model, imageB64 string) ([]types.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return d.DetectRegions(img), nil
}

// foregroundMask marks pixels whose color is far from the mean border color
func (d *RegionDetector) foregroundMask(img *image.NRGBA) []bool {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	px := func(x, y int) (float64, float64, float64) {
		i := y*img.Stride + x*4
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}

	var br, bg, bb float64
	n := 0
	for x := 0; x < w; x++ {
		for _, y := range []int{0, h - 1} {
			r, g, b := px(x, y)
			br, bg, bb = br+r, bg+g, bb+b
			n++
		}
	}
	for y := 1; y < h-1; y++ {
		for _, x := range []int{0, w - 1} {
			r, g, b := px(x, y)
			br, bg, bb = br+r, bg+g, bb+b
			n++
		}
	}
	br, bg, bb = br/float64(n), bg/float64(n), bb/float64(n)

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := px(x, y)
			dist := math.Sqrt((r-br)*(r-br) + (g-bg)*(g-bg) + (b-bb)*(b-bb))
			mask[y*w+x] = dist > d.config.ColorThreshold
		}
	}
	return mask
}

// components labels 4-connected foreground blobs and returns their bounding boxes
func components(mask []bool, w, h int) []Region {
	seen := make([]bool, len(mask))
	var regions []Region
	stack := make([]int, 0, 64)

	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		minX, minY, maxX, maxY := w, h, -1, -1
		pixels := 0

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			pixels++
			minX, maxX = minInt(minX, x), maxInt(maxX, x)
			minY, maxY = minInt(minY, y), maxInt(maxY, y)

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if mask[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}

		r := Region{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
		r.Score = float64(pixels) / float64(r.Area())
		regions = append(regions, r)
	}
	return regions
}

func (d *RegionDetector) filterRegions(regions []Region, imageWidth, imageHeight int) []Region {
	minArea := int(float64(imageWidth*imageHeight) * d.config.MinRegionRatio)

	var filtered []Region
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })

	if d.config.MaxRegions > 0 && len(filtered) > d.config.MaxRegions {
		filtered = filtered[:d.config.MaxRegions]
	}
	return filtered
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
