package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/menta2k/labeller/pkg/types"
)

// createTestImage draws filled rectangles on a gray background
func createTestImage(width, height int, rects ...image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{120, 120, 120, 255}
	fg := color.RGBA{240, 220, 60, 255}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, bg)
			for _, r := range rects {
				if image.Pt(x, y).In(r) {
					img.Set(x, y, fg)
				}
			}
		}
	}
	return img
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 0.02
}

func TestDetectRegions(t *testing.T) {
	img := createTestImage(200, 100,
		image.Rect(20, 20, 80, 80),
		image.Rect(120, 10, 180, 90),
	)

	got := New().DetectRegions(img)
	if len(got) != 2 {
		t.Fatalf("Expected 2 regions, got %d: %+v", len(got), got)
	}

	var left, right types.BoundingBox
	for _, s := range got {
		if s.Box.X < 0.5 {
			left = s.Box
		} else {
			right = s.Box
		}
		if s.Confidence < 0.95 {
			t.Errorf("a solid rectangle should fill its box, got confidence %f", s.Confidence)
		}
		if s.Box.Side != types.SideFront {
			t.Errorf("regions are proposed as front, got %s", s.Box.Side)
		}
	}

	if !near(left.X, 0.1) || !near(left.Y, 0.2) || !near(left.Width, 0.3) || !near(left.Height, 0.6) {
		t.Errorf("unexpected left region %+v", left)
	}
	if !near(right.X, 0.6) || !near(right.Y, 0.1) || !near(right.Width, 0.3) || !near(right.Height, 0.8) {
		t.Errorf("unexpected right region %+v", right)
	}
}

func TestDetectRegionsDownscales(t *testing.T) {
	img := createTestImage(1000, 500, image.Rect(100, 100, 500, 400))

	got := New().DetectRegions(img)
	if len(got) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(got))
	}
	b := got[0].Box
	if !near(b.X, 0.1) || !near(b.Y, 0.2) || !near(b.Width, 0.4) || !near(b.Height, 0.6) {
		t.Errorf("normalized box should not depend on the working size, got %+v", b)
	}
}

func TestDetectRegionsFiltersSmallBlobs(t *testing.T) {
	img := createTestImage(200, 200,
		image.Rect(50, 50, 150, 150),
		image.Rect(5, 5, 8, 8),
	)

	got := New().DetectRegions(img)
	if len(got) != 1 {
		t.Errorf("specks below the minimum area should be dropped, got %+v", got)
	}

	loose := NewWithConfig(DetectionConfig{ColorThreshold: 40, MinRegionRatio: 0, MaxRegions: 1})
	if got := loose.DetectRegions(img); len(got) != 1 {
		t.Errorf("MaxRegions should cap the result, got %d", len(got))
	}
}

func TestDetectRegionsBlank(t *testing.T) {
	if got := New().DetectRegions(createTestImage(100, 100)); len(got) != 0 {
		t.Errorf("Expected no regions on a blank scan, got %+v", got)
	}
	if got := New().DetectRegions(createTestImage(2, 2)); got != nil {
		t.Error("tiny images should yield nothing")
	}
}

func TestSuggestBoxes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(100, 100, image.Rect(25, 25, 75, 75))); err != nil {
		t.Fatal(err)
	}
	b64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	got, err := New().SuggestBoxes(context.Background(), "", b64)
	if err != nil {
		t.Fatalf("SuggestBoxes failed: %v", err)
	}
	if len(got) != 1 || !near(got[0].Box.X, 0.25) {
		t.Errorf("unexpected suggestions %+v", got)
	}

	if _, err := New().SuggestBoxes(context.Background(), "", "%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := New().SuggestBoxes(context.Background(), "", base64.StdEncoding.EncodeToString([]byte("nope"))); err == nil {
		t.Error("Expected error for undecodable image")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().SuggestBoxes(ctx, "", b64); err == nil {
		t.Error("Expected error for a cancelled context")
	}
}

func TestRegion(t *testing.T) {
	r := Region{X: 10, Y: 20, Width: 30, Height: 40}
	if r.Area() != 1200 {
		t.Errorf("Expected area 1200, got %d", r.Area())
	}
}

func BenchmarkDetectRegions(b *testing.B) {
	img := createTestImage(1200, 800, image.Rect(100, 100, 500, 700), image.Rect(700, 100, 1100, 700))
	d := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.DetectRegions(img)
	}
}
