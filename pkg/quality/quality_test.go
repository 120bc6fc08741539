package quality

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/labeller/pkg/processing"
)

func uniformImage(width, height int, level uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// checkerboard alternates lo and hi every pixel
func checkerboard(width, height int, lo, hi uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := lo
			if (x+y)%2 == 1 {
				v = hi
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestAssessFlatImageIsBlurry(t *testing.T) {
	r := New().Assess(uniformImage(40, 30, 128))

	if r.Width != 40 || r.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", r.Width, r.Height)
	}
	if r.BlurScore != 0 {
		t.Errorf("Expected zero Laplacian variance for a flat image, got %f", r.BlurScore)
	}
	if math.Abs(r.Brightness-128) > 0.5 {
		t.Errorf("Expected brightness 128, got %f", r.Brightness)
	}
	if r.Good {
		t.Error("A flat image should be classified as poor")
	}
}

func TestAssessSharpImage(t *testing.T) {
	r := New().Assess(checkerboard(20, 20, 0, 255))

	// Every pixel's Laplacian is +-1020, so the variance is 1020^2
	if math.Abs(r.BlurScore-1020*1020) > 1 {
		t.Errorf("Expected blur score %d, got %f", 1020*1020, r.BlurScore)
	}
	if math.Abs(r.Brightness-127.5) > 0.5 {
		t.Errorf("Expected brightness ~127.5, got %f", r.Brightness)
	}
	if !r.Good {
		t.Error("A sharp, mid-brightness image should be good")
	}
}

func TestAssessBrightnessThresholds(t *testing.T) {
	a := New()

	if r := a.Assess(checkerboard(20, 20, 0, 40)); r.Good {
		t.Errorf("Dark image should be poor, brightness %f", r.Brightness)
	}
	if r := a.Assess(checkerboard(20, 20, 215, 255)); r.Good {
		t.Errorf("Bright image should be poor, brightness %f", r.Brightness)
	}

	loose := NewWithConfig(Config{MinBlurScore: 0, MinBrightness: 0, MaxBrightness: 255}, nil)
	if r := loose.Assess(checkerboard(20, 20, 0, 40)); !r.Good {
		t.Error("Custom thresholds should be honoured")
	}
}

func TestReflect(t *testing.T) {
	cases := []struct{ i, n, want int }{
		{-1, 5, 1},
		{0, 5, 0},
		{5, 5, 3},
		{-1, 1, 0},
		{1, 1, 0},
	}
	for _, c := range cases {
		if got := reflect(c.i, c.n); got != c.want {
			t.Errorf("reflect(%d, %d) = %d, want %d", c.i, c.n, got, c.want)
		}
	}
}

func TestAssessDir(t *testing.T) {
	dir := t.TempDir()
	p := processing.NewProcessor()

	if err := p.SaveImage(checkerboard(32, 16, 0, 255), filepath.Join(dir, "sharp.png")); err != nil {
		t.Fatal(err)
	}
	if err := p.SaveImage(uniformImage(16, 16, 100), filepath.Join(dir, "flat.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := New().AssessDir(dir, nil)
	if err != nil {
		t.Fatalf("AssessDir failed: %v", err)
	}

	if summary.Total != 2 || summary.Good != 1 || summary.Poor != 1 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != "broken.jpg" {
		t.Errorf("Expected broken.jpg to be reported as failed, got %v", summary.Failed)
	}
	if summary.AverageWidth != 24 || summary.AverageHeight != 16 {
		t.Errorf("Expected average 24x16, got %.1fx%.1f", summary.AverageWidth, summary.AverageHeight)
	}
	for _, r := range summary.Reports {
		if r.Filename == "sharp.png" && !r.Good {
			t.Error("sharp.png should be good")
		}
	}
}

func TestAssessDirMissing(t *testing.T) {
	if _, err := New().AssessDir(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("Expected error for a missing directory")
	}
}

func BenchmarkAssess(b *testing.B) {
	img := checkerboard(1280, 720, 30, 220)
	a := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Assess(img)
	}
}
