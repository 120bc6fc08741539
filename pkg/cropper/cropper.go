// Package cropper applies one fixed crop or one resize to every image in a
// directory, for preparing scans before or after labelling.
package cropper

import (
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/labeller/internal/utils"
	"github.com/menta2k/labeller/pkg/processing"
)

var (
	// ErrNoImages is returned when the input directory holds no supported images
	ErrNoImages = errors.New("no images found")
	// ErrSameDirectory is returned when the output would overwrite the input images
	ErrSameDirectory = errors.New("output directory must differ from the input directory")
)

// Region is a pixel rectangle relative to the image's top-left corner
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// ParseRegion parses "x,y,width,height"
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q must be x,y,width,height", s)
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}

	r := Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 {
		return Region{}, fmt.Errorf("region %q needs a non-negative origin and a positive size", s)
	}
	return r, nil
}

// ParseSize parses "WIDTHxHEIGHT"
func ParseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q must be WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("size %q must be positive", s)
	}
	return width, height, nil
}

// Config holds configuration for batch operations
type Config struct {
	Formats      []string // input extensions, empty means the default image formats
	OutputFormat string   // extension of written files, empty keeps the source's
}

// BatchCropper crops or resizes whole directories
type BatchCropper struct {
	processor *processing.Processor
	config    Config
}

// BatchResult lists the files a batch wrote and the ones it could not process
type BatchResult struct {
	Processed []string `json:"processed"`
	Failed    []string `json:"failed,omitempty"`
}

// New creates a new BatchCropper with default configuration
func New() *BatchCropper {
	return NewWithConfig(Config{}, nil)
}

// NewWithConfig creates a new BatchCropper with custom configuration
func NewWithConfig(config Config, processor *processing.Processor) *BatchCropper {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &BatchCropper{processor: processor, config: config}
}

// CropToRegion cuts region out of img. Parts of the region outside the image
// are dropped.
func (c *BatchCropper) CropToRegion(img image.Image, region Region) (image.Image, error) {
	bounds := img.Bounds()
	rect := region.Rect().Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if rect.Empty() {
		return nil, fmt.Errorf("region %v lies outside the %dx%d image", region.Rect(), bounds.Dx(), bounds.Dy())
	}
	return c.processor.Crop(img, rect)
}

// Resize scales img to exactly width x height with Lanczos resampling. The
// result is fully opaque: transparency is discarded, keeping the color values.
func (c *BatchCropper) Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	for i := 3; i < len(resized.Pix); i += 4 {
		resized.Pix[i] = 0xff
	}
	return resized, nil
}

// ExtractROI writes region of every image in inDir to outDir under the same name
func (c *BatchCropper) ExtractROI(inDir, outDir string, region Region) (BatchResult, error) {
	return c.apply(inDir, outDir, func(img image.Image) (image.Image, error) {
		return c.CropToRegion(img, region)
	})
}

// ResizeDir writes every image in inDir resized to width x height to outDir
func (c *BatchCropper) ResizeDir(inDir, outDir string, width, height int) (BatchResult, error) {
	if width <= 0 || height <= 0 {
		return BatchResult{}, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	return c.apply(inDir, outDir, func(img image.Image) (image.Image, error) {
		return c.Resize(img, width, height)
	})
}

func (c *BatchCropper) apply(inDir, outDir string, transform func(image.Image) (image.Image, error)) (BatchResult, error) {
	var result BatchResult

	if filepath.Clean(inDir) == filepath.Clean(outDir) {
		return result, ErrSameDirectory
	}

	images, err := utils.ListImages(inDir, c.config.Formats, false)
	if err != nil {
		return result, err
	}
	if len(images) == 0 {
		return result, fmt.Errorf("%w in %s", ErrNoImages, inDir)
	}

	if err := utils.EnsureDir(outDir); err != nil {
		return result, fmt.Errorf("failed to create output directory: %w", err)
	}

	for i, desc := range images {
		name := desc.Name
		if c.config.OutputFormat != "" {
			name = utils.ReplaceExtension(name, c.config.OutputFormat)
		}

		if err := c.processOne(desc.Path, filepath.Join(outDir, name), transform); err != nil {
			log.Printf("[%d/%d] %s: %v", i+1, len(images), desc.Name, err)
			result.Failed = append(result.Failed, desc.Name)
			continue
		}
		log.Printf("[%d/%d] %s -> %s", i+1, len(images), desc.Name, name)
		result.Processed = append(result.Processed, name)
	}

	return result, nil
}

func (c *BatchCropper) processOne(src, dst string, transform func(image.Image) (image.Image, error)) error {
	img, err := c.processor.LoadImage(src)
	if err != nil {
		return err
	}
	out, err := transform(img)
	if err != nil {
		return err
	}
	return c.processor.SaveImage(out, dst)
}
