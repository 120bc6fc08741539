package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/labeller/pkg/types"
)

// Processor handles image decoding, cropping and encoding
type Processor struct {
	jpegQuality  int
	webpQuality  int
	webpLossless bool
}

// Option configures a Processor
type Option func(*Processor)

// WithJPEGQuality sets the JPEG encoding quality (1-100)
func WithJPEGQuality(q int) Option {
	return func(p *Processor) { p.jpegQuality = q }
}

// WithWebP sets the WebP encoding quality and lossless mode
func WithWebP(quality int, lossless bool) Option {
	return func(p *Processor) {
		p.webpQuality = quality
		p.webpLossless = lossless
	}
}

// NewProcessor creates a new image processor
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{jpegQuality: 95, webpQuality: 90}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders, including bmp and webp)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s: %w", path, err)
	}
	return img, nil
}

// DecodeDimensions reads only the header of the image at path
func (p *Processor) DecodeDimensions(path string) (types.ImageDimensions, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.ImageDimensions{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return types.ImageDimensions{}, fmt.Errorf("failed to decode header of %s: %w", path, err)
	}
	return types.ImageDimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Crop extracts rect from img. The rectangle is relative to the top-left corner
// of the image and must overlap it.
func (p *Processor) Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	b := img.Bounds()
	r := rect.Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("empty crop rectangle %v for image %v", rect, b)
	}
	return imaging.Crop(img, r), nil
}

// SaveImage encodes img to path, choosing the format from the file extension
func (p *Processor) SaveImage(img image.Image, path string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(p.jpegQuality))
	case "png":
		return imaging.Save(img, path, imaging.PNGCompressionLevel(png.DefaultCompression))
	case "gif":
		return p.encodeFile(path, func(f *os.File) error {
			return gif.Encode(f, img, &gif.Options{NumColors: 256, Quantizer: quantize.MedianCutQuantizer{}})
		})
	case "bmp":
		return p.encodeFile(path, func(f *os.File) error {
			return bmp.Encode(f, img)
		})
	case "webp":
		return p.encodeFile(path, func(f *os.File) error {
			return webp.Encode(f, img, &webp.Options{Lossless: p.webpLossless, Quality: float32(p.webpQuality)})
		})
	default:
		return fmt.Errorf("unsupported output format: %q", ext)
	}
}

func (p *Processor) encodeFile(path string, encode func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return encode(f)
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// sideColor is the outline color used for each side in overlays
func sideColor(side types.Side) color.NRGBA {
	if side == types.SideBack {
		return color.NRGBA{0, 170, 255, 255}
	}
	return color.NRGBA{0, 255, 0, 255}
}
