// Package quality scores images for sharpness and exposure before labelling.
//
// Sharpness is the variance of the 4-neighbour Laplacian of the grayscale image.
// Brightness is the mean gray level. An image is good when it is sharper than
// MinBlurScore and its brightness lies strictly inside (MinBrightness, MaxBrightness).
package quality

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/labeller/internal/utils"
	"github.com/menta2k/labeller/pkg/processing"
)

// Config holds the thresholds used to classify an image
type Config struct {
	MinBlurScore  float64
	MinBrightness float64
	MaxBrightness float64
}

// DefaultConfig returns the standard thresholds: blur 100, brightness 50..200
func DefaultConfig() Config {
	return Config{
		MinBlurScore:  100,
		MinBrightness: 50,
		MaxBrightness: 200,
	}
}

// Report is the quality assessment of one image
type Report struct {
	Filename   string  `json:"filename,omitempty"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	BlurScore  float64 `json:"blurScore"`
	Brightness float64 `json:"brightness"`
	Good       bool    `json:"good"`
}

// Summary aggregates a directory report
type Summary struct {
	Total         int      `json:"total"`
	Good          int      `json:"good"`
	Poor          int      `json:"poor"`
	AverageWidth  float64  `json:"averageWidth"`
	AverageHeight float64  `json:"averageHeight"`
	Failed        []string `json:"failed,omitempty"`
	Reports       []Report `json:"reports"`
}

// Assessor scores images against a Config
type Assessor struct {
	config    Config
	processor *processing.Processor
}

// New creates an Assessor with the default thresholds
func New() *Assessor {
	return NewWithConfig(DefaultConfig(), processing.NewProcessor())
}

// NewWithConfig creates an Assessor with custom thresholds
func NewWithConfig(config Config, processor *processing.Processor) *Assessor {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Assessor{config: config, processor: processor}
}

// Assess scores a decoded image
func (a *Assessor) Assess(img image.Image) Report {
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	levels := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			levels[y*w+x] = float64(row[x*4])
		}
	}

	report := Report{Width: w, Height: h}
	if w == 0 || h == 0 {
		return report
	}

	report.Brightness = stat.Mean(levels, nil)
	report.BlurScore = stat.PopVariance(laplacian(levels, w, h), nil)
	report.Good = report.BlurScore > a.config.MinBlurScore &&
		report.Brightness > a.config.MinBrightness &&
		report.Brightness < a.config.MaxBrightness

	return report
}

// AssessFile decodes and scores the image at path
func (a *Assessor) AssessFile(path string) (Report, error) {
	img, err := a.processor.LoadImage(path)
	if err != nil {
		return Report{}, err
	}
	report := a.Assess(img)
	report.Filename = filepath.Base(path)
	return report, nil
}

// AssessDir scores every image in dir. Images that cannot be decoded are listed
// in Summary.Failed and excluded from the counts.
func (a *Assessor) AssessDir(dir string, formats []string) (Summary, error) {
	images, err := utils.ListImages(dir, formats, false)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list images: %w", err)
	}

	summary := Summary{Reports: []Report{}}
	var widths, heights []float64
	for _, desc := range images {
		report, err := a.AssessFile(desc.Path)
		if err != nil {
			summary.Failed = append(summary.Failed, desc.Name)
			continue
		}
		summary.Reports = append(summary.Reports, report)
		widths = append(widths, float64(report.Width))
		heights = append(heights, float64(report.Height))
		if report.Good {
			summary.Good++
		} else {
			summary.Poor++
		}
	}

	summary.Total = len(summary.Reports)
	if summary.Total > 0 {
		summary.AverageWidth = stat.Mean(widths, nil)
		summary.AverageHeight = stat.Mean(heights, nil)
	}
	return summary, nil
}

// laplacian applies the 3x3 kernel [0 1 0; 1 -4 1; 0 1 0] with mirrored borders
// (the edge pixel itself is not repeated).
func laplacian(levels []float64, w, h int) []float64 {
	out := make([]float64, len(levels))
	at := func(x, y int) float64 {
		return levels[reflect(y, h)*w+reflect(x, w)]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
		}
	}
	return out
}

func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}
