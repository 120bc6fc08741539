// Package export turns a finished annotation set into crop files and a JSON sidecar.
//
// For an image "card.png" in directory D, the default layout is:
//
//	D/labels/card.png.json
//	D/labels/front/card_front_1.png, card_front_2.png, ...
//	D/labels/back/card_back_1.png, ...
//
// Crops are written concurrently and fail independently: a box whose crop or
// write fails is logged and left out of the result. Only directory creation and
// the sidecar write can fail the export as a whole, and crops already written are
// kept in that case.
package export

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/menta2k/labeller/internal/utils"
	"github.com/menta2k/labeller/pkg/processing"
	"github.com/menta2k/labeller/pkg/types"
)

// Config holds the output layout and concurrency settings
type Config struct {
	LabelsDir      string // sidecar directory, relative to the image directory
	FrontDir       string // front crops, relative to the image directory
	BackDir        string // back crops, relative to the image directory
	MaxConcurrency int    // crops in flight; 0 means one goroutine per box
}

// DefaultConfig returns the standard labels/, labels/front, labels/back layout
func DefaultConfig() Config {
	return Config{
		LabelsDir: "labels",
		FrontDir:  filepath.Join("labels", "front"),
		BackDir:   filepath.Join("labels", "back"),
	}
}

// Engine writes crops and label sidecars. It keeps no state between exports.
type Engine struct {
	config    Config
	processor *processing.Processor
}

// New creates an Engine with the default layout
func New() *Engine {
	return NewWithConfig(DefaultConfig(), processing.NewProcessor())
}

// NewWithConfig creates an Engine with a custom layout and image processor
func NewWithConfig(config Config, processor *processing.Processor) *Engine {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Engine{config: config, processor: processor}
}

// Config returns the engine's layout
func (e *Engine) Config() Config {
	return e.config
}

// SideDir returns the crop directory for side under dir
func (e *Engine) SideDir(dir string, side types.Side) string {
	if side == types.SideBack {
		return filepath.Join(dir, e.config.BackDir)
	}
	return filepath.Join(dir, e.config.FrontDir)
}

// SidecarPath returns where the label record for imageName is written
func (e *Engine) SidecarPath(dir, imageName string) string {
	return filepath.Join(dir, e.config.LabelsDir, SidecarName(imageName))
}

// cropJob is one box to be cut out and written
type cropJob struct {
	side types.Side
	box  types.PixelBox
	path string
}

type cropOutcome struct {
	job cropJob
	err error
}

// Export crops every box out of img and writes the label record. boxes must be in
// list order; crops are numbered per side in that order.
func (e *Engine) Export(dir string, img types.ImageDescriptor, boxes []types.BoundingBox) types.ExportResult {
	src, err := e.processor.LoadImage(img.Path)
	if err != nil {
		return failure(fmt.Errorf("failed to load image %s: %w", img.Name, err))
	}
	if img.Width <= 0 || img.Height <= 0 {
		img.Width, img.Height = src.Bounds().Dx(), src.Bounds().Dy()
	}
	dims := img.Dimensions()

	record := types.LabelRecord{
		Filename:        img.Name,
		ImageDimensions: dims,
		BoundingBoxes:   make([]types.PixelBox, len(boxes)),
	}

	jobs := make([]cropJob, 0, len(boxes))
	perSide := map[types.Side]int{}
	for i, b := range boxes {
		// Anything but back is exported, and recorded, as front
		side := b.Side
		if side != types.SideBack {
			side = types.SideFront
		}
		pb := PixelRect(b, dims)
		pb.Side = side
		record.BoundingBoxes[i] = pb

		n := perSide[side]
		perSide[side]++
		jobs = append(jobs, cropJob{
			side: side,
			box:  pb,
			path: filepath.Join(e.SideDir(dir, side), CropFilename(img.Name, side, n+1)),
		})
	}

	for _, side := range types.Sides {
		if err := utils.EnsureDir(e.SideDir(dir, side)); err != nil {
			return failure(fmt.Errorf("failed to create %s directory: %w", side, err))
		}
	}

	outcomes := e.runCrops(src, dims, jobs)

	saved := &types.SavedImages{Front: []string{}, Back: []string{}}
	for _, o := range outcomes {
		if o.err != nil {
			log.Printf("crop %s failed: %v", filepath.Base(o.job.path), o.err)
			continue
		}
		saved.Add(o.job.side, filepath.Base(o.job.path))
	}

	sidecar := e.SidecarPath(dir, img.Name)
	if err := WriteLabelRecord(sidecar, record); err != nil {
		return failure(err)
	}

	return types.ExportResult{Success: true, Path: sidecar, SavedImages: saved}
}

// runCrops fans the jobs out to goroutines and collects every outcome, in job order
func (e *Engine) runCrops(src image.Image, dims types.ImageDimensions, jobs []cropJob) []cropOutcome {
	outcomes := make([]cropOutcome, len(jobs))

	var sem chan struct{}
	if e.config.MaxConcurrency > 0 {
		sem = make(chan struct{}, e.config.MaxConcurrency)
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		go func(i int, job cropJob) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			outcomes[i] = cropOutcome{job: job, err: e.writeCrop(src, dims, job)}
		}(i, job)
	}
	wg.Wait()

	return outcomes
}

func (e *Engine) writeCrop(src image.Image, dims types.ImageDimensions, job cropJob) error {
	rect := ClampRect(job.box, dims)
	if rect.Empty() {
		return fmt.Errorf("degenerate crop rectangle %v", rect)
	}
	cropped, err := e.processor.Crop(src, rect)
	if err != nil {
		return err
	}
	return e.processor.SaveImage(cropped, job.path)
}

func failure(err error) types.ExportResult {
	return types.ExportResult{Success: false, Error: err.Error()}
}

// PixelRect scales a normalized box to the image's pixel grid
func PixelRect(b types.BoundingBox, dims types.ImageDimensions) types.PixelBox {
	w, h := float64(dims.Width), float64(dims.Height)
	return types.PixelBox{
		BoundingBox: b,
		PixelX:      int(math.Round(b.X * w)),
		PixelY:      int(math.Round(b.Y * h)),
		PixelWidth:  int(math.Round(b.Width * w)),
		PixelHeight: int(math.Round(b.Height * h)),
	}
}

// ClampRect returns the crop rectangle for p, kept inside the image and at least
// 1x1 unless the box starts at or past the image's far edge.
func ClampRect(p types.PixelBox, dims types.ImageDimensions) image.Rectangle {
	left := maxInt(0, p.PixelX)
	top := maxInt(0, p.PixelY)
	width := minInt(maxInt(1, p.PixelWidth), dims.Width-left)
	height := minInt(maxInt(1, p.PixelHeight), dims.Height-top)
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(left, top, left+width, top+height)
}

// CropFilename names the n-th crop (1-based) of side from imageName, keeping the
// source extension verbatim: "card.png" -> "card_front_1.png".
func CropFilename(imageName string, side types.Side, n int) string {
	base, ext := utils.SplitName(imageName)
	return fmt.Sprintf("%s_%s_%d%s", base, side, n, ext)
}

// SidecarName is the label record file name for imageName
func SidecarName(imageName string) string {
	return imageName + ".json"
}

// WriteLabelRecord writes record as indented JSON, creating its directory
func WriteLabelRecord(path string, record types.LabelRecord) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create labels directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal label record: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write label file: %w", err)
	}
	return nil
}

// ReadLabelRecord parses a sidecar written by WriteLabelRecord
func ReadLabelRecord(path string) (types.LabelRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.LabelRecord{}, fmt.Errorf("failed to read label file: %w", err)
	}

	var record types.LabelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return types.LabelRecord{}, fmt.Errorf("failed to parse label file %s: %w", path, err)
	}
	return record, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
