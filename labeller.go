// Package labeller draws front/back bounding boxes on images and exports the
// labelled regions as crops plus a JSON label record per image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		"github.com/menta2k/labeller"
//		"github.com/menta2k/labeller/pkg/types"
//	)
//
//	func main() {
//		l := labeller.New()
//
//		s, err := l.OpenSession("./scans")
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := s.Show(0, 1280, 800); err != nil {
//			log.Fatal(err)
//		}
//
//		// Pointer input in viewport coordinates
//		s.PointerDown(types.Point{X: 300, Y: 200})
//		s.PointerMove(types.Point{X: 500, Y: 420})
//		s.PointerUp(types.Point{X: 520, Y: 460})
//
//		result, err := s.Save()
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("wrote %s", result.Path)
//	}
//
// The package consists of these components:
//
// 1. Viewport (pkg/viewport): maps between screen and normalized image coordinates
// 2. Annotation (pkg/annotation): the box store and its drawing state machine
// 3. Export (pkg/export): crops boxes out of the source image and writes the label record
// 4. Session (pkg/session): one labelling session over a directory
//
// Quality assessment (pkg/quality), vision-model box suggestions (pkg/detection
// with pkg/ollama or pkg/llamacpp, or the offline pkg/vision), directory-wide
// crop and resize (pkg/cropper) and the train/val/test split (pkg/dataset) are
// optional.
package labeller

import (
	"fmt"
	"path/filepath"

	"github.com/menta2k/labeller/internal/config"
	"github.com/menta2k/labeller/pkg/cropper"
	"github.com/menta2k/labeller/pkg/dataset"
	"github.com/menta2k/labeller/pkg/export"
	"github.com/menta2k/labeller/pkg/processing"
	"github.com/menta2k/labeller/pkg/quality"
	"github.com/menta2k/labeller/pkg/session"
	"github.com/menta2k/labeller/pkg/types"
)

// Version of the labeller library
const Version = "1.0.0"

// Labeller provides a high-level interface for labelling and export
type Labeller struct {
	processor *processing.Processor
	engine    *export.Engine
	assessor  *quality.Assessor
	cropper   *cropper.BatchCropper
	splitter  *dataset.Splitter
	split     dataset.Config

	minBoxSize float64
	formats    []string
	natural    bool
}

// New creates a Labeller with the default configuration
func New() *Labeller {
	return NewFromConfig(config.Default())
}

// NewWithConfig creates a Labeller with a custom output layout and quality thresholds
func NewWithConfig(exportConfig export.Config, qualityConfig quality.Config, opts ...processing.Option) *Labeller {
	processor := processing.NewProcessor(opts...)
	defaults := config.Default()
	engine := export.NewWithConfig(exportConfig, processor)

	return &Labeller{
		processor:  processor,
		engine:     engine,
		assessor:   quality.NewWithConfig(qualityConfig, processor),
		cropper:    cropper.NewWithConfig(cropper.Config{Formats: defaults.Images.SupportedFormats}, processor),
		splitter:   dataset.New(engine),
		split:      dataset.DefaultConfig(),
		minBoxSize: defaults.Annotation.MinBoxSize,
		formats:    defaults.Images.SupportedFormats,
		natural:    defaults.Images.NaturalOrder,
	}
}

// NewFromConfig creates a Labeller from a loaded configuration
func NewFromConfig(cfg *config.Config) *Labeller {
	processor := processing.NewProcessor(
		processing.WithJPEGQuality(cfg.Output.JPEGQuality),
		processing.WithWebP(cfg.Output.WebPQuality, cfg.Output.WebPLossless),
	)

	exportConfig := export.Config{
		LabelsDir:      cfg.Output.LabelsDir,
		FrontDir:       cfg.Output.FrontDir,
		BackDir:        cfg.Output.BackDir,
		MaxConcurrency: cfg.Output.MaxConcurrency,
	}
	qualityConfig := quality.Config{
		MinBlurScore:  cfg.Quality.MinBlurScore,
		MinBrightness: cfg.Quality.MinBrightness,
		MaxBrightness: cfg.Quality.MaxBrightness,
	}

	splitConfig := dataset.Config{
		Seed:        cfg.Dataset.Seed,
		Good:        dataset.Ratios(cfg.Dataset.Good),
		Poor:        dataset.Ratios(cfg.Dataset.Poor),
		ExcludePoor: cfg.Dataset.ExcludePoor,
	}
	batchConfig := cropper.Config{
		Formats:      cfg.Images.SupportedFormats,
		OutputFormat: cfg.Batch.OutputFormat,
	}
	engine := export.NewWithConfig(exportConfig, processor)

	return &Labeller{
		processor:  processor,
		engine:     engine,
		assessor:   quality.NewWithConfig(qualityConfig, processor),
		cropper:    cropper.NewWithConfig(batchConfig, processor),
		splitter:   dataset.New(engine),
		split:      splitConfig,
		minBoxSize: cfg.Annotation.MinBoxSize,
		formats:    cfg.Images.SupportedFormats,
		natural:    cfg.Images.NaturalOrder,
	}
}

// NewFromFile loads and validates a JSON configuration file
func NewFromFile(path string) (*Labeller, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return NewFromConfig(cfg), nil
}

// Engine returns the export engine
func (l *Labeller) Engine() *export.Engine {
	return l.engine
}

// OpenSession starts a labelling session over dir. Options given here override
// the Labeller's defaults.
func (l *Labeller) OpenSession(dir string, opts ...session.Option) (*session.Session, error) {
	base := []session.Option{
		session.WithProcessor(l.processor),
		session.WithExporter(l.engine),
		session.WithMinBoxSize(l.minBoxSize),
		session.WithFormats(l.formats),
		session.WithNaturalOrder(l.natural),
	}
	return session.Open(dir, append(base, opts...)...)
}

// ExportLabels writes crops and the label record for the image at imagePath,
// into the layout under the image's directory.
func (l *Labeller) ExportLabels(imagePath string, boxes []types.BoundingBox) types.ExportResult {
	img := types.ImageDescriptor{Path: imagePath, Name: filepath.Base(imagePath)}
	return l.engine.Export(filepath.Dir(imagePath), img, boxes)
}

// ReadLabels reads the label record previously exported for imagePath
func (l *Labeller) ReadLabels(imagePath string) (types.LabelRecord, error) {
	return export.ReadLabelRecord(l.engine.SidecarPath(filepath.Dir(imagePath), filepath.Base(imagePath)))
}

// AssessQuality scores every image in dir for blur and exposure
func (l *Labeller) AssessQuality(dir string) (quality.Summary, error) {
	return l.assessor.AssessDir(dir, l.formats)
}

// AssessImage scores a single image file
func (l *Labeller) AssessImage(path string) (quality.Report, error) {
	return l.assessor.AssessFile(path)
}

// ExtractROI crops region out of every image in dir and writes the results to outDir
func (l *Labeller) ExtractROI(dir, outDir string, region cropper.Region) (cropper.BatchResult, error) {
	return l.cropper.ExtractROI(dir, outDir, region)
}

// ResizeImages resizes every image in dir to width x height into outDir
func (l *Labeller) ResizeImages(dir, outDir string, width, height int) (cropper.BatchResult, error) {
	return l.cropper.ResizeDir(dir, outDir, width, height)
}

// SplitDataset assesses the images in dir, assigns them to train/val/test by
// quality and copies their exported crops into outDir. Images that cannot be
// decoded are left out.
func (l *Labeller) SplitDataset(dir, outDir string) (dataset.Plan, dataset.Result, error) {
	summary, err := l.AssessQuality(dir)
	if err != nil {
		return dataset.Plan{}, dataset.Result{}, err
	}

	plan, err := dataset.PlanSplit(summary.Reports, l.split)
	if err != nil {
		return dataset.Plan{}, dataset.Result{}, err
	}

	result, err := l.splitter.Apply(dir, outDir, plan)
	return plan, result, err
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
