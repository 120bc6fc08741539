package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/labeller"
	"github.com/menta2k/labeller/internal/config"
	"github.com/menta2k/labeller/internal/utils"
	"github.com/menta2k/labeller/pkg/client"
	"github.com/menta2k/labeller/pkg/cropper"
	"github.com/menta2k/labeller/pkg/dataset"
	"github.com/menta2k/labeller/pkg/detection"
	"github.com/menta2k/labeller/pkg/llamacpp"
	"github.com/menta2k/labeller/pkg/ollama"
	"github.com/menta2k/labeller/pkg/processing"
	"github.com/menta2k/labeller/pkg/session"
	"github.com/menta2k/labeller/pkg/types"
	"github.com/menta2k/labeller/pkg/vision"
)

// runOptions controls one pass over the directory
type runOptions struct {
	manifest   *Manifest
	side       types.Side
	preview    bool
	previewDir string
	previewExt string
	suggester  session.Suggester
	model      string
}

// runStats counts what a pass did
type runStats struct {
	images  int
	saved   int
	skipped int
	failed  int
	boxes   int
}

func main() {
	var dir, configPath, manifestPath, sideName, previewFmt, inspect string
	var backend, url, model string
	var outDir, roi, resize, outFmt string
	var preview, qualityReport, suggest, split, testVision bool

	flag.StringVar(&dir, "dir", "", "directory of images to label")
	flag.StringVar(&configPath, "config", "", "JSON config file (default "+config.GetConfigPath()+" if present)")
	flag.StringVar(&manifestPath, "manifest", "", "JSON manifest of pointer drags to replay")
	flag.StringVar(&sideName, "side", "front", "initial side: front|back")
	flag.BoolVar(&preview, "preview", false, "write an overlay image with the numbered boxes for each labelled image")
	flag.StringVar(&previewFmt, "previewfmt", "", "preview format: png|jpg|webp (default from config)")
	flag.BoolVar(&qualityReport, "quality", false, "print a blur/brightness report for the directory as JSON")
	flag.StringVar(&inspect, "inspect", "", "print the label record of an image in -dir")

	flag.BoolVar(&suggest, "suggest", false, "ask a vision model (or the local region detector) for card boxes")
	flag.StringVar(&backend, "backend", "", "vision backend: ollama|llamacpp|local (default from config)")
	flag.StringVar(&url, "url", "", "vision server URL (default from config)")
	flag.StringVar(&model, "model", "", "vision model name (default from config)")
	flag.BoolVar(&testVision, "testvision", false, "ask the vision model to describe the first image, to check it can see images")

	flag.BoolVar(&split, "split", false, "copy exported crops into train/val/test sets stratified by image quality")
	flag.StringVar(&roi, "roi", "", "crop the region x,y,width,height out of every image")
	flag.StringVar(&resize, "resize", "", "resize every image to WIDTHxHEIGHT (e.g. 300x300)")
	flag.StringVar(&outDir, "out", "", "output directory for -split, -roi and -resize (default <dir>_dataset, <dir>_roi, <dir>_resized)")
	flag.StringVar(&outFmt, "outfmt", "", "output format for -roi and -resize: png|jpg|webp|gif|bmp (default keeps each file's)")

	flag.Parse()
	if dir == "" {
		log.Fatalf("usage: %s -dir images/ [-manifest drags.json] [-suggest] [-preview] [-quality] [-inspect name] [-split] [-roi x,y,w,h] [-resize WxH]", filepath.Base(os.Args[0]))
	}
	if !utils.DirExists(dir) {
		log.Fatalf("directory %s does not exist", dir)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if previewFmt != "" {
		cfg.Output.PreviewFormat = previewFmt
	}
	if backend != "" {
		cfg.Vision.Backend = backend
		if url == "" && backend == "llamacpp" && cfg.Vision.URL == config.Default().Vision.URL {
			cfg.Vision.URL = llamacpp.DefaultURL
		}
	}
	if url != "" {
		cfg.Vision.URL = url
	}
	if model != "" {
		cfg.Vision.Model = model
	}
	if outFmt != "" {
		cfg.Batch.OutputFormat = outFmt
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	l := labeller.NewFromConfig(cfg)

	switch {
	case qualityReport:
		summary, err := l.AssessQuality(dir)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("total images: %d, good: %d, poor: %d, average resolution: %.0fx%.0f",
			summary.Total, summary.Good, summary.Poor, summary.AverageWidth, summary.AverageHeight)
		if err := printJSON(os.Stdout, summary); err != nil {
			log.Fatal(err)
		}
		return

	case inspect != "":
		record, err := l.ReadLabels(filepath.Join(dir, inspect))
		if err != nil {
			log.Fatal(err)
		}
		if err := printJSON(os.Stdout, record); err != nil {
			log.Fatal(err)
		}
		return

	case split:
		plan, result, err := l.SplitDataset(dir, outputDir(outDir, dir, "_dataset"))
		if err != nil {
			log.Fatal(err)
		}
		for _, s := range dataset.Splits {
			log.Printf("%s: %d images, %d crops", s, result.Images[s], result.Crops[s])
		}
		if len(plan.Excluded) > 0 {
			log.Printf("excluded %d poor quality images", len(plan.Excluded))
		}
		if len(result.Unlabelled) > 0 {
			log.Printf("%d images have no label record: %s", len(result.Unlabelled), strings.Join(result.Unlabelled, ", "))
		}
		return

	case roi != "":
		region, err := cropper.ParseRegion(roi)
		if err != nil {
			log.Fatal(err)
		}
		result, err := l.ExtractROI(dir, outputDir(outDir, dir, "_roi"), region)
		exitBatch(result, err)
		return

	case resize != "":
		width, height, err := cropper.ParseSize(resize)
		if err != nil {
			log.Fatal(err)
		}
		result, err := l.ResizeImages(dir, outputDir(outDir, dir, "_resized"), width, height)
		exitBatch(result, err)
		return

	case testVision:
		visionClient, err := newVisionClient(cfg.Vision.Backend, cfg.Vision.URL)
		if err != nil {
			log.Fatal(err)
		}
		reply, err := checkVision(context.Background(), detection.NewDetector(visionClient), dir, cfg)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(reply)
		return
	}

	side, err := types.ParseSide(sideName)
	if err != nil {
		log.Fatal(err)
	}

	opts := runOptions{
		side:       side,
		preview:    preview,
		previewDir: filepath.Join(dir, cfg.Output.LabelsDir, "preview"),
		previewExt: strings.ToLower(cfg.Output.PreviewFormat),
		model:      cfg.Vision.Model,
	}
	if manifestPath != "" {
		if opts.manifest, err = LoadManifest(manifestPath); err != nil {
			log.Fatal(err)
		}
	}
	if suggest {
		if opts.suggester, err = newSuggester(cfg.Vision); err != nil {
			log.Fatal(err)
		}
	}
	if opts.manifest == nil && opts.suggester == nil {
		log.Fatal("nothing to do: give -manifest and/or -suggest, or use -quality, -inspect, -split, -roi, -resize or -testvision")
	}

	s, err := l.OpenSession(dir,
		session.WithSide(side),
		session.WithModelImage(cfg.Vision.SendFormat, cfg.Vision.SendSize, cfg.Vision.SendQuality),
	)
	if err != nil {
		log.Fatal(err)
	}

	stats := run(context.Background(), s, opts)
	log.Printf("images: %d, saved: %d, skipped: %d, failed: %d, boxes: %d",
		stats.images, stats.saved, stats.skipped, stats.failed, stats.boxes)
	if stats.failed > 0 {
		os.Exit(1)
	}
}

// run labels every image of the session in order
func run(ctx context.Context, s *session.Session, opts runOptions) runStats {
	var stats runStats

	vw, vh := float64(defaultViewportWidth), float64(defaultViewportHeight)
	if opts.manifest != nil {
		vw, vh = opts.manifest.Viewport.Width, opts.manifest.Viewport.Height
	}

	s.On(session.EventSaved, logSaved)

	images := s.Images()
	if opts.manifest != nil {
		known := map[string]bool{}
		for _, img := range images {
			known[img.Name] = true
		}
		for name := range opts.manifest.Images {
			if !known[name] {
				log.Printf("manifest entry %s matches no image in %s", name, s.Dir())
			}
		}
	}

	for i, img := range images {
		stats.images++
		if err := s.Show(i, vw, vh); err != nil {
			log.Printf("%s: %v", img.Name, err)
			stats.failed++
			continue
		}
		// Each image starts from the requested side
		if err := s.SetSide(opts.side); err != nil {
			log.Printf("%s: %v", img.Name, err)
		}

		if opts.manifest != nil {
			drags := opts.manifest.Images[img.Name].Drags
			n, err := Replay(s, drags)
			if err != nil {
				log.Printf("%s: %v", img.Name, err)
			}
			if n < len(drags) {
				log.Printf("%s: %d of %d drags were too small and discarded", img.Name, len(drags)-n, len(drags))
			}
		}

		if opts.suggester != nil {
			added, err := s.Suggest(ctx, opts.suggester, opts.model)
			if err != nil {
				log.Printf("%s: %v", img.Name, err)
			} else {
				log.Printf("%s: model suggested %d boxes", img.Name, added)
			}
		}

		boxes := s.Boxes()
		if len(boxes) == 0 {
			stats.skipped++
			continue
		}

		if opts.preview {
			previewPath := filepath.Join(opts.previewDir, previewName(img.Name, opts.previewExt))
			if err := utils.EnsureDir(filepath.Dir(previewPath)); err != nil {
				log.Printf("%s: %v", img.Name, err)
			} else if err := s.Preview(previewPath); err != nil {
				log.Printf("%s: %v", img.Name, err)
			} else {
				log.Printf("wrote %s", previewPath)
			}
		}

		result, err := s.Save()
		if err != nil {
			log.Printf("%s: %v", img.Name, err)
			stats.failed++
			continue
		}
		if !result.Success {
			log.Printf("%s: export failed: %s", img.Name, result.Error)
			stats.failed++
			continue
		}
		stats.saved++
		stats.boxes += len(boxes)
	}

	return stats
}

// checkVision sends the first image of dir to the model with a describe prompt
func checkVision(ctx context.Context, d *detection.Detector, dir string, cfg *config.Config) (string, error) {
	images, err := utils.ListImages(dir, cfg.Images.SupportedFormats, cfg.Images.NaturalOrder)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", fmt.Errorf("no images in %s", dir)
	}

	p := processing.NewProcessor()
	img, err := p.LoadImage(images[0].Path)
	if err != nil {
		return "", err
	}
	encoded, err := p.PrepareImageForModel(img, cfg.Vision.SendFormat, cfg.Vision.SendSize, cfg.Vision.SendQuality)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", images[0].Name, err)
	}

	log.Printf("asking %s about %s", cfg.Vision.Model, images[0].Name)
	return d.TestVision(ctx, cfg.Vision.Model, encoded)
}

// outputDir returns out, or a sibling of dir named with suffix
func outputDir(out, dir, suffix string) string {
	if out != "" {
		return out
	}
	return filepath.Clean(dir) + suffix
}

func exitBatch(result cropper.BatchResult, err error) {
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("processed: %d, failed: %d", len(result.Processed), len(result.Failed))
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}

func logSaved(data interface{}) {
	result, ok := data.(types.ExportResult)
	if !ok || !result.Success {
		return
	}
	log.Printf("wrote %s (front: %d, back: %d)", result.Path, len(result.SavedImages.Front), len(result.SavedImages.Back))
}

func previewName(imageName, ext string) string {
	base, _ := utils.SplitName(imageName)
	return fmt.Sprintf("%s_preview.%s", base, ext)
}

// loadConfig reads the given file, else the default config file if present,
// else the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if def := config.GetConfigPath(); utils.FileExists(def) {
		return config.LoadFromFile(def)
	}
	return config.Default(), nil
}

// newSuggester picks the box source for -suggest
func newSuggester(cfg config.VisionConfig) (session.Suggester, error) {
	if cfg.Backend == "local" {
		return vision.New(), nil
	}
	visionClient, err := newVisionClient(cfg.Backend, cfg.URL)
	if err != nil {
		return nil, err
	}
	return detection.NewDetector(visionClient, detection.WithMinConfidence(cfg.MinConfidence)), nil
}

func newVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", backend)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
