package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the application configuration
type Config struct {
	Annotation AnnotationConfig `json:"annotation"`
	Images     ImagesConfig     `json:"images"`
	Output     OutputConfig     `json:"output"`
	Quality    QualityConfig    `json:"quality"`
	Vision     VisionConfig     `json:"vision"`
	Dataset    DatasetConfig    `json:"dataset"`
	Batch      BatchConfig      `json:"batch"`
}

// AnnotationConfig holds drawing settings
type AnnotationConfig struct {
	MinBoxSize float64 `json:"min_box_size"` // screen pixels, both axes
}

// ImagesConfig controls which files are offered for labelling
type ImagesConfig struct {
	SupportedFormats []string `json:"supported_formats"`
	NaturalOrder     bool     `json:"natural_order"`
}

// OutputConfig holds the export layout and encoder settings
type OutputConfig struct {
	LabelsDir      string `json:"labels_dir"`
	FrontDir       string `json:"front_dir"`
	BackDir        string `json:"back_dir"`
	JPEGQuality    int    `json:"jpeg_quality"`
	WebPQuality    int    `json:"webp_quality"`
	WebPLossless   bool   `json:"webp_lossless"`
	PreviewFormat  string `json:"preview_format"`
	MaxConcurrency int    `json:"max_concurrency"`
}

// QualityConfig holds thresholds for the image quality report
type QualityConfig struct {
	MinBlurScore  float64 `json:"min_blur_score"`
	MinBrightness float64 `json:"min_brightness"`
	MaxBrightness float64 `json:"max_brightness"`
}

// VisionConfig holds settings for model-suggested boxes
type VisionConfig struct {
	Backend       string  `json:"backend"` // ollama, llamacpp or local
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	SendFormat    string  `json:"send_format"`
	SendSize      int     `json:"send_size"`
	SendQuality   int     `json:"send_quality"`
	MinConfidence float64 `json:"min_confidence"`
}

// SplitRatios are the train/val/test fractions for one quality group
type SplitRatios struct {
	Train float64 `json:"train"`
	Val   float64 `json:"val"`
	Test  float64 `json:"test"`
}

// DatasetConfig holds settings for the train/val/test split
type DatasetConfig struct {
	Seed        int64       `json:"seed"`
	Good        SplitRatios `json:"good"`
	Poor        SplitRatios `json:"poor"`
	ExcludePoor bool        `json:"exclude_poor"`
}

// BatchConfig holds settings for directory-wide crop and resize
type BatchConfig struct {
	OutputFormat string `json:"output_format"` // empty keeps each file's format
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Annotation: AnnotationConfig{
			MinBoxSize: 5,
		},
		Images: ImagesConfig{
			SupportedFormats: []string{"jpg", "jpeg", "png", "gif", "bmp"},
			NaturalOrder:     false,
		},
		Output: OutputConfig{
			LabelsDir:      "labels",
			FrontDir:       filepath.Join("labels", "front"),
			BackDir:        filepath.Join("labels", "back"),
			JPEGQuality:    95,
			WebPQuality:    90,
			WebPLossless:   false,
			PreviewFormat:  "png",
			MaxConcurrency: 0,
		},
		Quality: QualityConfig{
			MinBlurScore:  100,
			MinBrightness: 50,
			MaxBrightness: 200,
		},
		Vision: VisionConfig{
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			Model:         "qwen2.5vl:7b",
			SendFormat:    "jpg",
			SendSize:      1024,
			SendQuality:   85,
			MinConfidence: 0.3,
		},
		Dataset: DatasetConfig{
			Seed: 42,
			Good: SplitRatios{Train: 0.7, Val: 0.15, Test: 0.15},
			Poor: SplitRatios{Train: 0.2, Val: 0.1, Test: 0.7},
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Sections missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Annotation.MinBoxSize <= 0 {
		return fmt.Errorf("annotation.min_box_size must be positive")
	}

	if len(c.Images.SupportedFormats) == 0 {
		return fmt.Errorf("images.supported_formats cannot be empty")
	}

	if c.Output.LabelsDir == "" || c.Output.FrontDir == "" || c.Output.BackDir == "" {
		return fmt.Errorf("output directories cannot be empty")
	}
	if filepath.Clean(c.Output.FrontDir) == filepath.Clean(c.Output.BackDir) {
		return fmt.Errorf("output.front_dir and output.back_dir must differ")
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}

	if c.Output.WebPQuality < 0 || c.Output.WebPQuality > 100 {
		return fmt.Errorf("output.webp_quality must be between 0 and 100")
	}

	switch strings.ToLower(c.Output.PreviewFormat) {
	case "png", "jpg", "jpeg", "webp", "gif", "bmp":
	default:
		return fmt.Errorf("output.preview_format %q is not supported", c.Output.PreviewFormat)
	}

	if c.Output.MaxConcurrency < 0 {
		return fmt.Errorf("output.max_concurrency cannot be negative")
	}

	if c.Quality.MinBrightness < 0 || c.Quality.MaxBrightness > 255 || c.Quality.MinBrightness >= c.Quality.MaxBrightness {
		return fmt.Errorf("quality brightness range must satisfy 0 <= min < max <= 255")
	}

	switch c.Vision.Backend {
	case "ollama", "llamacpp", "local":
	default:
		return fmt.Errorf("vision.backend must be ollama, llamacpp or local")
	}

	if c.Vision.SendSize < 0 {
		return fmt.Errorf("vision.send_size cannot be negative")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision.min_confidence must be between 0 and 1")
	}

	for name, r := range map[string]SplitRatios{"good": c.Dataset.Good, "poor": c.Dataset.Poor} {
		if r.Train < 0 || r.Val < 0 || r.Test < 0 || math.Abs(r.Train+r.Val+r.Test-1) > 1e-6 {
			return fmt.Errorf("dataset.%s ratios must be non-negative and sum to 1", name)
		}
	}

	switch strings.ToLower(c.Batch.OutputFormat) {
	case "", "png", "jpg", "jpeg", "webp", "gif", "bmp":
	default:
		return fmt.Errorf("batch.output_format %q is not supported", c.Batch.OutputFormat)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "labeller", "config.json")
}
