// Package dataset splits labelled images into train, validation and test sets.
//
// Images are grouped by their quality report. Each group is shuffled with a
// fixed seed and cut by its own ratios, so poor scans can be pushed towards the
// evaluation sets. The exported crops of every image are then copied into
// <out>/<split>/front and <out>/<split>/back.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/menta2k/labeller/internal/utils"
	"github.com/menta2k/labeller/pkg/export"
	"github.com/menta2k/labeller/pkg/quality"
	"github.com/menta2k/labeller/pkg/types"
)

// Split names one of the output sets
type Split string

const (
	Train Split = "train"
	Val   Split = "val"
	Test  Split = "test"
)

// Splits lists the sets in output order
var Splits = []Split{Train, Val, Test}

// Ratios are the fractions of a group assigned to each set. Train and Val are
// rounded down; Test takes the remainder.
type Ratios struct {
	Train float64
	Val   float64
	Test  float64
}

func (r Ratios) validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return fmt.Errorf("split ratios cannot be negative: %+v", r)
	}
	if math.Abs(r.Train+r.Val+r.Test-1) > 1e-6 {
		return fmt.Errorf("split ratios must sum to 1: %+v", r)
	}
	return nil
}

// Config holds configuration for splitting
type Config struct {
	Seed        int64
	Good        Ratios
	Poor        Ratios
	ExcludePoor bool // leave poor images out entirely
}

// DefaultConfig keeps 70/15/15 for good images and sends most poor images to
// the test set.
func DefaultConfig() Config {
	return Config{
		Seed: 42,
		Good: Ratios{Train: 0.7, Val: 0.15, Test: 0.15},
		Poor: Ratios{Train: 0.2, Val: 0.1, Test: 0.7},
	}
}

// Plan assigns image names to sets
type Plan struct {
	Sets     map[Split][]string `json:"sets"`
	Excluded []string           `json:"excluded,omitempty"`
}

// Result counts what Apply copied
type Result struct {
	Images     map[Split]int `json:"images"`
	Crops      map[Split]int `json:"crops"`
	Unlabelled []string      `json:"unlabelled,omitempty"`
}

// PlanSplit assigns every assessed image to a set. The plan only depends on
// the report filenames, their quality and the seed.
func PlanSplit(reports []quality.Report, config Config) (Plan, error) {
	if err := config.Good.validate(); err != nil {
		return Plan{}, err
	}
	if err := config.Poor.validate(); err != nil {
		return Plan{}, err
	}

	var good, poor []string
	for _, r := range reports {
		if r.Good {
			good = append(good, r.Filename)
		} else {
			poor = append(poor, r.Filename)
		}
	}

	plan := Plan{Sets: map[Split][]string{Train: {}, Val: {}, Test: {}}}
	assign(plan.Sets, good, config.Good, config.Seed)
	if config.ExcludePoor {
		sort.Strings(poor)
		plan.Excluded = poor
	} else {
		assign(plan.Sets, poor, config.Poor, config.Seed)
	}
	return plan, nil
}

func assign(sets map[Split][]string, names []string, ratios Ratios, seed int64) {
	shuffled := append([]string(nil), names...)
	sort.Strings(shuffled)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := len(shuffled)
	trainEnd := int(float64(n) * ratios.Train)
	valEnd := trainEnd + int(float64(n)*ratios.Val)
	if valEnd > n {
		valEnd = n
	}

	sets[Train] = append(sets[Train], shuffled[:trainEnd]...)
	sets[Val] = append(sets[Val], shuffled[trainEnd:valEnd]...)
	sets[Test] = append(sets[Test], shuffled[valEnd:]...)
}

// Splitter copies exported crops into a split layout
type Splitter struct {
	engine *export.Engine
}

// New creates a Splitter reading the layout written by engine
func New(engine *export.Engine) *Splitter {
	if engine == nil {
		engine = export.New()
	}
	return &Splitter{engine: engine}
}

// Apply copies the crops of every planned image from dir into outDir. Images
// without a label record are reported as unlabelled. Crops that failed to
// export are skipped.
func (s *Splitter) Apply(dir, outDir string, plan Plan) (Result, error) {
	result := Result{Images: map[Split]int{}, Crops: map[Split]int{}}

	if !utils.DirExists(dir) {
		return result, fmt.Errorf("image directory %s does not exist", dir)
	}

	for _, split := range Splits {
		for _, side := range types.Sides {
			if err := utils.EnsureDir(filepath.Join(outDir, string(split), string(side))); err != nil {
				return result, fmt.Errorf("failed to create %s/%s directory: %w", split, side, err)
			}
		}
	}

	for _, split := range Splits {
		for _, name := range plan.Sets[split] {
			record, err := export.ReadLabelRecord(s.engine.SidecarPath(dir, name))
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					log.Printf("%s: %v", name, err)
				}
				result.Unlabelled = append(result.Unlabelled, name)
				continue
			}

			copied, err := s.copyCrops(dir, filepath.Join(outDir, string(split)), name, record)
			if err != nil {
				return result, err
			}
			result.Images[split]++
			result.Crops[split] += copied
		}
	}

	return result, nil
}

// copyCrops copies the crops numbered from record, per side in box order
func (s *Splitter) copyCrops(dir, splitDir, name string, record types.LabelRecord) (int, error) {
	perSide := map[types.Side]int{}
	copied := 0

	for _, b := range record.BoundingBoxes {
		side := b.Side
		if side != types.SideBack {
			side = types.SideFront
		}
		perSide[side]++

		crop := export.CropFilename(name, side, perSide[side])
		src := filepath.Join(s.engine.SideDir(dir, side), crop)
		if !utils.FileExists(src) {
			continue
		}
		if err := copyFile(src, filepath.Join(splitDir, string(side), crop)); err != nil {
			return copied, fmt.Errorf("failed to copy %s: %w", crop, err)
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
