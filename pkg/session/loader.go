package session

import (
	"errors"
	"io/fs"
	"log"

	"github.com/menta2k/labeller/pkg/export"
	"github.com/menta2k/labeller/pkg/types"
)

// LabelLoader supplies boxes for an image when it is shown
type LabelLoader interface {
	Load(dir string, img types.ImageDescriptor) ([]types.BoundingBox, error)
}

// NopLoader starts every image with no boxes
type NopLoader struct{}

// Load returns no boxes
func (NopLoader) Load(string, types.ImageDescriptor) ([]types.BoundingBox, error) {
	return nil, nil
}

// SidecarLoader reloads the boxes from a previously exported label record.
// A missing sidecar is not an error.
type SidecarLoader struct {
	Engine *export.Engine
}

// Load reads the image's sidecar, if there is one. Boxes with an unknown side
// are skipped.
func (l SidecarLoader) Load(dir string, img types.ImageDescriptor) ([]types.BoundingBox, error) {
	engine := l.Engine
	if engine == nil {
		engine = export.New()
	}

	record, err := export.ReadLabelRecord(engine.SidecarPath(dir, img.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	boxes := make([]types.BoundingBox, 0, len(record.BoundingBoxes))
	for i, pb := range record.BoundingBoxes {
		if _, err := types.ParseSide(string(pb.Side)); err != nil {
			log.Printf("%s: skipping stored box %d: %v", img.Name, i+1, err)
			continue
		}
		boxes = append(boxes, pb.BoundingBox)
	}
	return boxes, nil
}
