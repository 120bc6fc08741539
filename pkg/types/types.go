package types

import "fmt"

// Side classifies a bounding box as the front or back of the labelled object.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Sides lists the side classifications in output order.
var Sides = []Side{SideFront, SideBack}

// ParseSide converts a string into a Side
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideFront, SideBack:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown side %q (use front or back)", s)
}

// Other returns the opposite side
func (s Side) Other() Side {
	if s == SideBack {
		return SideFront
	}
	return SideBack
}

// Point is a 2D position, either in screen space or normalized image space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ImageDescriptor identifies an image and its natural pixel dimensions.
// Width and Height are zero until the image has been decoded.
type ImageDescriptor struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Dimensions returns the natural size of the image
func (d ImageDescriptor) Dimensions() ImageDimensions {
	return ImageDimensions{Width: d.Width, Height: d.Height}
}

// ImageDimensions is an image size in pixels
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoundingBox represents a normalized bounding box with coordinates in [0,1] range
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Side   Side    `json:"side"`
}

// PixelBox is a bounding box together with its pixel rectangle in the source image
type PixelBox struct {
	BoundingBox
	PixelX      int `json:"pixelX"`
	PixelY      int `json:"pixelY"`
	PixelWidth  int `json:"pixelWidth"`
	PixelHeight int `json:"pixelHeight"`
}

// LabelRecord is the sidecar document written for every exported image
type LabelRecord struct {
	Filename        string          `json:"filename"`
	ImageDimensions ImageDimensions `json:"imageDimensions"`
	BoundingBoxes   []PixelBox      `json:"boundingBoxes"`
}

// SavedImages lists the crop files written per side
type SavedImages struct {
	Front []string `json:"front"`
	Back  []string `json:"back"`
}

// Add records a saved crop under its side
func (s *SavedImages) Add(side Side, name string) {
	if side == SideBack {
		s.Back = append(s.Back, name)
		return
	}
	s.Front = append(s.Front, name)
}

// ExportResult reports the outcome of an export to the caller
type ExportResult struct {
	Success     bool         `json:"success"`
	Path        string       `json:"path,omitempty"`
	SavedImages *SavedImages `json:"savedImages,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Suggestion is a box proposed by a vision model
type Suggestion struct {
	Box        BoundingBox `json:"box"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
}
