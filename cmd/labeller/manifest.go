package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/menta2k/labeller/pkg/session"
	"github.com/menta2k/labeller/pkg/types"
)

// Default viewport when the manifest doesn't give one
const (
	defaultViewportWidth  = 1920
	defaultViewportHeight = 1080
)

// Manifest records pointer drags per image, in viewport coordinates, so a
// labelling session can be replayed without a display.
type Manifest struct {
	Viewport Viewport              `json:"viewport"`
	Images   map[string]ImageDrags `json:"images"`
}

// Viewport is the display area the drags were recorded in
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImageDrags lists the drags made on one image
type ImageDrags struct {
	Drags []Drag `json:"drags"`
}

// Drag is one pointer-down, pointer-up gesture. Side selects the side before
// the drag; empty keeps the current selection.
type Drag struct {
	Side string      `json:"side,omitempty"`
	From types.Point `json:"from"`
	To   types.Point `json:"to"`
}

// LoadManifest reads a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if m.Viewport.Width == 0 && m.Viewport.Height == 0 {
		m.Viewport = Viewport{Width: defaultViewportWidth, Height: defaultViewportHeight}
	}
	if m.Viewport.Width <= 0 || m.Viewport.Height <= 0 {
		return nil, fmt.Errorf("invalid manifest viewport %vx%v", m.Viewport.Width, m.Viewport.Height)
	}

	for name, img := range m.Images {
		for i, d := range img.Drags {
			if d.Side == "" {
				continue
			}
			if _, err := types.ParseSide(d.Side); err != nil {
				return nil, fmt.Errorf("%s drag %d: %w", name, i+1, err)
			}
		}
	}

	return &m, nil
}

// Replay feeds the drags to the session as pointer input and returns how many
// produced a box.
func Replay(s *session.Session, drags []Drag) (int, error) {
	committed := 0
	for _, d := range drags {
		if d.Side != "" {
			if err := s.SetSide(types.Side(d.Side)); err != nil {
				return committed, err
			}
		}
		s.PointerDown(d.From)
		s.PointerMove(d.To)
		if _, ok := s.PointerUp(d.To); ok {
			committed++
		}
	}
	return committed, nil
}
