package detection

import (
	"context"
	"sort"

	"github.com/menta2k/labeller/pkg/client"
	"github.com/menta2k/labeller/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model to locate card faces
const DefaultPrompt = `You are a card locator for a labelling tool.

The image shows one or more physical cards (trading cards, ID cards, playing cards,
business cards). Each visible card face is either the FRONT (artwork, portrait, name)
or the BACK (repeated pattern, text block, barcode, logo).

Return JSON only:
{
  "cards": [
    {"side": "front", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), origin at the top-left corner.
- "x","y" is the top-left corner of the box; "w","h" its width and height.
- Each box should tightly enclose one card face.
- "side" is exactly "front" or "back".
- If no card is visible, return {"cards": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// DefaultMinConfidence drops proposals the model is unsure about
const DefaultMinConfidence = 0.3

// Detector proposes card bounding boxes using a vision model
type Detector struct {
	client        client.VisionClient
	prompt        string
	minConfidence float64
}

// Option configures a Detector
type Option func(*Detector)

// WithPrompt replaces the default locator prompt
func WithPrompt(prompt string) Option {
	return func(d *Detector) { d.prompt = prompt }
}

// WithMinConfidence sets the confidence below which proposals are dropped
func WithMinConfidence(c float64) Option {
	return func(d *Detector) { d.minConfidence = c }
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient, opts ...Option) *Detector {
	d := &Detector{client: client, prompt: DefaultPrompt, minConfidence: DefaultMinConfidence}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SuggestBoxes returns normalized card boxes for the image, most confident first.
// Boxes that are empty after clamping to the image, or below the minimum
// confidence, are dropped.
func (d *Detector) SuggestBoxes(ctx context.Context, model, imageB64 string) ([]types.Suggestion, error) {
	raw, err := d.client.LocateCards(ctx, model, d.prompt, imageB64)
	if err != nil {
		return nil, err
	}

	out := make([]types.Suggestion, 0, len(raw))
	for _, s := range raw {
		if s.Confidence < d.minConfidence {
			continue
		}
		box, ok := normalizeBox(s.Box)
		if !ok {
			continue
		}
		s.Box = box
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox clips a model box to the unit square. Negative sizes are
// flipped. Percent values (anything above 1) are scaled down by 100.
func normalizeBox(b types.BoundingBox) (types.BoundingBox, bool) {
	if b.X > 1 || b.Y > 1 || b.Width > 1 || b.Height > 1 {
		b.X, b.Y, b.Width, b.Height = b.X/100, b.Y/100, b.Width/100, b.Height/100
	}
	if b.Width < 0 {
		b.X, b.Width = b.X+b.Width, -b.Width
	}
	if b.Height < 0 {
		b.Y, b.Height = b.Y+b.Height, -b.Height
	}

	x0 := clamp(b.X, 0, 1)
	y0 := clamp(b.Y, 0, 1)
	x1 := clamp(b.X+b.Width, 0, 1)
	y1 := clamp(b.Y+b.Height, 0, 1)
	if x1-x0 <= 0 || y1-y0 <= 0 {
		return types.BoundingBox{}, false
	}

	return types.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0, Side: b.Side}, true
}
