package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/labeller/pkg/types"
)

// ErrNoJSON is returned when a model reply contains no JSON object
var ErrNoJSON = errors.New("no JSON object in model response")

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// wireBox is the box shape models are asked to return
type wireBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type wireCard struct {
	Side       string  `json:"side"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        wireBox `json:"box"`
}

type wireReply struct {
	Cards []wireCard `json:"cards"`
}

// ParseSuggestions extracts card boxes from a model reply of the form
// {"cards":[{"side":"front","confidence":0.9,"box":{"x":..,"y":..,"w":..,"h":..}}]}.
// Boxes are returned as the model wrote them; callers normalize and filter.
func ParseSuggestions(raw string) ([]types.Suggestion, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, ErrNoJSON
	}

	var reply wireReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	suggestions := make([]types.Suggestion, 0, len(reply.Cards))
	for _, c := range reply.Cards {
		label := strings.ToLower(strings.TrimSpace(c.Side))
		if label == "" {
			label = strings.ToLower(strings.TrimSpace(c.Label))
		}
		side, err := types.ParseSide(label)
		if err != nil {
			side = types.SideFront
		}
		suggestions = append(suggestions, types.Suggestion{
			Box: types.BoundingBox{
				X:      c.Box.X,
				Y:      c.Box.Y,
				Width:  c.Box.W,
				Height: c.Box.H,
				Side:   side,
			},
			Label:      label,
			Confidence: c.Confidence,
		})
	}
	return suggestions, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ImageMIMEType guesses the media type of a base64 image from its magic bytes
func ImageMIMEType(imgB64 string) string {
	switch {
	case strings.HasPrefix(imgB64, "iVBORw0KGgo"):
		return "image/png"
	case strings.HasPrefix(imgB64, "UklGR"):
		return "image/webp"
	case strings.HasPrefix(imgB64, "R0lGOD"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
