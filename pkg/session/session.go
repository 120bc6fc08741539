// Package session holds the state of one labelling session over a directory:
// the image list, the shown image and its viewport mapping, the annotation
// store and the active side. An embedding UI forwards pointer input to it and
// listens for events to redraw.
//
// All methods are safe for concurrent use. Events are emitted after the
// session lock is released, so listeners may call back into the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/menta2k/labeller/internal/utils"
	"github.com/menta2k/labeller/pkg/annotation"
	"github.com/menta2k/labeller/pkg/export"
	"github.com/menta2k/labeller/pkg/processing"
	"github.com/menta2k/labeller/pkg/types"
	"github.com/menta2k/labeller/pkg/viewport"
)

var (
	// ErrNoDirectory is returned by Open when no directory is given
	ErrNoDirectory = errors.New("no directory selected")
	// ErrNoImages is returned when the directory has no images to show
	ErrNoImages = errors.New("no images in directory")
	// ErrNoImage is returned by operations that need a shown image
	ErrNoImage = errors.New("no image selected")
	// ErrNoBoxes is returned by Save when there is nothing to export
	ErrNoBoxes = errors.New("no bounding boxes to save")
)

// Exporter writes crops and the label record for one image
type Exporter interface {
	Export(dir string, img types.ImageDescriptor, boxes []types.BoundingBox) types.ExportResult
}

// Suggester proposes boxes for a base64-encoded image
type Suggester interface {
	SuggestBoxes(ctx context.Context, model, imageB64 string) ([]types.Suggestion, error)
}

// Session is the controller for one open directory
type Session struct {
	mu     sync.RWMutex
	saveMu sync.Mutex

	dir     string
	images  []types.ImageDescriptor
	index   int
	current types.ImageDescriptor
	vw, vh  float64
	store   *annotation.Store
	side    types.Side

	processor  *processing.Processor
	exporter   Exporter
	loader     LabelLoader
	minBoxSize float64
	natural    bool
	formats    []string

	modelFormat  string
	modelMaxDim  int
	modelQuality int

	lmu       sync.RWMutex
	listeners map[EventType][]Listener
}

// Option configures a Session
type Option func(*Session)

// WithProcessor sets the image processor used for decoding and previews
func WithProcessor(p *processing.Processor) Option {
	return func(s *Session) { s.processor = p }
}

// WithExporter replaces the default export engine
func WithExporter(e Exporter) Option {
	return func(s *Session) { s.exporter = e }
}

// WithLabelLoader sets the hook that supplies boxes when an image is shown
func WithLabelLoader(l LabelLoader) Option {
	return func(s *Session) { s.loader = l }
}

// WithMinBoxSize sets the minimum drag size in screen pixels
func WithMinBoxSize(size float64) Option {
	return func(s *Session) { s.minBoxSize = size }
}

// WithNaturalOrder sorts images so that "img2" comes before "img10"
func WithNaturalOrder(natural bool) Option {
	return func(s *Session) { s.natural = natural }
}

// WithFormats restricts the image extensions offered
func WithFormats(formats []string) Option {
	return func(s *Session) { s.formats = formats }
}

// WithSide sets the initially selected side
func WithSide(side types.Side) Option {
	return func(s *Session) { s.side = side }
}

// WithModelImage sets how images are encoded for vision models
func WithModelImage(format string, maxDim, quality int) Option {
	return func(s *Session) {
		s.modelFormat = format
		s.modelMaxDim = maxDim
		s.modelQuality = quality
	}
}

// Open starts a session over the images directly inside dir. No image is shown
// until Show is called.
func Open(dir string, opts ...Option) (*Session, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}

	s := &Session{
		dir:          dir,
		index:        -1,
		side:         types.SideFront,
		loader:       NopLoader{},
		minBoxSize:   annotation.DefaultMinBoxSize,
		modelFormat:  "jpg",
		modelMaxDim:  1024,
		modelQuality: 85,
		listeners:    make(map[EventType][]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.processor == nil {
		s.processor = processing.NewProcessor()
	}
	if s.exporter == nil {
		s.exporter = export.NewWithConfig(export.DefaultConfig(), s.processor)
	}
	if _, err := types.ParseSide(string(s.side)); err != nil {
		return nil, err
	}

	images, err := utils.ListImages(dir, s.formats, s.natural)
	if err != nil {
		return nil, err
	}
	s.images = images

	return s, nil
}

// Dir returns the session's directory
func (s *Session) Dir() string {
	return s.dir
}

// Images returns the image list. Dimensions are only known for images that
// have been shown.
func (s *Session) Images() []types.ImageDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ImageDescriptor, len(s.images))
	copy(out, s.images)
	return out
}

// Index returns the position of the shown image, or -1
func (s *Session) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Current returns the shown image
func (s *Session) Current() (types.ImageDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.index >= 0
}

// Mapping returns the viewport mapping of the shown image
func (s *Session) Mapping() (viewport.Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return viewport.Mapping{}, false
	}
	return s.store.Snapshot().Mapping(), true
}

// Show displays image i in a viewport of vw x vh. The previous image's boxes
// are discarded and the label loader supplies the new image's initial boxes.
func (s *Session) Show(i int, vw, vh float64) error {
	s.mu.Lock()
	if len(s.images) == 0 {
		s.mu.Unlock()
		return ErrNoImages
	}
	if i < 0 || i >= len(s.images) {
		s.mu.Unlock()
		return fmt.Errorf("image %d of %d: %w", i, len(s.images), annotation.ErrIndexOutOfRange)
	}

	img := s.images[i]
	dims, err := s.processor.DecodeDimensions(img.Path)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to load image %s: %w", img.Name, err)
	}
	img.Width, img.Height = dims.Width, dims.Height

	m, err := viewport.Compute(img.Width, img.Height, vw, vh)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	store := annotation.NewStore(m, s.minBoxSize)
	store.SetSide(s.side)

	loaded, err := s.loader.Load(s.dir, img)
	if err != nil {
		log.Printf("failed to load existing labels for %s: %v", img.Name, err)
	}
	for _, b := range loaded {
		if err := store.Add(b); err != nil {
			log.Printf("skipping stored box for %s: %v", img.Name, err)
		}
	}

	s.images[i] = img
	s.index = i
	s.current = img
	s.vw, s.vh = vw, vh
	s.store = store
	boxes := store.List()
	s.mu.Unlock()

	s.Emit(EventImageShown, img)
	if len(boxes) > 0 {
		s.Emit(EventBoxesChanged, boxes)
	}
	return nil
}

// Next shows the following image, staying on the last one at the end.
// It reports whether the image changed.
func (s *Session) Next() (bool, error) {
	return s.step(1)
}

// Prev shows the preceding image, staying on the first one at the start.
func (s *Session) Prev() (bool, error) {
	return s.step(-1)
}

func (s *Session) step(delta int) (bool, error) {
	s.mu.RLock()
	n, i, vw, vh := len(s.images), s.index, s.vw, s.vh
	s.mu.RUnlock()

	if n == 0 {
		return false, ErrNoImages
	}
	if i < 0 {
		return false, ErrNoImage
	}
	next := i + delta
	if next < 0 || next >= n {
		return false, nil
	}
	if err := s.Show(next, vw, vh); err != nil {
		return false, err
	}
	return true, nil
}

// Resize recomputes the mapping for a new viewport size. Committed boxes are
// kept; a box being drawn is dropped.
func (s *Session) Resize(vw, vh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return ErrNoImage
	}

	m, err := viewport.Compute(s.current.Width, s.current.Height, vw, vh)
	if err != nil {
		return err
	}
	s.vw, s.vh = vw, vh
	s.store.SetMapping(m)
	return nil
}

// PointerDown starts drawing a box at the screen point p
func (s *Session) PointerDown(p types.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.StartBox(p)
	}
}

// PointerMove updates the box being drawn
func (s *Session) PointerMove(p types.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.UpdateBox(p)
	}
}

// PointerUp finishes the box being drawn. Drags below the minimum size are
// discarded and reported as false.
func (s *Session) PointerUp(p types.Point) (types.BoundingBox, bool) {
	s.mu.Lock()
	if s.store == nil {
		s.mu.Unlock()
		return types.BoundingBox{}, false
	}
	box, ok := s.store.CommitBox(p)
	boxes := s.store.List()
	s.mu.Unlock()

	if ok {
		s.Emit(EventBoxesChanged, boxes)
	}
	return box, ok
}

// CancelDrawing abandons the box being drawn
func (s *Session) CancelDrawing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.Cancel()
	}
}

// InProgress returns the screen rectangle of the box being drawn
func (s *Session) InProgress() (viewport.ScreenRect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return viewport.ScreenRect{}, false
	}
	return s.store.InProgress()
}

// RemoveBox deletes the box at index i of the list
func (s *Session) RemoveBox(i int) error {
	s.mu.Lock()
	if s.store == nil {
		s.mu.Unlock()
		return ErrNoImage
	}
	if err := s.store.Remove(i); err != nil {
		s.mu.Unlock()
		return err
	}
	boxes := s.store.List()
	s.mu.Unlock()

	s.Emit(EventBoxesChanged, boxes)
	return nil
}

// ClearBoxes drops every box of the shown image
func (s *Session) ClearBoxes() {
	s.mu.Lock()
	if s.store == nil {
		s.mu.Unlock()
		return
	}
	s.store.Clear()
	s.mu.Unlock()

	s.Emit(EventBoxesChanged, []types.BoundingBox{})
}

// Boxes returns the shown image's boxes in creation order
func (s *Session) Boxes() []types.BoundingBox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return []types.BoundingBox{}
	}
	return s.store.List()
}

// ScreenRects returns the boxes projected through the current mapping
func (s *Session) ScreenRects() []viewport.ScreenRect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil
	}
	return s.store.ScreenRects()
}

// SetSide selects the side for boxes drawn from now on. Existing boxes keep
// their side.
func (s *Session) SetSide(side types.Side) error {
	if _, err := types.ParseSide(string(side)); err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.side != side
	s.side = side
	if s.store != nil {
		s.store.SetSide(side)
	}
	s.mu.Unlock()

	if changed {
		s.Emit(EventSideChanged, side)
	}
	return nil
}

// ToggleSide switches between front and back and returns the new side
func (s *Session) ToggleSide() types.Side {
	s.mu.RLock()
	next := s.side.Other()
	s.mu.RUnlock()

	// next is always valid
	_ = s.SetSide(next)
	return next
}

// Side returns the active side selector
func (s *Session) Side() types.Side {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.side
}

// Save exports the shown image's boxes. Missing image or boxes are returned as
// errors; export failures are reported in the result.
func (s *Session) Save() (types.ExportResult, error) {
	s.mu.RLock()
	if s.store == nil {
		s.mu.RUnlock()
		return types.ExportResult{}, ErrNoImage
	}
	img := s.current
	boxes := s.store.List()
	s.mu.RUnlock()

	if len(boxes) == 0 {
		return types.ExportResult{}, ErrNoBoxes
	}

	// One export at a time per directory
	s.saveMu.Lock()
	result := s.exporter.Export(s.dir, img, boxes)
	s.saveMu.Unlock()

	s.Emit(EventSaved, result)
	return result, nil
}

// Preview writes the shown image with its boxes drawn and numbered in list
// order. The output format follows the extension of path.
func (s *Session) Preview(path string) error {
	s.mu.RLock()
	if s.store == nil {
		s.mu.RUnlock()
		return ErrNoImage
	}
	img := s.current
	boxes := s.store.List()
	s.mu.RUnlock()

	src, err := s.processor.LoadImage(img.Path)
	if err != nil {
		return fmt.Errorf("failed to load image %s: %w", img.Name, err)
	}

	if err := s.processor.SaveImage(s.processor.RenderAnnotations(src, boxes), path); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}

// Suggest asks a vision model for card boxes and appends them to the shown
// image's boxes. It returns how many were added. User boxes are never replaced.
func (s *Session) Suggest(ctx context.Context, suggester Suggester, model string) (int, error) {
	s.mu.RLock()
	if s.store == nil {
		s.mu.RUnlock()
		return 0, ErrNoImage
	}
	img, index := s.current, s.index
	s.mu.RUnlock()

	src, err := s.processor.LoadImage(img.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to load image %s: %w", img.Name, err)
	}
	encoded, err := s.processor.PrepareImageForModel(src, s.modelFormat, s.modelMaxDim, s.modelQuality)
	if err != nil {
		return 0, fmt.Errorf("failed to encode image for model: %w", err)
	}

	suggestions, err := suggester.SuggestBoxes(ctx, model, encoded)
	if err != nil {
		return 0, fmt.Errorf("suggestion failed: %w", err)
	}

	s.mu.Lock()
	if s.index != index || s.store == nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("image changed while waiting for suggestions")
	}
	added := 0
	for _, sg := range suggestions {
		if err := s.store.Add(sg.Box); err != nil {
			continue
		}
		added++
	}
	boxes := s.store.List()
	s.mu.Unlock()

	if added > 0 {
		s.Emit(EventBoxesChanged, boxes)
	}
	return added, nil
}
