package session

// EventType identifies different session events.
type EventType int

const (
	// EventImageShown carries the shown types.ImageDescriptor
	EventImageShown EventType = iota
	// EventBoxesChanged carries the current []types.BoundingBox
	EventBoxesChanged
	// EventSideChanged carries the new types.Side
	EventSideChanged
	// EventSaved carries the types.ExportResult
	EventSaved
)

// String returns the event name
func (e EventType) String() string {
	switch e {
	case EventImageShown:
		return "image-shown"
	case EventBoxesChanged:
		return "boxes-changed"
	case EventSideChanged:
		return "side-changed"
	case EventSaved:
		return "saved"
	}
	return "unknown"
}

// Listener is a callback for session events.
type Listener func(data interface{})

// On registers a listener for an event type.
func (s *Session) On(event EventType, listener Listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
// Listeners run on the caller's goroutine with no session lock held.
func (s *Session) Emit(event EventType, data interface{}) {
	s.lmu.RLock()
	listeners := s.listeners[event]
	s.lmu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}
