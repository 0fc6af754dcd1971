package tracking

import (
	"context"
	"sync"
)

// PushSource is a Source fed by the API: each reported fix is pushed in
// with Publish. It backs server-side tracking where the device reports
// positions over HTTP instead of a local sensor.
type PushSource struct {
	mu      sync.Mutex
	ch      chan Update
	last    *Position
	watched bool
	closed  bool
}

var _ Source = (*PushSource)(nil)

// NewPushSource creates a push-fed position source.
func NewPushSource() *PushSource {
	return &PushSource{
		ch: make(chan Update, 64),
	}
}

// Watch returns the update stream. Only one watch is supported; a second
// Watch while the first is active returns ErrAlreadyTracking.
func (s *PushSource) Watch(_ context.Context) (<-chan Update, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watched {
		return nil, nil, ErrAlreadyTracking
	}
	if s.closed {
		s.ch = make(chan Update, 64)
		s.closed = false
	}
	s.watched = true
	return s.ch, s.stop, nil
}

func (s *PushSource) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watched && !s.closed {
		close(s.ch)
		s.closed = true
		s.watched = false
	}
}

// Publish delivers a position fix to the watcher. Fixes pushed while
// nobody is watching still update the current position. A full buffer
// drops the oldest pending update in favor of the new fix.
func (s *PushSource) Publish(pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := pos
	s.last = &p

	if !s.watched || s.closed {
		return
	}
	for {
		select {
		case s.ch <- Update{Position: &p}:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// PublishError delivers a classified source error to the watcher.
func (s *PushSource) PublishError(err *SourceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.watched || s.closed {
		return
	}
	select {
	case s.ch <- Update{Err: err}:
	default:
	}
}

// Current returns the most recently published fix.
func (s *PushSource) Current(_ context.Context) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Position{}, ErrNoPosition
	}
	return *s.last, nil
}

// CheckPermission always reports granted: the device pushing positions
// is the permission.
func (s *PushSource) CheckPermission(_ context.Context) (Permission, error) {
	return PermissionGranted, nil
}
