package push

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWindowNotFound is returned when focusing a window that is gone.
var ErrWindowNotFound = errors.New("push: window not found")

// Window is an open client window of the storefront origin.
type Window struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Focused   bool      `json:"focused"`
	OpenedAt  time.Time `json:"opened_at"`
	FocusedAt time.Time `json:"focused_at,omitempty"`
}

// Windows is the platform's window-client capability.
type Windows interface {
	List(ctx context.Context) ([]Window, error)
	Focus(ctx context.Context, id string) (Window, error)
	Open(ctx context.Context, url string) (Window, error)
}

// WindowRegistry is a Windows that windows can register with and leave.
type WindowRegistry interface {
	Windows
	Register(url string) Window
	Remove(id string) bool
}

// Opener launches a new window for url. It is the platform hook behind
// WindowSet.Open.
type Opener func(ctx context.Context, url string) error

// WindowSet tracks the windows that registered with the agent.
type WindowSet struct {
	mu      sync.Mutex
	windows map[string]Window
	opener  Opener
	now     func() time.Time
}

// NewWindowSet returns an empty set. A nil opener makes Open only record the
// window.
func NewWindowSet(opener Opener) *WindowSet {
	return &WindowSet{windows: make(map[string]Window), opener: opener, now: time.Now}
}

// Register records a window that is already open.
func (s *WindowSet) Register(url string) Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := Window{ID: uuid.NewString(), URL: url, OpenedAt: s.now().UTC()}
	s.windows[w.ID] = w
	return w
}

// Remove forgets a window.
func (s *WindowSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.windows[id]
	delete(s.windows, id)
	return ok
}

// List implements Windows, oldest first.
func (s *WindowSet) List(context.Context) ([]Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Window, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// Focus implements Windows.
func (s *WindowSet) Focus(_ context.Context, id string) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return Window{}, ErrWindowNotFound
	}
	for other, ow := range s.windows {
		if ow.Focused {
			ow.Focused = false
			s.windows[other] = ow
		}
	}
	w.Focused = true
	w.FocusedAt = s.now().UTC()
	s.windows[id] = w
	return w, nil
}

// Open implements Windows.
func (s *WindowSet) Open(ctx context.Context, url string) (Window, error) {
	if s.opener != nil {
		if err := s.opener(ctx, url); err != nil {
			return Window{}, err
		}
	}
	w := s.Register(url)
	return s.Focus(ctx, w.ID)
}
