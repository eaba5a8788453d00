// Package navigation reports client-side URL transitions on a single-page
// application.
//
// Programmatic navigation goes through a Navigator: it performs the history
// mutation on the host and then notifies every attached listener before
// returning. Nothing global is patched, so any number of listeners can be
// attached and detached in any order. Back/forward traversal and full
// document loads come from the host's own signal.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind classifies a navigation change.
type Kind string

const (
	KindPush     Kind = "push"
	KindReplace  Kind = "replace"
	KindTraverse Kind = "traverse" // back/forward (popstate)
	KindLoad     Kind = "load"     // full document load
)

// ErrNotTraversable is returned by Back and Forward when the History
// backend cannot traverse.
var ErrNotTraversable = errors.New("navigation: history cannot traverse")

// History is the host's history backend.
//
// OnNavigate delivers navigations the page makes on its own: history calls
// from page scripts, traversal and document load. It must not report the
// PushState and ReplaceState calls made through this interface. The signal
// must be raised after the location has changed.
type History interface {
	PushState(ctx context.Context, url string) error
	ReplaceState(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	OnNavigate(fn func(Kind)) (cancel func(), err error)
}

// Traverser is implemented by backends that can go back and forward.
type Traverser interface {
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
}

// Change describes one navigation.
type Change struct {
	Seq  uint64 // per Navigator, starting at 1
	Kind Kind
	URL  string // location after the navigation took effect
}

// Handle is one attached listener.
type Handle struct {
	id       uint64
	onChange func(Change)
	detached atomic.Bool
}

// Detached reports whether the handle has been detached.
func (h *Handle) Detached() bool { return h.detached.Load() }

// Navigator is the navigation facade of one page.
type Navigator struct {
	hist   History
	logger *slog.Logger

	mu      sync.Mutex
	handles []*Handle
	nextID  uint64
	unwatch func()
	seq     atomic.Uint64
}

// New creates a Navigator over hist.
func New(hist History, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{hist: hist, logger: logger}
}

// Attach registers onChange. The first attached handle subscribes to the
// backend's external navigation signal.
func (n *Navigator) Attach(onChange func(Change)) (*Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.handles) == 0 {
		cancel, err := n.hist.OnNavigate(n.external)
		if err != nil {
			return nil, fmt.Errorf("navigation: subscribe: %w", err)
		}
		n.unwatch = cancel
	}

	n.nextID++
	h := &Handle{id: n.nextID, onChange: onChange}
	n.handles = append(n.handles, h)
	return h, nil
}

// Detach removes h. After Detach returns, h's callback is never invoked.
// Detaching the last handle releases the backend subscription. Detaching
// twice is a no-op.
func (n *Navigator) Detach(h *Handle) {
	if h == nil || h.detached.Swap(true) {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for i, cur := range n.handles {
		if cur == h {
			n.handles = append(n.handles[:i:i], n.handles[i+1:]...)
			break
		}
	}
	if len(n.handles) == 0 && n.unwatch != nil {
		n.unwatch()
		n.unwatch = nil
	}
}

// Attached returns the number of attached handles.
func (n *Navigator) Attached() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handles)
}

// Push adds a history entry, then notifies listeners.
func (n *Navigator) Push(ctx context.Context, url string) error {
	if err := n.hist.PushState(ctx, url); err != nil {
		return fmt.Errorf("navigation: push %s: %w", url, err)
	}
	n.emit(ctx, KindPush)
	return nil
}

// Replace rewrites the current history entry, then notifies listeners.
func (n *Navigator) Replace(ctx context.Context, url string) error {
	if err := n.hist.ReplaceState(ctx, url); err != nil {
		return fmt.Errorf("navigation: replace %s: %w", url, err)
	}
	n.emit(ctx, KindReplace)
	return nil
}

// Back asks the backend to go back one entry. Listeners are notified
// through the backend's traversal signal.
func (n *Navigator) Back(ctx context.Context) error {
	t, ok := n.hist.(Traverser)
	if !ok {
		return ErrNotTraversable
	}
	return t.Back(ctx)
}

// Forward asks the backend to go forward one entry.
func (n *Navigator) Forward(ctx context.Context) error {
	t, ok := n.hist.(Traverser)
	if !ok {
		return ErrNotTraversable
	}
	return t.Forward(ctx)
}

// Location returns the backend's current location.
func (n *Navigator) Location(ctx context.Context) (string, error) {
	return n.hist.Location(ctx)
}

func (n *Navigator) external(kind Kind) {
	n.emit(context.Background(), kind)
}

// emit notifies the handles attached at the time of the call, in attach
// order, on the caller's goroutine.
func (n *Navigator) emit(ctx context.Context, kind Kind) {
	n.mu.Lock()
	handles := make([]*Handle, len(n.handles))
	copy(handles, n.handles)
	n.mu.Unlock()

	if len(handles) == 0 {
		return
	}

	loc, err := n.hist.Location(ctx)
	if err != nil {
		n.logger.Warn("navigation: read location failed", "kind", kind, "error", err)
	}
	c := Change{Seq: n.seq.Add(1), Kind: kind, URL: loc}

	for _, h := range handles {
		if h.detached.Load() {
			continue
		}
		h.onChange(c)
	}
}
