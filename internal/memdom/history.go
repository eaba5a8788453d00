package memdom

import (
	"context"
	"net/url"

	"github.com/hazyhaar/formwatch/navigation"
)

// PushState adds an entry after the current one and drops forward entries.
func (w *Window) PushState(_ context.Context, rawURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	u, err := w.resolveLocked(rawURL)
	if err != nil {
		return err
	}
	w.entries = append(w.entries[:w.index+1], u)
	w.index++
	return nil
}

// ReplaceState rewrites the current entry.
func (w *Window) ReplaceState(_ context.Context, rawURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	u, err := w.resolveLocked(rawURL)
	if err != nil {
		return err
	}
	w.entries[w.index] = u
	return nil
}

// ScriptPushState is history.pushState called by a page script: the entry
// is added and navigation subscribers receive a push signal.
func (w *Window) ScriptPushState(rawURL string) error {
	if err := w.PushState(context.Background(), rawURL); err != nil {
		return err
	}
	w.signal(navigation.KindPush)
	return nil
}

// ScriptReplaceState is history.replaceState called by a page script.
func (w *Window) ScriptReplaceState(rawURL string) error {
	if err := w.ReplaceState(context.Background(), rawURL); err != nil {
		return err
	}
	w.signal(navigation.KindReplace)
	return nil
}

// Location returns the current entry's URL.
func (w *Window) Location(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries[w.index], nil
}

// Len returns the number of history entries.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// OnNavigate registers fn for page-initiated navigations: script history
// calls, popstate (Back, Forward) and Reload.
func (w *Window) OnNavigate(fn func(navigation.Kind)) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextNav
	w.nextNav++
	w.navSubs[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.navSubs, id)
		w.mu.Unlock()
	}, nil
}

// Back moves one entry back and fires popstate. At the first entry it is a
// no-op, like history.back().
func (w *Window) Back(context.Context) error {
	return w.traverse(-1)
}

// Forward moves one entry forward and fires popstate.
func (w *Window) Forward(context.Context) error {
	return w.traverse(1)
}

// Reload fires a load signal for the current entry.
func (w *Window) Reload() {
	w.signal(navigation.KindLoad)
}

func (w *Window) traverse(delta int) error {
	w.mu.Lock()
	next := w.index + delta
	if next < 0 || next >= len(w.entries) {
		w.mu.Unlock()
		return nil
	}
	w.index = next
	w.mu.Unlock()

	w.signal(navigation.KindTraverse)
	return nil
}

func (w *Window) signal(kind navigation.Kind) {
	w.mu.Lock()
	fns := make([]func(navigation.Kind), 0, len(w.navSubs))
	for id := 0; id < w.nextNav; id++ {
		if fn, ok := w.navSubs[id]; ok {
			fns = append(fns, fn)
		}
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(kind)
	}
}

func (w *Window) resolveLocked(rawURL string) (string, error) {
	base, err := url.Parse(w.entries[w.index])
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
