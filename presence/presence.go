// Package presence detects when an element matching a selector becomes
// present under a document's root, without polling.
//
// An Observer owns at most one Session at a time. Starting a new session
// releases the previous one before the new subscription is created, so a
// single later match is never reported twice. Each session captures a
// generation number; batches that arrive for a stale generation are dropped,
// which covers callbacks the host had already queued when Stop returned.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/formwatch/event"
)

// Document is the host's view of a live page.
//
// Observe must deliver batches for the root subtree serially and in order,
// and must stop delivering once cancel returns. cancel must not wait for an
// in-flight callback to complete. When the root node does not
// exist, Observe returns the host's error; presence does not recover from it.
type Document interface {
	Observe(ctx context.Context, fn func(event.Batch)) (cancel func(), err error)
	Query(ctx context.Context, selector string) (bool, error)
}

// Observer watches one Document for one selector.
type Observer struct {
	doc      Document
	selector string
	logger   *slog.Logger

	mu     sync.Mutex
	active *Session
	gen    atomic.Uint64
}

// Config for creating an Observer.
type Config struct {
	Document Document
	Selector string
	Logger   *slog.Logger
}

// New creates an Observer. It does not start watching.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Observer{
		doc:      cfg.Document,
		selector: cfg.Selector,
		logger:   cfg.Logger,
	}
}

// Selector returns the selector the Observer looks for.
func (o *Observer) Selector() string { return o.selector }

// Session is the handle of one active watch.
type Session struct {
	obs    *Observer
	gen    uint64
	cancel context.CancelFunc
	unsub  func()
	once   sync.Once
	found  atomic.Uint64
}

// Generation identifies the session. Generations increase monotonically
// per Observer.
func (s *Session) Generation() uint64 { return s.gen }

// Found returns how many times the session invoked its callback.
func (s *Session) Found() uint64 { return s.found.Load() }

// Active reports whether the session is still the Observer's live session.
func (s *Session) Active() bool {
	return s != nil && s.obs.gen.Load() == s.gen
}

// Stop releases the session. Safe to call more than once.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.obs.Stop(s)
}

func (s *Session) release() {
	s.once.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		s.cancel()
	})
}

// Start begins watching and returns the new session. Any session started
// earlier on this Observer is stopped first, synchronously.
//
// onFound is called with the session once per structural batch in which
// the selector matches, including batches the host delivers before Start
// returns. The observer never stops itself after a match: the element can
// be removed and re-added, and each re-appearance is reported again.
func (o *Observer) Start(ctx context.Context, onFound func(*Session)) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		o.stopLocked(o.active)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{obs: o, gen: o.gen.Add(1), cancel: cancel}

	unsub, err := o.doc.Observe(sctx, func(b event.Batch) {
		o.deliver(sctx, s, b, onFound)
	})
	if err != nil {
		cancel()
		// Invalidate the generation so nothing queued for s can fire.
		o.gen.Add(1)
		return nil, fmt.Errorf("presence: observe: %w", err)
	}
	s.unsub = unsub
	o.active = s

	o.logger.Debug("presence: session started",
		"selector", o.selector, "generation", s.gen)
	return s, nil
}

// Stop releases s. A nil or already-stopped session is a no-op.
func (o *Observer) Stop(s *Session) {
	if s == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked(s)
}

// Active returns the live session, or nil.
func (o *Observer) Active() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Observer) stopLocked(s *Session) {
	if o.active == s {
		o.gen.Add(1)
		o.active = nil
		o.logger.Debug("presence: session stopped",
			"selector", o.selector, "generation", s.gen, "found", s.Found())
	}
	s.release()
}

// deliver applies the detection policy to one batch: one query per
// structural batch, first match wins.
func (o *Observer) deliver(ctx context.Context, s *Session, b event.Batch, onFound func(*Session)) {
	if !s.Active() || !b.Structural() {
		return
	}

	ok, err := o.doc.Query(ctx, o.selector)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("presence: query failed",
				"selector", o.selector, "error", err)
		}
		return
	}
	if !ok || !s.Active() {
		return
	}

	s.found.Add(1)
	onFound(s)
}
