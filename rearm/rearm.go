// Package rearm keeps a presence watch attached to a page whose markup is
// replaced by client-side navigation: every navigation tears the current
// presence session down and starts a fresh one.
package rearm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/formwatch/navigation"
	"github.com/hazyhaar/formwatch/presence"
)

// ErrClosed is returned by Rearm after Close.
var ErrClosed = errors.New("rearm: loop closed")

// Config wires the loop.
type Config struct {
	Observer  *presence.Observer
	Navigator *navigation.Navigator
	// OnFound runs on every detection. It receives the session that fired.
	OnFound func(s *presence.Session)
	// OnChange, if set, runs after the presence watch was re-armed for a
	// navigation.
	OnChange func(c navigation.Change)
	Logger   *slog.Logger
}

// Stats is a point-in-time view of a Loop.
type Stats struct {
	Sessions       uint64            // presence sessions started
	Rearms         uint64            // sessions started because of navigation
	Found          uint64            // detections by the current session
	Generation     uint64            // current session generation, 0 when none
	LastNavigation navigation.Change // zero before the first navigation
	Closed         bool
}

// Loop is one running re-arm loop.
type Loop struct {
	obs     *presence.Observer
	nav     *navigation.Navigator
	onFound func(*presence.Session)
	onNav   func(navigation.Change)
	logger  *slog.Logger
	ctx     context.Context

	mu       sync.Mutex
	handle   *navigation.Handle
	session  *presence.Session
	closed   bool
	sessions uint64
	rearms   uint64
	lastNav  navigation.Change
}

// Start attaches to the Navigator, then starts the first presence session.
func Start(ctx context.Context, cfg Config) (*Loop, error) {
	if cfg.Observer == nil || cfg.Navigator == nil {
		return nil, fmt.Errorf("rearm: observer and navigator are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnFound == nil {
		cfg.OnFound = func(*presence.Session) {}
	}

	l := &Loop{
		obs:     cfg.Observer,
		nav:     cfg.Navigator,
		onFound: cfg.OnFound,
		onNav:   cfg.OnChange,
		logger:  cfg.Logger,
		ctx:     ctx,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.nav.Attach(l.navigated)
	if err != nil {
		return nil, fmt.Errorf("rearm: attach navigation: %w", err)
	}
	l.handle = h

	if err := l.armLocked(); err != nil {
		l.nav.Detach(h)
		l.handle = nil
		return nil, err
	}
	return l, nil
}

// Rearm stops the current session and starts a new one.
func (l *Loop) Rearm() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.armLocked()
}

func (l *Loop) armLocked() error {
	s, err := l.obs.Start(l.ctx, l.onFound)
	if err != nil {
		l.session = nil
		return fmt.Errorf("rearm: start presence: %w", err)
	}
	l.session = s
	l.sessions++
	return nil
}

func (l *Loop) navigated(c navigation.Change) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.lastNav = c
	l.rearms++
	err := l.armLocked()
	l.mu.Unlock()

	if err != nil {
		// The next navigation re-arms again; nothing to retry here.
		l.logger.Warn("rearm: re-arm failed", "kind", c.Kind, "url", c.URL, "error", err)
	} else {
		l.logger.Debug("rearm: re-armed", "kind", c.Kind, "url", c.URL)
	}

	if l.onNav != nil {
		l.onNav(c)
	}
}

// Close stops the presence session, then detaches from navigation.
// Navigations racing Close are ignored once Close has begun.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	s, h := l.session, l.handle
	l.session, l.handle = nil, nil
	l.mu.Unlock()

	l.obs.Stop(s)
	l.nav.Detach(h)
}

// Stats returns the loop's counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{
		Sessions:       l.sessions,
		Rearms:         l.rearms,
		LastNavigation: l.lastNav,
		Closed:         l.closed,
	}
	if l.session != nil && l.session.Active() {
		st.Found = l.session.Found()
		st.Generation = l.session.Generation()
	}
	return st
}
