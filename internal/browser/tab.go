package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/internal/mount"
	"github.com/hazyhaar/formwatch/navigation"
)

// ErrNoBody is returned by Observe when the document has no body yet.
var ErrNoBody = errors.New("browser: document has no body")

// ErrTabClosed is returned by operations on a closed Tab.
var ErrTabClosed = errors.New("browser: tab is closed")

// Tab wraps a Rod page with formwatch setup: stealth, resource blocking,
// mutation bindings and navigation signals. It implements the formwatch
// Page interface.
type Tab struct {
	Page    *rod.Page
	PageID  string
	Stealth StealthLevel

	logger *slog.Logger
	router *rod.HijackRouter
	ctx    context.Context
	cancel context.CancelFunc
	calls  chan call

	mu      sync.Mutex
	subs    map[string]*subscription
	nextSub int
	navSubs map[int]func(navigation.Kind)
	nextNav int
	closed  bool
}

type subscription struct {
	fn  func(event.Batch)
	seq uint64
}

// call is one event handed from the CDP listener to the worker.
type call struct {
	binding string
	payload string
	load    bool
}

// OpenTab creates a new tab, navigates to pageURL and starts the event
// listener and the dispatch worker.
func (m *Manager) OpenTab(ctx context.Context, pageURL, pageID string, level StealthLevel) (*Tab, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if level >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{
		Page:    page,
		PageID:  pageID,
		Stealth: level,
		logger:  m.cfg.Logger.With("page", pageID),
		calls:   make(chan call, 1024),
		subs:    make(map[string]*subscription),
		navSubs: make(map[int]func(navigation.Kind)),
	}
	if len(m.cfg.ResourceBlocking) > 0 {
		t.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	if err := t.installNavSignal(); err != nil {
		t.Close()
		return nil, err
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	go t.listen()
	go t.dispatch()
	return t, nil
}

// listen forwards binding calls and load events to the worker. It never
// runs user callbacks itself, so a callback may issue CDP calls.
func (t *Tab) listen() {
	t.Page.Context(t.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			t.enqueue(call{binding: e.Name, payload: e.Payload})
		},
		func(e *proto.PageLoadEventFired) {
			t.enqueue(call{load: true})
		},
	)()
}

func (t *Tab) enqueue(c call) {
	select {
	case t.calls <- c:
	case <-t.ctx.Done():
	}
}

// dispatch delivers events serially, in arrival order.
func (t *Tab) dispatch() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case c := <-t.calls:
			switch {
			case c.load:
				t.signal(navigation.KindLoad)
			case c.binding == navBinding:
				kind, ok := navKind(c.payload)
				if !ok {
					t.logger.Warn("browser: unknown navigation signal", "payload", c.payload)
					continue
				}
				t.signal(kind)
			default:
				t.deliver(c.binding, c.payload)
			}
		}
	}
}

// Query reports whether an element matching selector exists.
func (t *Tab) Query(ctx context.Context, selector string) (bool, error) {
	res, err := t.Page.Context(ctx).Eval(`(sel) => document.querySelector(sel) !== null`, selector)
	if err != nil {
		return false, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return res.Value.Bool(), nil
}

// Mount evaluates the mount script. It returns true when the container was
// inserted.
func (t *Tab) Mount(ctx context.Context, spec mount.Spec) (bool, error) {
	res, err := t.Page.Context(ctx).Eval(mount.Script, spec)
	if err != nil {
		return false, fmt.Errorf("browser: mount: %w", err)
	}
	return res.Value.Bool(), nil
}

// OuterHTML serialises the first element matching selector.
func (t *Tab) OuterHTML(ctx context.Context, selector string) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		return el ? el.outerHTML : null;
	}`, selector)
	if err != nil {
		return "", fmt.Errorf("browser: outerHTML %q: %w", selector, err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("browser: no element matches %q", selector)
	}
	return res.Value.Str(), nil
}

// Close stops the listeners and closes the page. Idempotent.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.subs = map[string]*subscription{}
	t.navSubs = map[int]func(navigation.Kind){}
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.router != nil {
		t.router.Stop()
	}
	return t.Page.Close()
}

// waitTimeout bounds teardown calls issued from cancel functions.
const waitTimeout = 5 * time.Second
