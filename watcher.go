// Package formwatch keeps a UI container mounted next to the comment form of
// single-page product listings. For every watched page it runs a presence
// observer on the form selector and re-arms it on every client-side
// navigation; when the form appears the container is mounted, the product
// section is converted to Markdown, and a Detection is emitted to sinks.
package formwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/idgen"
	"github.com/hazyhaar/formwatch/internal/browser"
	"github.com/hazyhaar/formwatch/internal/mount"
	"github.com/hazyhaar/formwatch/internal/product"
	"github.com/hazyhaar/formwatch/internal/sink"
	"github.com/hazyhaar/formwatch/internal/store"
	"github.com/hazyhaar/formwatch/navigation"
	"github.com/hazyhaar/formwatch/presence"
	"github.com/hazyhaar/formwatch/rearm"
)

var (
	// ErrUnknownPage is returned for operations on a page id that is not attached.
	ErrUnknownPage = errors.New("formwatch: unknown page")
	// ErrPageExists is returned by Attach when the id is already attached.
	ErrPageExists = errors.New("formwatch: page already attached")
)

// recentLimit caps the in-memory detections kept per page.
const recentLimit = 50

// foundTimeout bounds the mount and product extraction of one detection.
const foundTimeout = 15 * time.Second

// Page is a live document the Watcher can drive: mutation observation and
// queries, history, container mount and serialisation. Chrome tabs and the
// in-memory DOM both implement it.
type Page interface {
	presence.Document
	navigation.History
	Mount(ctx context.Context, spec mount.Spec) (bool, error)
	OuterHTML(ctx context.Context, selector string) (string, error)
	Close() error
}

// Watcher is the top-level orchestrator. It manages the browser, the
// per-page re-arm loops and the sinks.
type Watcher struct {
	cfg       *Config
	mgr       *browser.Manager
	sinkR     *sink.Router
	extractor *product.Extractor
	logger    *slog.Logger

	newDetectionID  idgen.Generator
	newNavigationID idgen.Generator

	mu     sync.Mutex
	pages  map[string]*watched
	store  *store.Store
	reopen []PageConfig // Chrome-backed pages closed by a recycle
}

// watched is the state of one attached page.
type watched struct {
	cfg     PageConfig
	page    Page
	nav     *navigation.Navigator
	obs     *presence.Observer
	loop    *rearm.Loop
	spec    mount.Spec
	ctx     context.Context
	browser bool // opened by ObservePage, re-opened after recycle
	since   time.Time

	mu     sync.Mutex
	count  uint64
	recent []event.Detection // newest last
}

// New creates a Watcher from configuration. It does not start the browser.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()

	return &Watcher{
		cfg:             cfg,
		sinkR:           sink.NewRouter(logger, sinks...),
		extractor:       product.NewExtractor(0),
		logger:          logger,
		newDetectionID:  idgen.Prefixed("det_", idgen.Default),
		newNavigationID: idgen.Prefixed("nav_", idgen.Default),
		pages:           make(map[string]*watched),
	}
}

// SetIDGenerator replaces the generator used for event IDs. The "det_" and
// "nav_" prefixes are kept. Call before attaching pages.
func (w *Watcher) SetIDGenerator(gen idgen.Generator) {
	w.newDetectionID = idgen.Prefixed("det_", gen)
	w.newNavigationID = idgen.Prefixed("nav_", gen)
}

// UseStore records every event in s and serves detection history from it.
// Call before attaching pages.
func (w *Watcher) UseStore(s *store.Store) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.store = s
	w.sinkR.Add(s)
}

// Start launches the browser and begins watching all configured pages.
// Pages that fail to open are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	bc := w.cfg.Browser
	w.mgr = browser.NewManager(browser.Config{
		RemoteURL:        bc.Remote,
		MemoryLimit:      bc.MemoryLimit,
		RecycleInterval:  bc.RecycleInterval,
		ResourceBlocking: bc.ResourceBlocking,
		Stealth:          browser.ParseStealth(bc.Stealth),
		XvfbDisplay:      bc.XvfbDisplay,
		NavigateTimeout:  bc.NavigateTimeout,
		Logger:           w.logger,
	})
	if err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("formwatch: start browser: %w", err)
	}

	w.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: w.detachBrowserPages,
		AfterRecycle:  w.reopenBrowserPages,
	})

	for _, pc := range w.cfg.Pages {
		if err := w.ObservePage(ctx, pc); err != nil {
			w.logger.Error("formwatch: failed to observe page", "url", pc.URL, "error", err)
		}
	}
	return nil
}

// ObservePage opens pc.URL in a Chrome tab and attaches it.
func (w *Watcher) ObservePage(ctx context.Context, pc PageConfig) error {
	if w.mgr == nil {
		return fmt.Errorf("formwatch: browser not started")
	}
	pc.ApplyDefaults()

	tab, err := w.mgr.OpenTab(ctx, pc.URL, pc.ID, browser.ParseStealth(pc.StealthLevel))
	if err != nil {
		return fmt.Errorf("formwatch: open tab: %w", err)
	}
	if err := w.attach(ctx, pc, tab, true); err != nil {
		tab.Close()
		return err
	}
	return nil
}

// Attach starts watching an already open page. The Watcher owns page from
// now on and closes it on Detach or Stop.
func (w *Watcher) Attach(ctx context.Context, pc PageConfig, page Page) error {
	pc.ApplyDefaults()
	return w.attach(ctx, pc, page, false)
}

func (w *Watcher) attach(ctx context.Context, pc PageConfig, page Page, fromBrowser bool) error {
	if pc.ID == "" {
		return fmt.Errorf("formwatch: page has no id")
	}

	w.mu.Lock()
	if _, ok := w.pages[pc.ID]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageExists, pc.ID)
	}
	p := &watched{
		cfg:  pc,
		page: page,
		ctx:  ctx,
		spec: mount.Build(mount.Options{
			ContainerID:   pc.Mount.ContainerID,
			InputSelector: pc.InputSelector,
			FormSelector:  pc.FormSelector,
			Template:      pc.Mount.Template,
			Style:         pc.Mount.Style,
		}),
		browser: fromBrowser,
		since:   time.Now(),
	}
	logger := w.logger.With("page", pc.ID)
	p.nav = navigation.New(page, logger)
	p.obs = presence.New(presence.Config{Document: page, Selector: pc.FormSelector, Logger: logger})
	// Reserve the id while the loop starts.
	w.pages[pc.ID] = p
	w.mu.Unlock()

	loop, err := rearm.Start(ctx, rearm.Config{
		Observer:  p.obs,
		Navigator: p.nav,
		OnFound:   func(s *presence.Session) { w.handleFound(p, s.Generation()) },
		OnChange:  func(c navigation.Change) { w.handleChange(p, c) },
		Logger:    logger,
	})
	if err != nil {
		w.mu.Lock()
		delete(w.pages, pc.ID)
		w.mu.Unlock()
		return fmt.Errorf("formwatch: attach %s: %w", pc.ID, err)
	}
	p.mu.Lock()
	p.loop = loop
	p.mu.Unlock()

	logger.Info("formwatch: watching page", "url", pc.URL, "selector", pc.FormSelector)
	w.probe(p)
	return nil
}

// Detach stops watching the page and closes it.
func (w *Watcher) Detach(id string) error {
	w.mu.Lock()
	p, ok := w.pages[id]
	delete(w.pages, id)
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	w.closePage(p)
	return nil
}

func (w *Watcher) closePage(p *watched) {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()
	if loop != nil {
		loop.Close()
	}
	if err := p.page.Close(); err != nil {
		w.logger.Warn("formwatch: close page", "page", p.cfg.ID, "error", err)
	}
	w.logger.Info("formwatch: stopped watching page", "page", p.cfg.ID)
}

// Navigate performs a client-side navigation (history.pushState) on a page.
func (w *Watcher) Navigate(ctx context.Context, id, url string) error {
	p, err := w.lookup(id)
	if err != nil {
		return err
	}
	return p.nav.Push(ctx, url)
}

// Back traverses one history entry back on a page.
func (w *Watcher) Back(ctx context.Context, id string) error {
	p, err := w.lookup(id)
	if err != nil {
		return err
	}
	return p.nav.Back(ctx)
}

// Forward traverses one history entry forward on a page.
func (w *Watcher) Forward(ctx context.Context, id string) error {
	p, err := w.lookup(id)
	if err != nil {
		return err
	}
	return p.nav.Forward(ctx)
}

func (w *Watcher) lookup(id string) (*watched, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	return p, nil
}

// Stop closes every page, the sinks and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	pages := w.pages
	w.pages = make(map[string]*watched)
	w.mu.Unlock()

	for _, p := range pages {
		w.closePage(p)
	}
	if err := w.sinkR.Close(); err != nil {
		w.logger.Warn("formwatch: close sinks", "error", err)
	}
	if w.mgr != nil {
		w.mgr.Close()
	}
}

// handleFound mounts the container; only an actual insertion produces a
// Detection, so repeated matches of an already mounted form are silent.
func (w *Watcher) handleFound(p *watched, gen uint64) {
	ctx, cancel := context.WithTimeout(p.ctx, foundTimeout)
	defer cancel()
	log := w.logger.With("page", p.cfg.ID, "generation", gen)

	inserted, err := p.page.Mount(ctx, p.spec)
	if err != nil {
		log.Warn("formwatch: mount failed", "error", err)
		return
	}
	if !inserted {
		return
	}

	loc, err := p.page.Location(ctx)
	if err != nil {
		loc = p.cfg.URL
	}

	var prod event.Product
	if raw, err := p.page.OuterHTML(ctx, p.cfg.ProductSelector); err != nil {
		log.Debug("formwatch: no product section", "selector", p.cfg.ProductSelector, "error", err)
	} else if prod, err = w.extractor.Extract(raw, loc); err != nil {
		log.Warn("formwatch: product extraction failed", "error", err)
	}

	d := event.Detection{
		ID:        w.newDetectionID(),
		PageID:    p.cfg.ID,
		PageURL:   loc,
		Selector:  p.cfg.FormSelector,
		Session:   gen,
		Container: p.spec.ContainerID,
		Product:   prod,
		Timestamp: time.Now().UnixMilli(),
	}

	p.mu.Lock()
	p.count++
	p.recent = append(p.recent, d)
	if len(p.recent) > recentLimit {
		p.recent = p.recent[len(p.recent)-recentLimit:]
	}
	p.mu.Unlock()

	log.Info("formwatch: container mounted", "id", d.ID, "url", loc, "product", prod.Title)
	if err := w.sinkR.SendDetection(ctx, d); err != nil {
		log.Warn("formwatch: send detection failed", "error", err)
	}
}

// handleChange runs after the loop re-armed for a navigation.
func (w *Watcher) handleChange(p *watched, c navigation.Change) {
	n := event.Navigation{
		ID:        w.newNavigationID(),
		PageID:    p.cfg.ID,
		Seq:       c.Seq,
		Kind:      string(c.Kind),
		URL:       c.URL,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := w.sinkR.SendNavigation(p.ctx, n); err != nil {
		w.logger.Warn("formwatch: send navigation failed", "page", p.cfg.ID, "error", err)
	}
	w.probe(p)
}

// probe handles a form that is already in the document when a session
// starts: mutation observation alone would never report it.
func (w *Watcher) probe(p *watched) {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()
	if loop == nil {
		return
	}
	st := loop.Stats()
	if st.Closed || st.Generation == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, foundTimeout)
	ok, err := p.page.Query(ctx, p.cfg.FormSelector)
	cancel()
	if err != nil {
		w.logger.Debug("formwatch: probe failed", "page", p.cfg.ID, "error", err)
		return
	}
	if ok {
		w.handleFound(p, st.Generation)
	}
}

// detachBrowserPages closes the loops of Chrome-backed pages before a
// recycle; the tabs die with the browser.
func (w *Watcher) detachBrowserPages() {
	w.mu.Lock()
	var closing []*watched
	for id, p := range w.pages {
		if p.browser {
			closing = append(closing, p)
			w.reopen = append(w.reopen, p.cfg)
			delete(w.pages, id)
		}
	}
	w.mu.Unlock()

	for _, p := range closing {
		w.closePage(p)
	}
}

// reopenBrowserPages re-opens the pages closed by detachBrowserPages.
func (w *Watcher) reopenBrowserPages(ctx context.Context) {
	w.mu.Lock()
	pending := w.reopen
	w.reopen = nil
	w.mu.Unlock()

	for _, pc := range pending {
		if err := w.ObservePage(ctx, pc); err != nil {
			w.logger.Error("formwatch: reconnect page failed", "url", pc.URL, "error", err)
		}
	}
}
