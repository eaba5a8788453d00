// CLAUDE:SUMMARY In-process live document with MutationObserver-style batching, history stack and container mount.
// Package memdom is an in-process live page: an x/net/html tree that
// records structural mutations the way a MutationObserver does, plus a
// history stack with popstate signalling.
//
// Mutations are queued per subscriber and delivered as one batch per
// subscriber on Flush, which stands in for the browser's microtask
// checkpoint. Callbacks run on the goroutine that calls Flush (or Back and
// Forward for navigation signals), never under the window's lock.
package memdom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/internal/mount"
	"github.com/hazyhaar/formwatch/navigation"
)

// ErrNoBody is returned by Observe when the document has no <body>.
var ErrNoBody = errors.New("memdom: document has no body")

// ErrNoMatch is returned when a selector matched no element.
var ErrNoMatch = errors.New("memdom: no element matches selector")

// Window is a live document with its history.
type Window struct {
	mu   sync.Mutex
	doc  *html.Node
	body *html.Node

	nextSub int
	subs    map[int]*subscription

	entries []string
	index   int
	navSubs map[int]func(navigation.Kind)
	nextNav int
}

type subscription struct {
	fn      func(event.Batch)
	pending []event.Record
	seq     uint64
}

// Parse builds a Window from a full HTML document loaded at pageURL.
func Parse(src, pageURL string) (*Window, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	return &Window{
		doc:     doc,
		body:    findBody(doc),
		subs:    make(map[int]*subscription),
		entries: []string{pageURL},
		navSubs: make(map[int]func(navigation.Kind)),
	}, nil
}

// Blank returns a Window holding an empty <body>.
func Blank(pageURL string) *Window {
	w, _ := Parse("<!DOCTYPE html><html><head></head><body></body></html>", pageURL)
	return w
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// DetachBody removes <body> from the document, leaving the page without an
// observation root.
func (w *Window) DetachBody() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.body != nil && w.body.Parent != nil {
		w.body.Parent.RemoveChild(w.body)
	}
	w.body = nil
}

// --- DOM ---

// Observe implements presence.Document. Records are queued from the moment
// Observe returns and delivered on Flush.
func (w *Window) Observe(_ context.Context, fn func(event.Batch)) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.body == nil {
		return nil, ErrNoBody
	}
	id := w.nextSub
	w.nextSub++
	w.subs[id] = &subscription{fn: fn}

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}, nil
}

// Query implements presence.Document.
func (w *Window) Query(_ context.Context, sel string) (bool, error) {
	s, err := parseSelector(sel)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return s.first(w.doc) != nil, nil
}

// Subscribers returns the number of live mutation subscriptions.
func (w *Window) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// AppendHTML parses fragment in the context of the first element matching
// parentSel and appends the resulting nodes to it.
func (w *Window) AppendHTML(parentSel, fragment string) error {
	s, err := parseSelector(parentSel)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	parent := w.matchLocked(s)
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrNoMatch, parentSel)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("memdom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
		w.recordLocked(event.Record{Op: event.OpInsert, NodeType: nodeType(n), Tag: n.Data})
	}
	return nil
}

// Remove detaches the first element matching sel. It returns ErrNoMatch
// when nothing matched.
func (w *Window) Remove(sel string) error {
	s, err := parseSelector(sel)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n := s.first(w.doc)
	if n == nil || n.Parent == nil {
		return fmt.Errorf("%w: %s", ErrNoMatch, sel)
	}
	n.Parent.RemoveChild(n)
	w.recordLocked(event.Record{Op: event.OpRemove, NodeType: nodeType(n), Tag: n.Data})
	return nil
}

// SetAttr sets an attribute on the first element matching sel.
func (w *Window) SetAttr(sel, key, val string) error {
	s, err := parseSelector(sel)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n := s.first(w.doc)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNoMatch, sel)
	}
	setAttr(n, key, val)
	w.recordLocked(event.Record{Op: event.OpAttr, Tag: n.Data, Name: key, Value: val})
	return nil
}

// ReplaceBody swaps the whole body content, the way a client-side router
// re-renders a page: one removal per old child, one insertion per new one.
func (w *Window) ReplaceBody(fragment string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.body == nil {
		return ErrNoBody
	}
	for c := w.body.FirstChild; c != nil; {
		next := c.NextSibling
		w.body.RemoveChild(c)
		w.recordLocked(event.Record{Op: event.OpRemove, NodeType: nodeType(c), Tag: c.Data})
		c = next
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), w.body)
	if err != nil {
		return fmt.Errorf("memdom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		w.body.AppendChild(n)
		w.recordLocked(event.Record{Op: event.OpInsert, NodeType: nodeType(n), Tag: n.Data})
	}
	return nil
}

// Flush delivers every subscriber's queued records as one batch. It
// returns the number of batches delivered.
func (w *Window) Flush() int {
	type delivery struct {
		fn    func(event.Batch)
		batch event.Batch
	}

	w.mu.Lock()
	var out []delivery
	now := time.Now().UnixMilli()
	for id := 0; id < w.nextSub; id++ {
		sub, ok := w.subs[id]
		if !ok || len(sub.pending) == 0 {
			continue
		}
		sub.seq++
		out = append(out, delivery{
			fn:    sub.fn,
			batch: event.Batch{Seq: sub.seq, Records: sub.pending, Timestamp: now},
		})
		sub.pending = nil
	}
	w.mu.Unlock()

	for _, d := range out {
		d.fn(d.batch)
	}
	return len(out)
}

// OuterHTML returns the serialised first element matching sel.
func (w *Window) OuterHTML(_ context.Context, sel string) (string, error) {
	s, err := parseSelector(sel)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n := s.first(w.doc)
	if n == nil {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, sel)
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", fmt.Errorf("memdom: render: %w", err)
	}
	return b.String(), nil
}

// HTML returns the serialised document.
func (w *Window) HTML() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var b strings.Builder
	html.Render(&b, w.doc)
	return b.String()
}

// Mount inserts the container described by m after its anchor. It returns
// false when the container already exists or no anchor is present.
func (w *Window) Mount(_ context.Context, m mount.Spec) (bool, error) {
	byID, err := parseSelector("#" + m.ContainerID)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if byID.first(w.doc) != nil {
		return false, nil
	}

	var anchor *html.Node
	for _, sel := range m.Anchors() {
		s, err := parseSelector(sel)
		if err != nil {
			return false, err
		}
		if anchor = s.first(w.doc); anchor != nil {
			break
		}
	}
	if anchor == nil || anchor.Parent == nil {
		return false, nil
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	setAttr(container, "id", m.ContainerID)
	setAttr(container, "data-formwatch", "mount")
	if m.Template != "" {
		nodes, err := html.ParseFragment(strings.NewReader(m.Template), container)
		if err != nil {
			return false, fmt.Errorf("memdom: parse template: %w", err)
		}
		for _, n := range nodes {
			container.AppendChild(n)
		}
	}
	anchor.Parent.InsertBefore(container, anchor.NextSibling)
	w.recordLocked(event.Record{Op: event.OpInsert, NodeType: nodeType(container), Tag: "div"})
	return true, nil
}

// Close is a no-op; it lets Window satisfy the watcher's page interface.
func (w *Window) Close() error { return nil }

func (w *Window) matchLocked(s *selector) *html.Node {
	if s.matches(w.doc) {
		return w.doc
	}
	return s.first(w.doc)
}

func (w *Window) recordLocked(rec event.Record) {
	for _, sub := range w.subs {
		sub.pending = append(sub.pending, rec)
	}
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	}
	return 0
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
