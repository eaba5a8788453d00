package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formwatch/event"
)

// observeJS installs a MutationObserver on document.body reporting
// insertions and removals through the named binding. One invocation of the
// observer callback is one binding call.
const observeJS = `(name) => {
	if (!document.body) return false;
	const describe = (op, n) => ({
		op: op,
		node_type: n.nodeType,
		tag: n.nodeType === 1 ? n.nodeName.toLowerCase() : "",
	});
	const obs = new MutationObserver((list) => {
		const recs = [];
		for (const m of list) {
			for (const n of m.addedNodes) recs.push(describe("insert", n));
			for (const n of m.removedNodes) recs.push(describe("remove", n));
		}
		if (recs.length && typeof window[name] === "function") {
			window[name](JSON.stringify(recs));
		}
	});
	obs.observe(document.body, { childList: true, subtree: true });
	(window.__formwatch_observers = window.__formwatch_observers || {})[name] = obs;
	return true;
}`

const disconnectJS = `(name) => {
	const all = window.__formwatch_observers || {};
	if (all[name]) { all[name].disconnect(); delete all[name]; }
}`

// Observe subscribes fn to structural mutations under document.body. The
// returned cancel stops delivery immediately and tears down the page side
// asynchronously.
func (t *Tab) Observe(ctx context.Context, fn func(event.Batch)) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTabClosed
	}
	t.nextSub++
	name := fmt.Sprintf("__formwatch_mut_%d", t.nextSub)
	t.mu.Unlock()

	page := t.Page.Context(ctx)
	if err := (proto.RuntimeAddBinding{Name: name}).Call(page); err != nil {
		return nil, fmt.Errorf("browser: add binding: %w", err)
	}

	// Register before installing so the first batch cannot be missed.
	t.mu.Lock()
	t.subs[name] = &subscription{fn: fn}
	t.mu.Unlock()

	res, err := page.Eval(observeJS, name)
	if err == nil && !res.Value.Bool() {
		err = ErrNoBody
	}
	if err != nil {
		t.unsubscribe(name)
		return nil, fmt.Errorf("browser: observe: %w", err)
	}

	return func() { t.unsubscribe(name) }, nil
}

func (t *Tab) unsubscribe(name string) {
	t.mu.Lock()
	_, ok := t.subs[name]
	delete(t.subs, name)
	closed := t.closed
	t.mu.Unlock()
	if !ok || closed {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		page := t.Page.Context(ctx)
		if _, err := page.Eval(disconnectJS, name); err != nil {
			t.logger.Debug("browser: disconnect observer", "binding", name, "error", err)
		}
		if err := (proto.RuntimeRemoveBinding{Name: name}).Call(page); err != nil {
			t.logger.Debug("browser: remove binding", "binding", name, "error", err)
		}
	}()
}

func (t *Tab) deliver(name, payload string) {
	t.mu.Lock()
	sub, ok := t.subs[name]
	if !ok {
		t.mu.Unlock()
		return
	}
	sub.seq++
	seq := sub.seq
	t.mu.Unlock()

	var recs []event.Record
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		t.logger.Warn("browser: parse binding payload", "binding", name, "error", err)
		return
	}
	sub.fn(event.Batch{Seq: seq, Records: recs, Timestamp: time.Now().UnixMilli()})
}
