package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formwatch/navigation"
)

const navBinding = "__formwatch_nav"

// navHookJS reports the page's own history changes through the navigation
// binding: pushState and replaceState are wrapped, popstate is forwarded.
// The unwrapped functions stay on window for PushState and ReplaceState,
// which the Navigator already reports.
const navHookJS = `() => {
	if (window.__formwatch_navhook) return;
	window.__formwatch_navhook = true;
	const report = (kind) => {
		if (typeof window.__formwatch_nav === "function") window.__formwatch_nav(kind);
	};
	const push = history.pushState;
	const replace = history.replaceState;
	window.__formwatch_push = push;
	window.__formwatch_replace = replace;
	history.pushState = function (...args) {
		const r = push.apply(this, args);
		report("push");
		return r;
	};
	history.replaceState = function (...args) {
		const r = replace.apply(this, args);
		report("replace");
		return r;
	};
	window.addEventListener("popstate", () => report("traverse"));
}`

// navKind decodes a navigation binding payload.
func navKind(payload string) (navigation.Kind, bool) {
	switch k := navigation.Kind(payload); k {
	case navigation.KindPush, navigation.KindReplace, navigation.KindTraverse:
		return k, true
	}
	return "", false
}

// installNavSignal hooks history and popstate into the navigation binding,
// for the current document and every later one.
func (t *Tab) installNavSignal() error {
	if err := (proto.RuntimeAddBinding{Name: navBinding}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: add nav binding: %w", err)
	}
	if _, err := t.Page.EvalOnNewDocument("(" + navHookJS + ")()"); err != nil {
		return fmt.Errorf("browser: install history hook: %w", err)
	}
	if _, err := t.Page.Eval(navHookJS); err != nil {
		return fmt.Errorf("browser: history hook: %w", err)
	}
	return nil
}

// PushState calls the unwrapped history.pushState, so the page hook stays
// silent; no popstate is fired.
func (t *Tab) PushState(ctx context.Context, url string) error {
	js := `(u) => (window.__formwatch_push || history.pushState).call(history, history.state, "", u)`
	if _, err := t.Page.Context(ctx).Eval(js, url); err != nil {
		return fmt.Errorf("browser: pushState: %w", err)
	}
	return nil
}

// ReplaceState calls the unwrapped history.replaceState.
func (t *Tab) ReplaceState(ctx context.Context, url string) error {
	js := `(u) => (window.__formwatch_replace || history.replaceState).call(history, history.state, "", u)`
	if _, err := t.Page.Context(ctx).Eval(js, url); err != nil {
		return fmt.Errorf("browser: replaceState: %w", err)
	}
	return nil
}

// Location returns location.href.
func (t *Tab) Location(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return res.Value.Str(), nil
}

// Back traverses one entry back.
func (t *Tab) Back(ctx context.Context) error {
	return t.Page.Context(ctx).NavigateBack()
}

// Forward traverses one entry forward.
func (t *Tab) Forward(ctx context.Context) error {
	return t.Page.Context(ctx).NavigateForward()
}

// OnNavigate registers fn for navigations the page makes itself: history
// calls from page scripts, traversal and document loads.
func (t *Tab) OnNavigate(fn func(navigation.Kind)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTabClosed
	}
	id := t.nextNav
	t.nextNav++
	t.navSubs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.navSubs, id)
		t.mu.Unlock()
	}, nil
}

func (t *Tab) signal(kind navigation.Kind) {
	t.mu.Lock()
	fns := make([]func(navigation.Kind), 0, len(t.navSubs))
	for id := 0; id < t.nextNav; id++ {
		if fn, ok := t.navSubs[id]; ok {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(kind)
	}
}
