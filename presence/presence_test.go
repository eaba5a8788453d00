package presence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/internal/memdom"
)

const formSelector = `[data-test="comment-form"]`

func newObserver(t *testing.T) (*memdom.Window, *Observer) {
	t.Helper()
	w := memdom.Blank("https://example.com/posts/widget")
	return w, New(Config{Document: w, Selector: formSelector})
}

func TestAbsentNeverFires(t *testing.T) {
	w, o := newObserver(t)
	var calls atomic.Int32
	s, err := o.Start(context.Background(), func(*Session) { calls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	for i := 0; i < 5; i++ {
		w.AppendHTML("body", `<div class="card"><p>noise</p></div>`)
		w.Flush()
	}
	w.Remove("div.card")
	w.Flush()

	if calls.Load() != 0 {
		t.Errorf("onFound called %d times, want 0", calls.Load())
	}
}

func TestFirstMatchOncePerBatch(t *testing.T) {
	w, o := newObserver(t)
	var calls atomic.Int32
	s, _ := o.Start(context.Background(), func(*Session) { calls.Add(1) })
	defer s.Stop()

	// Several qualifying insertions land in a single batch.
	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.AppendHTML("body", `<span></span>`)
	w.Flush()

	if calls.Load() != 1 {
		t.Errorf("onFound called %d times, want 1", calls.Load())
	}
	if s.Found() != 1 {
		t.Errorf("Found: got %d, want 1", s.Found())
	}
}

func TestStartTwiceKeepsOneWatch(t *testing.T) {
	w, o := newObserver(t)
	var first, second atomic.Int32

	s1, _ := o.Start(context.Background(), func(*Session) { first.Add(1) })
	s2, _ := o.Start(context.Background(), func(*Session) { second.Add(1) })
	defer s2.Stop()

	if w.Subscribers() != 1 {
		t.Fatalf("Subscribers: got %d, want 1", w.Subscribers())
	}
	if s1.Active() || !s2.Active() {
		t.Fatalf("Active: s1=%v s2=%v", s1.Active(), s2.Active())
	}
	if s2.Generation() <= s1.Generation() {
		t.Errorf("generation did not increase: %d -> %d", s1.Generation(), s2.Generation())
	}

	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.Flush()

	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("calls: first=%d second=%d, want 0 and 1", first.Load(), second.Load())
	}
}

func TestStopSilencesLaterBatches(t *testing.T) {
	w, o := newObserver(t)
	var calls atomic.Int32
	s, _ := o.Start(context.Background(), func(*Session) { calls.Add(1) })

	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	s.Stop()
	w.Flush()
	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.Flush()

	if calls.Load() != 0 {
		t.Errorf("onFound called %d times after Stop", calls.Load())
	}
	if o.Active() != nil {
		t.Error("Observer still reports an active session")
	}

	// Idempotent and nil-safe.
	s.Stop()
	o.Stop(nil)
	var nilSession *Session
	nilSession.Stop()
}

func TestRemoveAndReinsertFiresAgain(t *testing.T) {
	w, o := newObserver(t)
	var calls atomic.Int32
	s, _ := o.Start(context.Background(), func(*Session) { calls.Add(1) })
	defer s.Stop()

	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.Flush()
	if calls.Load() != 1 {
		t.Fatalf("after insert: %d calls, want 1", calls.Load())
	}

	w.Remove(formSelector)
	w.Flush()
	if calls.Load() != 1 {
		t.Fatalf("after remove: %d calls, want 1", calls.Load())
	}

	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.Flush()
	if calls.Load() != 2 {
		t.Errorf("after re-insert: %d calls, want 2", calls.Load())
	}
}

func TestAttributeBatchesDoNotQuery(t *testing.T) {
	w, _ := memdom.Parse(`<html><body><div data-test="comment-form"></div></body></html>`, "https://example.com/")
	doc := &countingDoc{Document: w}
	o := New(Config{Document: doc, Selector: formSelector})

	var calls atomic.Int32
	s, _ := o.Start(context.Background(), func(*Session) { calls.Add(1) })
	defer s.Stop()

	w.SetAttr(formSelector, "class", "expanded")
	w.Flush()

	if doc.queries.Load() != 0 || calls.Load() != 0 {
		t.Errorf("queries=%d calls=%d, want 0 and 0", doc.queries.Load(), calls.Load())
	}
}

func TestStaleSessionDropsQueuedBatch(t *testing.T) {
	doc := &manualDoc{found: true}
	o := New(Config{Document: doc, Selector: formSelector})

	var calls atomic.Int32
	s, _ := o.Start(context.Background(), func(*Session) { calls.Add(1) })
	queued := doc.fn

	// A batch the host had already queued arrives after Stop.
	s.Stop()
	queued(event.Batch{Records: []event.Record{{Op: event.OpInsert}}})

	if calls.Load() != 0 {
		t.Errorf("stale batch fired onFound %d times", calls.Load())
	}
}

func TestBatchDuringObserveCarriesSession(t *testing.T) {
	doc := &eagerDoc{}
	o := New(Config{Document: doc, Selector: formSelector})

	var got []*Session
	s, err := o.Start(context.Background(), func(fired *Session) { got = append(got, fired) })
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if len(got) != 1 || got[0] != s {
		t.Fatalf("onFound sessions: got %v, want [%p]", got, s)
	}
	if got[0].Generation() == 0 {
		t.Error("session generation is 0")
	}
}

func TestStartWithoutRoot(t *testing.T) {
	w, o := newObserver(t)
	w.DetachBody()

	_, err := o.Start(context.Background(), func(*Session) {})
	if !errors.Is(err, memdom.ErrNoBody) {
		t.Fatalf("Start: got %v, want ErrNoBody", err)
	}
	if o.Active() != nil {
		t.Error("failed Start left an active session")
	}
}

func TestStopFromCallback(t *testing.T) {
	w, o := newObserver(t)
	var calls atomic.Int32
	o.Start(context.Background(), func(s *Session) {
		calls.Add(1)
		s.Stop()
	})

	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.Flush()
	w.AppendHTML("body", `<div data-test="comment-form"></div>`)
	w.Flush()

	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
}

type countingDoc struct {
	Document
	queries atomic.Int32
}

func (d *countingDoc) Query(ctx context.Context, sel string) (bool, error) {
	d.queries.Add(1)
	return d.Document.Query(ctx, sel)
}

// manualDoc hands its callback to the test instead of delivering.
type manualDoc struct {
	fn    func(event.Batch)
	found bool
}

func (d *manualDoc) Observe(_ context.Context, fn func(event.Batch)) (func(), error) {
	d.fn = fn
	return func() {}, nil
}

func (d *manualDoc) Query(context.Context, string) (bool, error) { return d.found, nil }

// eagerDoc delivers a matching insert batch before Observe returns, as a
// host with a separate delivery goroutine may.
type eagerDoc struct{}

func (eagerDoc) Observe(_ context.Context, fn func(event.Batch)) (func(), error) {
	fn(event.Batch{Seq: 1, Records: []event.Record{{Op: event.OpInsert, NodeType: 1, Tag: "div"}}})
	return func() {}, nil
}

func (eagerDoc) Query(context.Context, string) (bool, error) { return true, nil }
