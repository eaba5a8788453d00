package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/formwatch/dbopen"
	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/internal/sink"
)

var _ sink.Sink = (*Store)(nil)

func testStore(t *testing.T, env string) *Store {
	t.Helper()
	s, err := New(dbopen.OpenMemory(t), env)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPrefixByEnv(t *testing.T) {
	for env, want := range map[string]string{"production": "", "development": "dev_", "": "dev_"} {
		if got := PrefixByEnv(env); got != want {
			t.Errorf("PrefixByEnv(%q) = %q, want %q", env, got, want)
		}
	}
}

func TestDevTablesArePrefixed(t *testing.T) {
	s := testStore(t, "development")
	ctx := context.Background()

	if err := s.RecordDetection(ctx, event.Detection{ID: "det_1", PageID: "p", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM dev_detections`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("dev_detections: %d rows", n)
	}
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&n); err == nil {
		t.Error("unprefixed table exists outside production")
	}
}

func TestDetectionsRoundTrip(t *testing.T) {
	s := testStore(t, "production")
	ctx := context.Background()

	for i, id := range []string{"det_a", "det_b", "det_c"} {
		d := event.Detection{
			ID: id, PageID: "widget", PageURL: "https://example.com/posts/widget",
			Selector: `[data-test="comment-form"]`, Session: uint64(i + 1),
			Container: "PH-Copilot-Container",
			Product:   event.Product{Title: "Widget", Markdown: "# Widget", Hash: "h"},
			Timestamp: int64(100 + i),
		}
		if err := s.SendDetection(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	s.RecordDetection(ctx, event.Detection{ID: "det_x", PageID: "other", Timestamp: 50})
	// Duplicate IDs are ignored.
	if err := s.RecordDetection(ctx, event.Detection{ID: "det_a", PageID: "widget", Timestamp: 999}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListDetections(ctx, "widget", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "det_c" || got[1].ID != "det_b" {
		t.Fatalf("ListDetections: %+v", got)
	}
	if got[0].Session != 3 || got[0].Product.Markdown != "# Widget" {
		t.Errorf("fields: %+v", got[0])
	}

	all, _ := s.ListDetections(ctx, "", 0)
	if len(all) != 4 {
		t.Errorf("all pages: %d", len(all))
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Detections != 4 || st.Pages != 2 || st.LastSeen != 102 {
		t.Errorf("Stats: %+v", st)
	}
}

func TestNavigations(t *testing.T) {
	s := testStore(t, "development")
	ctx := context.Background()

	s.SendNavigation(ctx, event.Navigation{ID: "nav_1", PageID: "p", Seq: 1, Kind: "push", URL: "https://e/a", Timestamp: 10})
	s.SendNavigation(ctx, event.Navigation{ID: "nav_2", PageID: "p", Seq: 2, Kind: "traverse", URL: "https://e/", Timestamp: 10})

	got, err := s.ListNavigations(ctx, "p", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[0].Kind != "traverse" {
		t.Errorf("ListNavigations: %+v", got)
	}
	st, _ := s.Stats(ctx)
	if st.Navigations != 2 || st.Detections != 0 {
		t.Errorf("Stats: %+v", st)
	}
}

func TestEmptyListsAreNotNil(t *testing.T) {
	s := testStore(t, "production")
	ctx := context.Background()

	ds, err := s.ListDetections(ctx, "nobody", 0)
	if err != nil || ds == nil {
		t.Errorf("ListDetections: %#v, %v", ds, err)
	}
	ns, err := s.ListNavigations(ctx, "", 0)
	if err != nil || ns == nil {
		t.Errorf("ListNavigations: %#v, %v", ns, err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "formwatch.db")
	s, err := Open(path, "production")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Prefix() != "" {
		t.Errorf("Prefix: %q", s.Prefix())
	}
}
