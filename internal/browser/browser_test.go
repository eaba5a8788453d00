package browser

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formwatch/navigation"
)

func TestBlockList(t *testing.T) {
	bl := parseBlockList([]string{"images", "Font", " stylesheets ", "xhr", "scripts", "unknown"})
	tests := []struct {
		resType proto.NetworkResourceType
		want    bool
	}{
		{proto.NetworkResourceTypeImage, true},
		{proto.NetworkResourceTypeFont, true},
		{proto.NetworkResourceTypeStylesheet, true},
		{proto.NetworkResourceTypeMedia, false},
		{proto.NetworkResourceTypeXHR, false},
		{proto.NetworkResourceTypeScript, false},
		{proto.NetworkResourceTypeDocument, false},
	}
	for _, tt := range tests {
		if got := bl.blocks(tt.resType); got != tt.want {
			t.Errorf("blocks(%q) = %v, want %v", tt.resType, got, tt.want)
		}
	}
	if len(parseBlockList([]string{"xhr", "document"})) != 0 {
		t.Error("non-blockable names produced entries")
	}
}

func TestParseStealth(t *testing.T) {
	tests := map[string]StealthLevel{
		"":         LevelHeadless,
		"1":        LevelHeadless,
		"headless": LevelHeadless,
		"2":        LevelHeadful,
		"headful":  LevelHeadful,
		"0":        LevelPlain,
	}
	for in, want := range tests {
		if got := ParseStealth(in); got != want {
			t.Errorf("ParseStealth(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.MemoryLimit != 1<<30 || m.cfg.RecycleInterval != 4*time.Hour {
		t.Errorf("defaults: %+v", m.cfg)
	}
	if m.cfg.NavigateTimeout != 30*time.Second || m.cfg.XvfbDisplay != ":99" {
		t.Errorf("defaults: %+v", m.cfg)
	}
	if m.Browser() != nil {
		t.Error("Browser before Start")
	}
}

func TestClosedManager(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if err := m.Start(t.Context()); err != ErrClosed {
		t.Errorf("Start after Close: %v", err)
	}
	if err := m.Recycle(t.Context()); err != ErrClosed {
		t.Errorf("Recycle after Close: %v", err)
	}
}

func TestNavKind(t *testing.T) {
	tests := []struct {
		payload string
		want    navigation.Kind
		ok      bool
	}{
		{"push", navigation.KindPush, true},
		{"replace", navigation.KindReplace, true},
		{"traverse", navigation.KindTraverse, true},
		{"load", "", false},
		{"", "", false},
		{"PUSH", "", false},
	}
	for _, tt := range tests {
		got, ok := navKind(tt.payload)
		if got != tt.want || ok != tt.ok {
			t.Errorf("navKind(%q) = %q, %v; want %q, %v", tt.payload, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSignalInRegistrationOrder(t *testing.T) {
	tab := &Tab{navSubs: make(map[int]func(navigation.Kind))}
	var order []int
	var kinds []navigation.Kind
	cancels := make([]func(), 0, 8)
	for i := 0; i < 8; i++ {
		cancel, err := tab.OnNavigate(func(k navigation.Kind) {
			order = append(order, i)
			kinds = append(kinds, k)
		})
		if err != nil {
			t.Fatal(err)
		}
		cancels = append(cancels, cancel)
	}
	cancels[3]()

	tab.signal(navigation.KindPush)

	want := []int{0, 1, 2, 4, 5, 6, 7}
	if !slices.Equal(order, want) {
		t.Errorf("order: got %v, want %v", order, want)
	}
	for _, k := range kinds {
		if k != navigation.KindPush {
			t.Errorf("kind: got %q", k)
		}
	}
}

func TestOnNavigateClosedTab(t *testing.T) {
	tab := &Tab{navSubs: make(map[int]func(navigation.Kind)), closed: true}
	if _, err := tab.OnNavigate(func(navigation.Kind) {}); err != ErrTabClosed {
		t.Errorf("OnNavigate on closed tab: %v", err)
	}
}

func TestDisplaySocket(t *testing.T) {
	tests := map[string]string{
		":99":   "/tmp/.X11-unix/X99",
		":0.0":  "/tmp/.X11-unix/X0",
		":12.1": "/tmp/.X11-unix/X12",
	}
	for in, want := range tests {
		got, err := displaySocket(in)
		if err != nil || got != want {
			t.Errorf("displaySocket(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "99", ":", ":x1", "host:1"} {
		if _, err := displaySocket(bad); err == nil {
			t.Errorf("displaySocket(%q): expected error", bad)
		}
	}
}

func TestWaitForSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "X42")
	if err := waitForSocket(path, 20*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(path, nil, 0o600)
	}()
	if err := waitForSocket(path, 2*time.Second); err != nil {
		t.Fatal(err)
	}
}
