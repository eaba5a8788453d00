package product

import (
	"strings"
	"testing"
)

const section = `<main>
<h1>Widget Pro</h1>
<p>The <strong>best</strong> widget. See <a href="/docs">docs</a>.</p>
<ul><li>Fast</li><li>Small</li></ul>
</main>`

func TestExtract(t *testing.T) {
	e := NewExtractor(0)
	p, err := e.Extract(section, "https://example.com/posts/widget")
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Widget Pro" {
		t.Errorf("Title: got %q", p.Title)
	}
	for _, want := range []string{"# Widget Pro", "**best**", "[docs](", "- Fast"} {
		if !strings.Contains(p.Markdown, want) {
			t.Errorf("Markdown missing %q:\n%s", want, p.Markdown)
		}
	}
	if len(p.Hash) != 64 {
		t.Errorf("Hash length: %d", len(p.Hash))
	}
}

func TestExtract_TitleFallback(t *testing.T) {
	e := NewExtractor(0)
	p, err := e.Extract(`<html><head><title> Listing </title></head><body><p>x</p></body></html>`, "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Listing" {
		t.Errorf("Title: got %q, want %q", p.Title, "Listing")
	}
}

func TestExtract_Truncates(t *testing.T) {
	e := NewExtractor(10)
	p, err := e.Extract(`<p>`+strings.Repeat("é", 50)+`</p>`, "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Markdown) > 10 {
		t.Errorf("Markdown length: got %d, want <= 10", len(p.Markdown))
	}
	if !strings.HasPrefix(strings.Repeat("é", 5), p.Markdown) {
		t.Errorf("truncation split a rune: %q", p.Markdown)
	}
}
