// CLAUDE:SUMMARY Converts the product section HTML into Markdown context with a title and content hash.
// Package product turns the product section of a listing page into the
// Markdown context attached to a Detection.
package product

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/formwatch/event"
)

// DefaultMaxLen caps the Markdown kept per detection.
const DefaultMaxLen = 16 << 10

// Extractor converts product HTML to Markdown.
type Extractor struct {
	conv   *converter.Converter
	maxLen int
}

// NewExtractor creates an Extractor. maxLen <= 0 uses DefaultMaxLen.
func NewExtractor(maxLen int) *Extractor {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Extractor{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		maxLen: maxLen,
	}
}

// Extract converts rawHTML, resolving relative links against pageURL.
func (e *Extractor) Extract(rawHTML, pageURL string) (event.Product, error) {
	md, err := e.conv.ConvertString(rawHTML, converter.WithDomain(pageURL))
	if err != nil {
		return event.Product{}, fmt.Errorf("product: convert: %w", err)
	}
	md = strings.TrimSpace(md)
	if len(md) > e.maxLen {
		md = truncate(md, e.maxLen)
	}

	return event.Product{
		Title:    findTitle(rawHTML),
		Markdown: md,
		Hash:     event.Hash(md),
	}, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// findTitle returns the text of the first <h1>, falling back to <title>.
func findTitle(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	for _, a := range []atom.Atom{atom.H1, atom.Title} {
		if n := findFirst(doc, a); n != nil {
			if t := strings.Join(strings.Fields(textOf(n)), " "); t != "" {
				return t
			}
		}
	}
	return ""
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
		b.WriteByte(' ')
	}
	return b.String()
}
