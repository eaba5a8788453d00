// CLAUDE:SUMMARY CSS selector subset (compound, :not, descendant, lists) evaluated over x/net/html trees.
package memdom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Supported selectors:
//   - tag:               "textarea", "div"
//   - #id, .class:       "#main", ".comment"
//   - [attr]:            "[placeholder]"
//   - [attr=val]:        `[data-test="comment-form"]`
//   - :not(compound):    `:not([placeholder=""])`
//   - compounds:         `textarea[placeholder]:not([placeholder=""])`
//   - descendant:        "main form textarea"
//   - lists:             "form, textarea"

// selector is a parsed selector list; any alternative may match.
type selector struct {
	alts [][]compound // each alternative is a descendant chain
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
	not     []compound
}

type attrMatch struct {
	key    string
	val    string
	hasVal bool
}

func parseSelector(src string) (*selector, error) {
	var sel selector
	for _, alt := range splitTop(src, ',') {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("memdom: empty selector in %q", src)
		}
		var chain []compound
		for _, part := range splitDescendants(alt) {
			c, err := parseCompound(part)
			if err != nil {
				return nil, err
			}
			chain = append(chain, c)
		}
		sel.alts = append(sel.alts, chain)
	}
	if len(sel.alts) == 0 {
		return nil, fmt.Errorf("memdom: empty selector")
	}
	return &sel, nil
}

// splitTop splits s on sep when not inside brackets, parens or quotes.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func splitDescendants(s string) []string {
	var out []string
	for _, p := range splitTop(strings.Join(strings.Fields(s), " "), ' ') {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	for i < len(s) && isIdent(s[i]) {
		i++
	}
	c.tag = strings.ToLower(s[:i])
	if c.tag == "*" {
		c.tag = ""
	}

	for i < len(s) {
		switch s[i] {
		case '#', '.':
			j := i + 1
			for j < len(s) && isIdent(s[j]) {
				j++
			}
			if s[i] == '#' {
				c.id = s[i+1 : j]
			} else {
				c.classes = append(c.classes, s[i+1:j])
			}
			i = j
		case '[':
			end := closing(s, i, '[', ']')
			if end < 0 {
				return c, fmt.Errorf("memdom: unterminated attribute in %q", s)
			}
			c.attrs = append(c.attrs, parseAttr(s[i+1:end]))
			i = end + 1
		case ':':
			if !strings.HasPrefix(s[i:], ":not(") {
				return c, fmt.Errorf("memdom: unsupported pseudo-class in %q", s)
			}
			open := i + len(":not")
			end := closing(s, open, '(', ')')
			if end < 0 {
				return c, fmt.Errorf("memdom: unterminated :not in %q", s)
			}
			inner, err := parseCompound(strings.TrimSpace(s[open+1 : end]))
			if err != nil {
				return c, err
			}
			c.not = append(c.not, inner)
			i = end + 1
		default:
			return c, fmt.Errorf("memdom: unexpected %q in selector %q", s[i], s)
		}
	}
	return c, nil
}

func parseAttr(s string) attrMatch {
	if eq := strings.IndexByte(s, '='); eq >= 0 {
		return attrMatch{
			key:    strings.TrimSpace(s[:eq]),
			val:    strings.Trim(strings.TrimSpace(s[eq+1:]), `"'`),
			hasVal: true,
		}
	}
	return attrMatch{key: strings.TrimSpace(s)}
}

// closing returns the index of the delimiter matching s[open], skipping
// quoted text, or -1.
func closing(s string, open int, l, r byte) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == l:
			depth++
		case c == r:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdent(c byte) bool {
	return c == '-' || c == '_' || c == '*' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// matches reports whether n matches any alternative of the selector.
func (sel *selector) matches(n *html.Node) bool {
	for _, chain := range sel.alts {
		if matchChain(n, chain) {
			return true
		}
	}
	return false
}

// matchChain matches the last compound against n and the rest against
// ancestors, right to left.
func matchChain(n *html.Node, chain []compound) bool {
	last := len(chain) - 1
	if !chain[last].matches(n) {
		return false
	}
	i := last - 1
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if chain[i].matches(p) {
			i--
		}
	}
	return i < 0
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && getAttr(n, "id") != c.id {
		return false
	}
	for _, cls := range c.classes {
		if !hasClass(n, cls) {
			return false
		}
	}
	for _, a := range c.attrs {
		val, ok := lookupAttr(n, a.key)
		if !ok || (a.hasVal && val != a.val) {
			return false
		}
	}
	for _, neg := range c.not {
		if neg.matches(n) {
			return false
		}
	}
	return true
}

// first returns the first element under root (excluding root) in document
// order that matches sel.
func (sel *selector) first(root *html.Node) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if sel.matches(c) {
			return c
		}
		if found := sel.first(c); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
