package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Cascade is an ordered list of fallback selectors for one field.
// Selectors are tried in declaration order and the first success wins.
type Cascade struct {
	field     string
	selectors []string
	matchers  []cascadia.Selector
	accept    func(string) bool

	// trace is called with the index of every selector tried
	trace func(index int)
}

// NewCascade compiles the selectors for a field. Selectors that fail to
// compile are dropped so one stale pattern can't break the whole field.
func NewCascade(field string, selectors []string, accept func(string) bool) *Cascade {
	c := &Cascade{field: field, accept: accept}
	for _, s := range selectors {
		m, err := cascadia.Compile(s)
		if err != nil {
			log.Warn().Err(err).Str("component", "scraper").Str("field", field).Str("selector", s).Msg("Skipping invalid selector")
			continue
		}
		c.selectors = append(c.selectors, s)
		c.matchers = append(c.matchers, m)
	}
	return c
}

// Field returns the semantic field name (container, name, price, link)
func (c *Cascade) Field() string {
	return c.field
}

// Selectors returns the compiled selector strings in order
func (c *Cascade) Selectors() []string {
	return c.selectors
}

// Text returns the stripped text of the first element matched by the first
// selector that yields acceptable, non-empty text, and that selector's index.
// It returns ("", -1) when no selector succeeds.
func (c *Cascade) Text(sel *goquery.Selection) (string, int) {
	for i, m := range c.matchers {
		c.tried(i)
		first := sel.FindMatcher(m).First()
		if first.Length() == 0 {
			continue
		}
		text := StrippedText(first)
		if c.ok(text) {
			return text, i
		}
	}
	return "", -1
}

// Attr returns the first non-empty value of attr on the first element
// matched by each selector in turn.
func (c *Cascade) Attr(sel *goquery.Selection, attr string) (string, int) {
	for i, m := range c.matchers {
		c.tried(i)
		first := sel.FindMatcher(m).First()
		if first.Length() == 0 {
			continue
		}
		value, exists := first.Attr(attr)
		value = strings.TrimSpace(value)
		if exists && c.ok(value) {
			return value, i
		}
	}
	return "", -1
}

// All returns the matches of the first selector that matches anything,
// truncated to limit. Matches from different selectors are never merged.
func (c *Cascade) All(sel *goquery.Selection, limit int) (*goquery.Selection, int) {
	for i, m := range c.matchers {
		c.tried(i)
		found := sel.FindMatcher(m)
		if found.Length() == 0 {
			continue
		}
		if limit > 0 && found.Length() > limit {
			found = found.Slice(0, limit)
		}
		return found, i
	}
	return sel.Slice(0, 0), -1
}

func (c *Cascade) ok(value string) bool {
	if value == "" {
		return false
	}
	if c.accept != nil {
		return c.accept(value)
	}
	return true
}

func (c *Cascade) tried(i int) {
	if c.trace != nil {
		c.trace(i)
	}
}

// StrippedText concatenates the trimmed text nodes under the selection,
// skipping whitespace-only nodes, so "₹ <b>50,000</b>" reads "₹50,000".
func StrippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(strings.TrimSpace(n.Data))
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
