package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fragment is the markup of one entry span. The DOM is parsed lazily and only once.
type Fragment struct {
	Raw string

	parsed bool
	doc    *goquery.Document
}

// NewFragment wraps the markup of one entry.
func NewFragment(raw string) *Fragment {
	return &Fragment{Raw: raw}
}

// Doc returns the parsed fragment, or nil when the markup could not be parsed.
func (f *Fragment) Doc() *goquery.Document {
	if !f.parsed {
		f.parsed = true
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.Raw))
		if err == nil {
			f.doc = doc
		}
	}
	return f.doc
}

// Text returns the visible text of the fragment with whitespace collapsed.
func (f *Fragment) Text() string {
	if doc := f.Doc(); doc != nil {
		return cleanText(doc.Text())
	}
	return stripTags(f.Raw)
}

// FieldPattern pulls one field value out of an entry fragment. An empty result means the
// field is absent; patterns never fail.
type FieldPattern interface {
	Match(f *Fragment) string
}

// Selector matches the first element selected by CSS and returns its text, or the value of
// Attr when set.
type Selector struct {
	CSS  string
	Attr string
}

// Match implements FieldPattern.
func (s Selector) Match(f *Fragment) string {
	doc := f.Doc()
	if doc == nil {
		return ""
	}
	sel := doc.Find(s.CSS).First()
	if sel.Length() == 0 {
		return ""
	}
	if s.Attr != "" {
		v, _ := sel.Attr(s.Attr)
		return strings.TrimSpace(v)
	}
	return cleanText(sel.Text())
}

// Regex matches Expr against the fragment and returns capture group Group (0 for the whole
// match). With OnText the expression runs against the visible text instead of the markup.
type Regex struct {
	Expr   *regexp.Regexp
	Group  int
	OnText bool
}

// Match implements FieldPattern.
func (r Regex) Match(f *Fragment) string {
	input := f.Raw
	if r.OnText {
		input = f.Text()
	}
	return matchGroup(r.Expr, input, r.Group)
}

// Within applies Expr to the value produced by Scope.
type Within struct {
	Scope FieldPattern
	Expr  *regexp.Regexp
	Group int
}

// Match implements FieldPattern.
func (w Within) Match(f *Fragment) string {
	scoped := w.Scope.Match(f)
	if scoped == "" {
		return ""
	}
	return matchGroup(w.Expr, scoped, w.Group)
}

// FirstOf returns the first non-empty result of its patterns.
type FirstOf []FieldPattern

// Match implements FieldPattern.
func (p FirstOf) Match(f *Fragment) string {
	for _, fp := range p {
		if v := fp.Match(f); v != "" {
			return v
		}
	}
	return ""
}

func matchGroup(expr *regexp.Regexp, input string, group int) string {
	m := expr.FindStringSubmatch(input)
	if m == nil || group >= len(m) {
		return ""
	}
	return stripTags(m[group])
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// stripTags removes markup, decodes entities and collapses whitespace.
func stripTags(s string) string {
	return cleanText(html.UnescapeString(tagPattern.ReplaceAllString(s, " ")))
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
