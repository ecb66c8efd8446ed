package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Format describes how one family of alert bodies is laid out: where entries start and how
// each field is found inside an entry. Supporting a new alert source means adding a Format.
type Format struct {
	Name     string
	Boundary Boundary

	Title    FieldPattern
	Link     FieldPattern
	Byline   FieldPattern // "A Author, B Author - Venue, 2021"
	Authors  FieldPattern // overrides the author part of Byline when set
	Date     FieldPattern
	Snippet  FieldPattern
	SaveLink FieldPattern
}

// AutoFormat selects a format per alert body with Detect.
const AutoFormat = "auto"

var (
	yearAtEnd = regexp.MustCompile(`(?:^|[\s,])((?:1[89]|20)\d{2})\s*$`)

	// The byline div is green; Outlook adds a space after the colon or drops line-height.
	scholarByline = FirstOf{
		Selector{CSS: `div[style*="color:#006621"]`},
		Selector{CSS: `div[style*="color: #006621"]`},
	}
)

// Scholar matches Google Scholar alert emails, including the Outlook rendering that
// rewrites class names (m_-<digits>gse_alrt_title) and inserts spaces into inline styles.
var Scholar = Format{
	Name: "scholar",
	Boundary: MarkerBoundary{
		Marker: regexp.MustCompile(`(?i)<h3[\s>]`),
		End:    regexp.MustCompile(`(?i)This message was sent by Google Scholar`),
	},
	Title: FirstOf{
		Selector{CSS: `a[class*="gse_alrt_title"]`},
		Selector{CSS: `h3 a`},
		Selector{CSS: `h3`},
	},
	Link: FirstOf{
		Selector{CSS: `a[class*="gse_alrt_title"]`, Attr: "href"},
		Selector{CSS: `h3 a`, Attr: "href"},
	},
	Byline: scholarByline,
	Date:   Within{Scope: scholarByline, Expr: yearAtEnd, Group: 1},
	Snippet: FirstOf{
		Selector{CSS: `div[class*="gse_alrt_sni"]`},
	},
	SaveLink: Selector{CSS: `a:has(img[alt="Save"])`, Attr: "href"},
}

// Plain matches plain-text alerts made of blank-line separated blocks with labelled lines:
//
//	Title: ...
//	Authors: A, B
//	Date: 2021-03-04
//	Link: https://...
//	Snippet: ...
var Plain = Format{
	Name:     "plain",
	Boundary: BlockBoundary{},
	Title:    labelled("title"),
	Link: FirstOf{
		labelled("link"),
		labelled("url"),
	},
	Authors: FirstOf{
		labelled("authors"),
		labelled("author"),
	},
	Byline: labelled("venue"),
	Date: FirstOf{
		labelled("date"),
		labelled("published"),
	},
	Snippet: FirstOf{
		labelled("snippet"),
		labelled("abstract"),
	},
}

func labelled(label string) FieldPattern {
	return Regex{
		Expr:  regexp.MustCompile(`(?mi)^[ \t]*` + regexp.QuoteMeta(label) + `[ \t]*:[ \t]*(.+?)[ \t]*\r?$`),
		Group: 1,
	}
}

var formats = map[string]Format{
	Scholar.Name: Scholar,
	Plain.Name:   Plain,
}

// Lookup returns the named format.
func Lookup(name string) (Format, error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return Format{}, fmt.Errorf("unknown alert format %q (known: %s, %s)",
			name, AutoFormat, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names lists the registered format names.
func Names() []string {
	names := make([]string, 0, len(formats))
	for n := range formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var markupPattern = regexp.MustCompile(`(?i)<(h3|div|a|table|html|body)[\s>]`)

// Detect picks Scholar for markup bodies and Plain for everything else.
func Detect(body string) Format {
	if strings.Contains(body, "gse_alrt") || markupPattern.MatchString(body) {
		return Scholar
	}
	return Plain
}
