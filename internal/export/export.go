// Package export renders a grouped view of records as CSV, Markdown, HTML or PDF.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/TobiSchelling/sciencesync/internal/aggregate"
	"github.com/TobiSchelling/sciencesync/internal/article"
)

type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
	HTML     Format = "html"
	PDF      Format = "pdf"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a format name or its file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "html", "htm":
		return HTML, nil
	case "pdf":
		return PDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension returns the file extension for a format, with the dot.
func (f Format) Extension() string {
	if f == Markdown {
		return ".md"
	}
	return "." + string(f)
}

// Document is what gets exported: a titled grouped view.
type Document struct {
	Title string
	View  *aggregate.View
}

// Write renders doc in the given format.
func Write(w io.Writer, format Format, doc Document) error {
	if doc.View == nil {
		return errors.New("export: nil view")
	}
	if doc.Title == "" {
		doc.Title = "Citation digest"
	}
	switch format {
	case CSV:
		return writeCSV(w, doc)
	case Markdown:
		_, err := io.WriteString(w, renderMarkdown(doc))
		return err
	case HTML:
		return writeHTML(w, doc)
	case PDF:
		return writePDF(w, doc)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// section is a group as rendered: a heading plus its records. Unassigned records become
// a trailing section.
type section struct {
	label   string
	name    string
	records []article.Record
}

func sections(v *aggregate.View) []section {
	var out []section
	for _, g := range v.Groups() {
		out = append(out, section{label: fmt.Sprint(g.Label), name: g.Name, records: g.Records})
	}
	if un := v.Unassigned(); len(un) > 0 {
		out = append(out, section{name: "Unassigned", records: un})
	}
	return out
}

func year(r article.Record) string {
	if r.PublicationDate == nil {
		return ""
	}
	return fmt.Sprint(r.PublicationDate.Year)
}
