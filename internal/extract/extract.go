package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/TobiSchelling/sciencesync/internal/article"
)

// Alert is one raw alert message handed over by the mailbox side.
type Alert struct {
	ID         string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Result holds the candidate records found in one alert body.
type Result struct {
	Records []article.Record
	// Skipped counts entries that were located but had no extractable title.
	Skipped int
}

// Extract parses one alert body into candidate records. Entries are parsed independently:
// a missing optional field degrades to empty, and an entry without a title is skipped and
// counted rather than failing the alert.
func Extract(format Format, alert Alert) Result {
	var r Result
	if format.Boundary == nil || format.Title == nil {
		return r
	}

	cited := CitedAuthor(alert.Subject)
	for _, span := range format.Boundary.Spans(alert.Body) {
		rec, ok := extractEntry(format, NewFragment(span.Text(alert.Body)))
		if !ok {
			r.Skipped++
			continue
		}
		rec.CitedAuthor = cited
		rec.AlertSourceID = alert.ID
		rec.ReceivedAt = alert.ReceivedAt
		r.Records = append(r.Records, rec)
	}
	return r
}

func extractEntry(format Format, frag *Fragment) (article.Record, bool) {
	title := match(format.Title, frag)
	if title == "" {
		return article.Record{}, false
	}

	byline := match(format.Byline, frag)
	var authorsText, venue string
	if format.Authors != nil {
		authorsText = match(format.Authors, frag)
		venue = byline
	} else {
		authorsText, venue = SplitByline(byline)
	}

	return article.Record{
		Title:            title,
		Authors:          SplitAuthors(authorsText),
		Venue:            stripTrailingYear(venue),
		RawDate:          match(format.Date, frag),
		SourceLink:       match(format.Link, frag),
		SaveLink:         match(format.SaveLink, frag),
		ReferenceSnippet: match(format.Snippet, frag),
	}, true
}

func match(p FieldPattern, frag *Fragment) string {
	if p == nil {
		return ""
	}
	return cleanText(p.Match(frag))
}

// SplitByline splits a Scholar byline "A Smith, B Jones - Nature, 2021" into the author
// part and the venue part. A byline without a separator is all authors.
func SplitByline(byline string) (authors, venue string) {
	byline = cleanText(byline)
	for _, sep := range []string{" - ", " – ", " — "} {
		if i := strings.Index(byline, sep); i >= 0 {
			return strings.TrimSpace(byline[:i]), strings.TrimSpace(byline[i+len(sep):])
		}
	}
	return byline, ""
}

// SplitAuthors splits an author list on commas (or semicolons), trims each name and drops
// the ellipsis Scholar uses for truncated lists.
func SplitAuthors(text string) []string {
	text = strings.ReplaceAll(text, ";", ",")
	var authors []string
	for _, part := range strings.Split(text, ",") {
		name := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "…"))
		name = strings.TrimSpace(strings.TrimSuffix(name, "..."))
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}
	return authors
}

func stripTrailingYear(venue string) string {
	if loc := yearAtEnd.FindStringIndex(venue); loc != nil {
		venue = venue[:loc[0]]
	}
	return strings.TrimRight(strings.TrimSpace(venue), ",")
}

var citedByPattern = regexp.MustCompile(`(?i)\bby\s+([^,]+)`)

// CitedAuthor returns whose work an alert reports citations to, from its subject line:
// "new citations to articles by Jane Doe" yields "Jane Doe", and alerts about the
// recipient's own articles yield "Yourself".
func CitedAuthor(subject string) string {
	lower := strings.ToLower(subject)
	if !strings.Contains(lower, "citation") {
		return ""
	}
	if strings.Contains(lower, "your") || strings.Contains(lower, " my ") {
		return "Yourself"
	}
	if m := citedByPattern.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
