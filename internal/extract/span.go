package extract

import "regexp"

// Span is a half-open byte range [Start, End) of an alert body.
type Span struct {
	Start int
	End   int
}

// Text returns the part of body covered by the span.
func (s Span) Text(body string) string {
	if s.Start < 0 || s.End > len(body) || s.Start >= s.End {
		return ""
	}
	return body[s.Start:s.End]
}

// Boundary locates the regions of an alert body that hold one article entry each.
type Boundary interface {
	Spans(body string) []Span
}

// MarkerBoundary starts a new entry at every match of Marker. An entry runs until the next
// marker, or until the first match of End after its start, or until the end of the body.
type MarkerBoundary struct {
	Marker *regexp.Regexp
	End    *regexp.Regexp
}

// Spans implements Boundary.
func (b MarkerBoundary) Spans(body string) []Span {
	locs := b.Marker.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return nil
	}

	spans := make([]Span, 0, len(locs))
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if b.End != nil {
			if m := b.End.FindStringIndex(body[loc[1]:end]); m != nil {
				end = loc[1] + m[0]
			}
		}
		spans = append(spans, Span{Start: loc[0], End: end})
	}
	return spans
}

var blankLines = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// BlockBoundary treats blank-line separated blocks as entries.
type BlockBoundary struct{}

// Spans implements Boundary.
func (BlockBoundary) Spans(body string) []Span {
	seps := blankLines.FindAllStringIndex(body, -1)
	var spans []Span
	start := 0
	for _, sep := range seps {
		spans = appendNonBlank(spans, body, start, sep[0])
		start = sep[1]
	}
	spans = appendNonBlank(spans, body, start, len(body))
	return spans
}

func appendNonBlank(spans []Span, body string, start, end int) []Span {
	for start < end && isSpace(body[start]) {
		start++
	}
	for end > start && isSpace(body[end-1]) {
		end--
	}
	if start >= end {
		return spans
	}
	return append(spans, Span{Start: start, End: end})
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
