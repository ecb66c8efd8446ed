package article

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Precision describes how much of a publication date is known.
type Precision int

const (
	PrecisionUnknown Precision = iota
	PrecisionYear
	PrecisionMonth
	PrecisionDay
)

// Date is a publication date whose precision varies from year-only to a full day.
type Date struct {
	Year      int
	Month     int
	Day       int
	Precision Precision
}

// String formats the date at its own precision: "2021", "2021-03" or "2021-03-04".
func (d Date) String() string {
	switch d.Precision {
	case PrecisionYear:
		return fmt.Sprintf("%04d", d.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	case PrecisionDay:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	return ""
}

// ParseDate parses the output of Date.String.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		vals[i] = v
	}
	d := Date{Year: vals[0], Precision: Precision(len(vals))}
	if len(vals) > 1 {
		d.Month = vals[1]
	}
	if len(vals) > 2 {
		d.Day = vals[2]
	}
	return d, nil
}

// Record is one bibliographic article extracted from an alert.
//
// Records are created by the extractor, canonicalised by the normalizer and merged by the
// deduplicator. Clustering never touches them; cluster labels live in a separate assignment.
type Record struct {
	Title            string    `json:"title"`
	NormalizedTitle  string    `json:"normalized_title,omitempty"`
	Authors          []string  `json:"authors"`
	Venue            string    `json:"venue,omitempty"`
	RawDate          string    `json:"raw_date,omitempty"`
	PublicationDate  *Date     `json:"publication_date,omitempty"`
	SourceLink       string    `json:"source_link,omitempty"`
	SaveLink         string    `json:"save_link,omitempty"`
	ReferenceSnippet string    `json:"reference_snippet,omitempty"`
	CitedAuthor      string    `json:"cited_author,omitempty"`
	DOI              string    `json:"doi,omitempty"`
	References       []string  `json:"references,omitempty"`
	IdentityKey      string    `json:"identity_key"`
	AlertSourceID    string    `json:"alert_source_id"`
	ReceivedAt       time.Time `json:"received_at"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	if r.Authors != nil {
		c.Authors = append([]string(nil), r.Authors...)
	}
	if r.References != nil {
		c.References = append([]string(nil), r.References...)
	}
	if r.PublicationDate != nil {
		d := *r.PublicationDate
		c.PublicationDate = &d
	}
	return c
}

// PublicationDateString returns the formatted publication date or "".
func (r Record) PublicationDateString() string {
	if r.PublicationDate == nil {
		return ""
	}
	return r.PublicationDate.String()
}
