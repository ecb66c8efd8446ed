package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/TobiSchelling/sciencesync/internal/article"
)

// Normalize returns the canonical form of a candidate record and computes its identity key.
// A date that cannot be parsed is left nil and reported through dateUnparsable; the record
// is still valid.
func Normalize(rec article.Record) (out article.Record, dateUnparsable bool) {
	out = rec.Clone()

	out.Title = collapse(rec.Title)
	out.NormalizedTitle = Key(rec.Title)
	out.Venue = collapse(rec.Venue)
	out.ReferenceSnippet = collapse(rec.ReferenceSnippet)
	out.CitedAuthor = collapse(rec.CitedAuthor)

	out.Authors = nil
	for _, a := range rec.Authors {
		if name := collapse(a); name != "" {
			out.Authors = append(out.Authors, name)
		}
	}

	out.SourceLink = UnwrapLink(rec.SourceLink)
	out.SaveLink = strings.TrimSpace(rec.SaveLink)
	if out.DOI == "" {
		out.DOI = DOIFromLink(out.SourceLink)
	} else {
		out.DOI = strings.ToLower(strings.TrimSpace(out.DOI))
	}

	if rec.PublicationDate == nil && strings.TrimSpace(rec.RawDate) != "" {
		d, ok := ParseDate(rec.RawDate)
		if ok {
			out.PublicationDate = &d
		} else {
			dateUnparsable = true
		}
	}

	out.IdentityKey = IdentityKey(out.Title, out.Authors)
	return out, dateUnparsable
}

// IdentityKey hashes the normalized title together with the sorted normalized author set.
// Author order and formatting differences (case, accents, punctuation) do not change it.
func IdentityKey(title string, authors []string) string {
	keys := make([]string, 0, len(authors))
	seen := make(map[string]bool, len(authors))
	for _, a := range authors {
		k := Key(a)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(Key(title)))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.Join(keys, "\x1e")))
	return hex.EncodeToString(h.Sum(nil))
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key returns the comparison form of a text field: accents folded, lower-cased, punctuation
// replaced by spaces and whitespace collapsed.
func Key(s string) string {
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

func collapse(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

var (
	yearOnly  = regexp.MustCompile(`^(\d{4})$`)
	yearMonth = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})$`)
)

// ParseDate parses a raw publication date to year, year-month or day precision.
func ParseDate(raw string) (article.Date, bool) {
	s := collapse(raw)
	if s == "" {
		return article.Date{}, false
	}

	if m := yearOnly.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2006", m[1])
		if err != nil {
			return article.Date{}, false
		}
		return article.Date{Year: t.Year(), Precision: article.PrecisionYear}, true
	}
	if m := yearMonth.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2006-1", m[1]+"-"+m[2])
		if err != nil {
			return article.Date{}, false
		}
		return article.Date{Year: t.Year(), Month: int(t.Month()), Precision: article.PrecisionMonth}, true
	}
	for _, layout := range []string{"January 2006", "Jan 2006", "Jan. 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return article.Date{Year: t.Year(), Month: int(t.Month()), Precision: article.PrecisionMonth}, true
		}
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return article.Date{}, false
	}
	return article.Date{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Precision: article.PrecisionDay,
	}, true
}

// UnwrapLink resolves Scholar redirect links (scholar_url?url=...) to the target URL.
func UnwrapLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if strings.Contains(u.Host, "scholar.google.") && strings.HasSuffix(u.Path, "/scholar_url") {
		if target := u.Query().Get("url"); target != "" {
			return target
		}
	}
	return link
}

// LinkKey returns a comparison form of a link: scheme, "www." prefix, query, fragment and
// trailing slash are dropped and the host is lower-cased.
func LinkKey(link string) string {
	link = UnwrapLink(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.ToLower(link)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host + strings.TrimRight(u.Path, "/")
}

var doiPattern = regexp.MustCompile(`(?i)\b(10\.\d{4,9}/[^\s"<>&?#]+)`)

// DOIFromLink returns the lower-cased DOI embedded in a link, or "".
func DOIFromLink(link string) string {
	if link == "" {
		return ""
	}
	if unescaped, err := url.PathUnescape(link); err == nil {
		link = unescaped
	}
	m := doiPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimRight(m[1], ".,;"))
}
