package normalize

import (
	"testing"

	"github.com/TobiSchelling/sciencesync/internal/article"
)

func TestIdentityKeyInvariance(t *testing.T) {
	base := IdentityKey("Deep Learning for Protein Folding", []string{"J Smith", "A Kumar"})

	variants := []struct {
		title   string
		authors []string
	}{
		{"deep learning for protein folding", []string{"J Smith", "A Kumar"}},
		{"  Deep   Learning for Protein Folding ", []string{"A Kumar", "J Smith"}},
		{"Deep Learning for Protein Folding.", []string{"j smith", " A  Kumar "}},
		{"Deep Learning for Protein Folding", []string{"J. Smith", "A. Kumar"}},
	}
	for _, v := range variants {
		if got := IdentityKey(v.title, v.authors); got != base {
			t.Errorf("IdentityKey(%q, %v) differs from base", v.title, v.authors)
		}
	}

	if IdentityKey("Deep Learning for Protein Folding", []string{"J Smith"}) == base {
		t.Error("different author set must produce a different key")
	}
	if IdentityKey("Shallow Learning for Protein Folding", []string{"J Smith", "A Kumar"}) == base {
		t.Error("different title must produce a different key")
	}
}

func TestKeyFoldsDiacritics(t *testing.T) {
	if got := Key("Müller–Lyer Illusión: a Review"); got != "muller lyer illusion a review" {
		t.Errorf("Key = %q", got)
	}
}

func TestNormalize(t *testing.T) {
	in := article.Record{
		Title:      "  Graph   Networks ",
		Authors:    []string{" A  One ", "", "B Two"},
		RawDate:    "2021",
		SourceLink: "https://scholar.google.com/scholar_url?url=https://doi.org/10.1038/S41586-021-03819-2&hl=en",
	}

	out, unparsable := Normalize(in)
	if unparsable {
		t.Error("year date reported as unparsable")
	}
	if out.Title != "Graph Networks" || out.NormalizedTitle != "graph networks" {
		t.Errorf("title = %q, normalized = %q", out.Title, out.NormalizedTitle)
	}
	if len(out.Authors) != 2 || out.Authors[0] != "A One" || out.Authors[1] != "B Two" {
		t.Errorf("authors = %v", out.Authors)
	}
	if out.PublicationDate == nil || out.PublicationDate.String() != "2021" {
		t.Errorf("date = %v", out.PublicationDate)
	}
	if out.SourceLink != "https://doi.org/10.1038/S41586-021-03819-2" {
		t.Errorf("link = %q", out.SourceLink)
	}
	if out.DOI != "10.1038/s41586-021-03819-2" {
		t.Errorf("doi = %q", out.DOI)
	}
	if out.IdentityKey == "" || out.IdentityKey != IdentityKey("graph networks", []string{"B Two", "A One"}) {
		t.Error("identity key not derived from normalized title and authors")
	}
	if in.Authors[0] != " A  One " {
		t.Error("input record was mutated")
	}
}

func TestNormalizeUnparsableDate(t *testing.T) {
	out, unparsable := Normalize(article.Record{Title: "x", RawDate: "sometime soon"})
	if !unparsable {
		t.Error("expected unparsable date to be reported")
	}
	if out.PublicationDate != nil {
		t.Errorf("expected nil date, got %v", out.PublicationDate)
	}
}

func TestParseDatePrecision(t *testing.T) {
	cases := map[string]string{
		"2019":       "2019",
		"2019-03":    "2019-03",
		"2019/3":     "2019-03",
		"March 2019": "2019-03",
		"2019-03-04": "2019-03-04",
	}
	for raw, want := range cases {
		d, ok := ParseDate(raw)
		if !ok {
			t.Errorf("ParseDate(%q) failed", raw)
			continue
		}
		if d.String() != want {
			t.Errorf("ParseDate(%q) = %s, expected %s", raw, d, want)
		}
	}
	if _, ok := ParseDate(""); ok {
		t.Error("empty date must not parse")
	}
}

func TestLinkKey(t *testing.T) {
	a := LinkKey("https://www.Example.org/paper/1/?utm=x#top")
	b := LinkKey("http://example.org/paper/1")
	if a != b || a != "example.org/paper/1" {
		t.Errorf("LinkKey mismatch: %q vs %q", a, b)
	}
}
