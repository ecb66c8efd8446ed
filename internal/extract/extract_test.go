package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

const scholarEntry = `<h3 style="font-weight:normal;margin:0;font-size:17px;line-height:20px;"><a href="https://scholar.google.com/scholar_url?url=https://example.org/%[1]d&amp;hl=en" class="gse_alrt_title" style="font-size:17px;color:#1a0dab;line-height:22px">%[2]s</a></h3>
<div style="color:#006621;line-height:18px">J Smith, A Kumar, L Chen… - Nature Methods, 2021</div>
<div class="gse_alrt_sni" style="line-height:17px">We present a method for predicting protein structure from sequence.</div>
<table cellpadding="0" cellspacing="0" border="0" style="padding:8px 0"><tr><td style="line-height:18px;font-size:12px;padding-right:8px;" valign="top"><a href="https://scholar.google.com/citations?update_op=library_add&amp;info=%[1]d" style="text-decoration:none"><img alt="Save" src="save-32.png" border="0" height="16" width="16"></a></td></tr></table>
<br>
`

const scholarFooter = `<p style="font-size:11px;color:#777">This message was sent by Google Scholar because you're following new citations to articles written by Jane Doe.</p>
<a href="https://scholar.google.com/scholar_alerts?view_op=cancel">Cancel alert</a>
</body></html>`

func scholarBody(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div style="font-family:arial;font-size:13px">`)
	for i, title := range titles {
		fmt.Fprintf(&b, scholarEntry, i+1, title)
	}
	b.WriteString(scholarFooter)
	return b.String()
}

func TestExtractScholarEntries(t *testing.T) {
	alert := Alert{
		ID:         "msg-1",
		Subject:    "3 new citations to articles by Jane Doe",
		Body:       scholarBody("Deep Learning for Protein Folding", "Graph Networks in Chemistry", "Sparse Attention"),
		ReceivedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	res := Extract(Scholar, alert)
	if res.Skipped != 0 {
		t.Errorf("expected no skipped entries, got %d", res.Skipped)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}

	rec := res.Records[0]
	if rec.Title != "Deep Learning for Protein Folding" {
		t.Errorf("unexpected title %q", rec.Title)
	}
	wantAuthors := []string{"J Smith", "A Kumar", "L Chen"}
	if strings.Join(rec.Authors, "|") != strings.Join(wantAuthors, "|") {
		t.Errorf("authors = %v, expected %v", rec.Authors, wantAuthors)
	}
	if rec.Venue != "Nature Methods" {
		t.Errorf("venue = %q, expected %q", rec.Venue, "Nature Methods")
	}
	if rec.RawDate != "2021" {
		t.Errorf("raw date = %q, expected 2021", rec.RawDate)
	}
	if rec.SourceLink != "https://scholar.google.com/scholar_url?url=https://example.org/1&hl=en" {
		t.Errorf("unexpected link %q", rec.SourceLink)
	}
	if !strings.Contains(rec.SaveLink, "update_op=library_add") {
		t.Errorf("unexpected save link %q", rec.SaveLink)
	}
	if !strings.HasPrefix(rec.ReferenceSnippet, "We present a method") {
		t.Errorf("unexpected snippet %q", rec.ReferenceSnippet)
	}
	if rec.CitedAuthor != "Jane Doe" {
		t.Errorf("cited author = %q", rec.CitedAuthor)
	}
	if rec.AlertSourceID != "msg-1" || !rec.ReceivedAt.Equal(alert.ReceivedAt) {
		t.Errorf("provenance not attached: %q %v", rec.AlertSourceID, rec.ReceivedAt)
	}
	if res.Records[2].Title != "Sparse Attention" {
		t.Errorf("entries out of order: %q", res.Records[2].Title)
	}
}

func TestExtractSkipsEntryWithoutTitle(t *testing.T) {
	alert := Alert{ID: "msg-2", Body: scholarBody("Titled Entry", "")}

	res := Extract(Scholar, alert)
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped entry, got %d", res.Skipped)
	}
	if res.Records[0].Title != "Titled Entry" {
		t.Errorf("unexpected title %q", res.Records[0].Title)
	}
}

func TestExtractOutlookRendering(t *testing.T) {
	body := `<div><h3 style="font-weight:normal"><a href="https://example.org/x" class="m_-1234567890123456789gse_alrt_title">Outlook Rendered Title</a></h3>
<div style="color:#006621; line-height:18px">K Lee, M Park - Science, 2019</div>
<div class="m_-1234567890123456789gse_alrt_sni">Snippet text here</div></div>`

	res := Extract(Scholar, Alert{ID: "o-1", Body: body})
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Title != "Outlook Rendered Title" || len(rec.Authors) != 2 || rec.ReferenceSnippet != "Snippet text here" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.RawDate != "2019" {
		t.Errorf("raw date = %q", rec.RawDate)
	}
}

func TestExtractMalformedEntryDoesNotAbortSiblings(t *testing.T) {
	body := `<h3><a class="gse_alrt_title" href="https://a.example">First <b>bold</a></h3><div style="color:#006621">
<h3><a class="gse_alrt_title" href="https://b.example">Second</a></h3><div style="color:#006621;line-height:18px">X Y - Venue, 2020</div>`

	res := Extract(Scholar, Alert{Body: body})
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d (%+v)", len(res.Records), res.Records)
	}
	if res.Records[0].Title != "First bold" {
		t.Errorf("unexpected first title %q", res.Records[0].Title)
	}
	if len(res.Records[0].Authors) != 0 {
		t.Errorf("expected empty authors for malformed entry, got %v", res.Records[0].Authors)
	}
	if res.Records[1].RawDate != "2020" {
		t.Errorf("unexpected date %q", res.Records[1].RawDate)
	}
}

func TestExtractNoEntries(t *testing.T) {
	res := Extract(Scholar, Alert{Body: "<html><body><p>No new citations.</p></body></html>"})
	if len(res.Records) != 0 || res.Skipped != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestExtractPlainFormat(t *testing.T) {
	body := `Title: Attention Is All You Need
Authors: A Vaswani, N Shazeer
Venue: NeurIPS
Date: 2017-12-04
Link: https://arxiv.org/abs/1706.03762
Snippet: The dominant sequence transduction models are based on recurrent networks.

Authors: Nobody
Date: 2020

Title: BERT
Authors: J Devlin
`
	res := Extract(Plain, Alert{ID: "p-1", Body: body})
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", res.Skipped)
	}
	first := res.Records[0]
	if first.Title != "Attention Is All You Need" || first.Venue != "NeurIPS" || first.RawDate != "2017-12-04" {
		t.Errorf("unexpected record %+v", first)
	}
	if first.SourceLink != "https://arxiv.org/abs/1706.03762" {
		t.Errorf("unexpected link %q", first.SourceLink)
	}
	if len(first.Authors) != 2 {
		t.Errorf("expected 2 authors, got %v", first.Authors)
	}
}

func TestDetect(t *testing.T) {
	if Detect(scholarBody("x")).Name != "scholar" {
		t.Error("expected scholar format for markup body")
	}
	if Detect("Title: x\nAuthors: y").Name != "plain" {
		t.Error("expected plain format for text body")
	}
}

func TestLookup(t *testing.T) {
	if _, err := Lookup("Scholar"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCitedAuthor(t *testing.T) {
	cases := map[string]string{
		"5 new citations to articles by Jane Doe":      "Jane Doe",
		"New citations to my articles":                 "Yourself",
		"1 new citation to your articles":              "Yourself",
		"Jane Doe - new articles":                      "",
		"new citations to articles by A Smith, et al.": "A Smith",
	}
	for subject, want := range cases {
		if got := CitedAuthor(subject); got != want {
			t.Errorf("CitedAuthor(%q) = %q, expected %q", subject, got, want)
		}
	}
}

func TestSplitByline(t *testing.T) {
	authors, venue := SplitByline("A One, B Two - Journal of Tests, 2020")
	if authors != "A One, B Two" || venue != "Journal of Tests, 2020" {
		t.Errorf("got %q / %q", authors, venue)
	}
	authors, venue = SplitByline("Solo Author")
	if authors != "Solo Author" || venue != "" {
		t.Errorf("got %q / %q", authors, venue)
	}
}

func TestBlockBoundary(t *testing.T) {
	body := "\n\na\nb\n\n  \n\nc\n"
	spans := BlockBoundary{}.Spans(body)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Text(body) != "a\nb" || spans[1].Text(body) != "c" {
		t.Errorf("unexpected spans %q %q", spans[0].Text(body), spans[1].Text(body))
	}
}
