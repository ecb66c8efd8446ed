package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

const sampleMessage = "From: Scholar Alerts <scholaralerts-noreply@google.com>\r\n" +
	"To: jane@example.com\r\n" +
	"Subject: =?UTF-8?Q?3_new_citations_to_articles_by_Jane_Doe?=\r\n" +
	"Date: Wed, 01 May 2024 09:00:00 +0000\r\n" +
	"Message-Id: <alert-1@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=UTF-8\r\n" +
	"\r\n" +
	"plain version\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=UTF-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<h3 class=3D\"gse_alrt_title\">Protein folding</h3>\r\n" +
	"--b1--\r\n"

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Alerts</title>
<item><title>New citations to articles by Jane Doe</title><guid>item-1</guid>
<pubDate>Wed, 01 May 2024 09:00:00 GMT</pubDate>
<description>Title: Protein folding</description></item>
<item><title>Weekly digest</title>
<description>Title: Something else</description></item>
<item><title>New citation to Jane Doe</title>
<description>Title: Graph networks</description></item>
</channel></rss>`

func TestLoadPlainFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.html", "<html>second</html>")
	writeFile(t, dir, "a.txt", "Title: first")
	writeFile(t, dir, "notes.pdf", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := NewLoader(dir, "new citation").Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Files != 2 || len(r.Alerts) != 2 {
		t.Fatalf("expected 2 files and alerts, got %+v", r)
	}
	if r.Alerts[0].ID != "a.txt" || r.Alerts[0].Body != "Title: first" {
		t.Errorf("unexpected first alert %+v", r.Alerts[0])
	}
	if r.Alerts[1].ReceivedAt.IsZero() {
		t.Error("expected file modification time as received time")
	}
}

func TestLoadMessage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alert.eml", sampleMessage)

	r, err := NewLoader(dir, "new citation").Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", r)
	}
	a := r.Alerts[0]
	if a.ID != "alert-1@example.com" {
		t.Errorf("ID = %q", a.ID)
	}
	if a.Subject != "3 new citations to articles by Jane Doe" {
		t.Errorf("Subject = %q", a.Subject)
	}
	if want := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC); !a.ReceivedAt.Equal(want) {
		t.Errorf("ReceivedAt = %v", a.ReceivedAt)
	}
	if !strings.Contains(a.Body, `<h3 class="gse_alrt_title">Protein folding</h3>`) {
		t.Errorf("expected decoded HTML part, got %q", a.Body)
	}
}

const latin1Message = "From: alerts@example.com\r\n" +
	"Subject: =?ISO-8859-1?Q?Nouvelles_citations_=E0_Jos=E9?= =?windows-1252?Q?=93Dupont=94?=\r\n" +
	"Message-Id: <alert-2@example.com>\r\n" +
	"Content-Type: text/html; charset=ISO-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<h3><a>Caf=E9 r=E9seaux</a></h3>\r\n"

func TestParseMessageConvertsCharset(t *testing.T) {
	a, err := parseMessage(strings.NewReader(latin1Message))
	if err != nil {
		t.Fatal(err)
	}
	if a.Subject != "Nouvelles citations à José“Dupont”" {
		t.Errorf("Subject = %q", a.Subject)
	}
	if !utf8.ValidString(a.Body) || !strings.Contains(a.Body, "Café réseaux") {
		t.Errorf("expected UTF-8 body, got %q", a.Body)
	}
}

func TestMessageBodyUsesMetaCharset(t *testing.T) {
	raw := "<html><head><meta charset=\"iso-8859-1\"></head><body>Na\xefve Bayes</body></html>"
	body, err := messageBody("text/html", "", strings.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "Naïve Bayes") {
		t.Errorf("expected meta charset to be honored, got %q", body)
	}

	utf8Body, err := messageBody("", "", strings.NewReader("Title: Ünïcode résumé"))
	if err != nil {
		t.Fatal(err)
	}
	if utf8Body != "Title: Ünïcode résumé" {
		t.Errorf("undeclared UTF-8 body changed: %q", utf8Body)
	}
}

func TestLoadFeedAppliesSubjectFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alerts.rss", sampleFeed)

	r, err := NewLoader(dir, "New Citation").Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Alerts) != 2 || r.Filtered != 1 {
		t.Fatalf("expected 2 alerts and 1 filtered, got %+v", r)
	}
	if r.Alerts[0].ID != "item-1" || r.Alerts[1].ID != "alerts.rss#2" {
		t.Errorf("unexpected IDs %q %q", r.Alerts[0].ID, r.Alerts[1].ID)
	}
	if r.Alerts[0].Body != "Title: Protein folding" {
		t.Errorf("Body = %q", r.Alerts[0].Body)
	}
}

func TestLoadWithoutFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alerts.rss", sampleFeed)

	r, err := NewLoader(dir, "").Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Alerts) != 3 {
		t.Errorf("expected every item, got %d", len(r.Alerts))
	}
}

func TestLoadCountsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.xml", "not a feed")
	writeFile(t, dir, "ok.txt", "Title: fine")

	r, err := NewLoader(dir, "").Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Failed != 1 || len(r.Alerts) != 1 {
		t.Errorf("expected one failure and one alert, got %+v", r)
	}
}

func TestLoadMissingDir(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "nope"), "").Load(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}
}
