package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/dedup"
)

const articleColumns = `identity_key, title, normalized_title, authors, venue, raw_date, publication_date,
	source_link, save_link, reference_snippet, cited_author, doi, article_references,
	alert_source_id, received_at`

// UpsertArticle stores a canonical record. A record whose identity key is already stored is
// merged into the stored one with the deduplication policy: empty fields are filled, nothing
// non-empty is overwritten and the earliest provenance wins. Returns true when a new row was
// inserted.
func (db *DB) UpsertArticle(rec article.Record) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	existing, err := scanArticle(tx.QueryRow(
		`SELECT `+articleColumns+` FROM articles WHERE identity_key = ?`, rec.IdentityKey))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(
			`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			articleArgs(rec)...,
		); err != nil {
			return false, fmt.Errorf("inserting article: %w", err)
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("loading article: %w", err)
	}

	merged := dedup.Merge(existing, rec)
	args := articleArgs(merged)[1:]
	args = append(args, rec.IdentityKey)
	if _, err := tx.Exec(
		`UPDATE articles SET title = ?, normalized_title = ?, authors = ?, venue = ?, raw_date = ?,
		publication_date = ?, source_link = ?, save_link = ?, reference_snippet = ?, cited_author = ?,
		doi = ?, article_references = ?, alert_source_id = ?, received_at = ?,
		updated_at = datetime('now')
		WHERE identity_key = ?`, args...,
	); err != nil {
		return false, fmt.Errorf("updating article: %w", err)
	}
	return false, tx.Commit()
}

// UpsertArticles stores records in order and returns how many were new.
func (db *DB) UpsertArticles(records []article.Record) (int, error) {
	inserted := 0
	for _, rec := range records {
		isNew, err := db.UpsertArticle(rec)
		if err != nil {
			return inserted, fmt.Errorf("storing %q: %w", rec.Title, err)
		}
		if isNew {
			inserted++
		}
	}
	return inserted, nil
}

// ListArticles returns every stored record in first-seen order.
func (db *DB) ListArticles() ([]article.Record, error) {
	rows, err := db.conn.Query(`SELECT ` + articleColumns + ` FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListArticlesReceivedBetween returns records received in [since, until), in first-seen
// order. A zero bound is open. With both bounds zero it is ListArticles; otherwise records
// without a received time are left out.
func (db *DB) ListArticlesReceivedBetween(since, until time.Time) ([]article.Record, error) {
	if since.IsZero() && until.IsZero() {
		return db.ListArticles()
	}

	query := `SELECT ` + articleColumns + ` FROM articles WHERE received_at != ''`
	var args []any
	if !since.IsZero() {
		query += ` AND received_at >= ?`
		args = append(args, encodeTime(since))
	}
	if !until.IsZero() {
		query += ` AND received_at < ?`
		args = append(args, encodeTime(until))
	}
	rows, err := db.conn.Query(query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing articles by received time: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticle returns one record by identity key.
func (db *DB) GetArticle(identityKey string) (article.Record, error) {
	rec, err := scanArticle(db.conn.QueryRow(
		`SELECT `+articleColumns+` FROM articles WHERE identity_key = ?`, identityKey))
	if errors.Is(err, sql.ErrNoRows) {
		return article.Record{}, fmt.Errorf("article %s: %w", identityKey, ErrNotFound)
	}
	return rec, err
}

// GetArticlesNeedingEnrichment returns records that have not been through enrichment yet.
func (db *DB) GetArticlesNeedingEnrichment() ([]article.Record, error) {
	rows, err := db.conn.Query(
		`SELECT ` + articleColumns + ` FROM articles WHERE enriched_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// MarkEnriched stores an enriched record and stamps it so it is not enriched again.
func (db *DB) MarkEnriched(rec article.Record) error {
	if _, err := db.UpsertArticle(rec); err != nil {
		return err
	}
	_, err := db.conn.Exec(
		`UPDATE articles SET enriched_at = datetime('now') WHERE identity_key = ?`, rec.IdentityKey)
	return err
}

func articleArgs(r article.Record) []any {
	return []any{
		r.IdentityKey, r.Title, r.NormalizedTitle, encodeList(r.Authors), r.Venue, r.RawDate,
		r.PublicationDateString(), r.SourceLink, r.SaveLink, r.ReferenceSnippet, r.CitedAuthor,
		r.DOI, encodeList(r.References), r.AlertSourceID, encodeTime(r.ReceivedAt),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (article.Record, error) {
	var (
		r                                              article.Record
		normTitle, authors, venue, rawDate, pubDate    sql.NullString
		link, saveLink, snippet, cited, doi, refs, src sql.NullString
		received                                       sql.NullString
	)
	if err := row.Scan(&r.IdentityKey, &r.Title, &normTitle, &authors, &venue, &rawDate, &pubDate,
		&link, &saveLink, &snippet, &cited, &doi, &refs, &src, &received); err != nil {
		return article.Record{}, err
	}
	r.NormalizedTitle = normTitle.String
	r.Authors = decodeList(authors.String)
	r.Venue = venue.String
	r.RawDate = rawDate.String
	if pubDate.String != "" {
		if d, err := article.ParseDate(pubDate.String); err == nil {
			r.PublicationDate = &d
		}
	}
	r.SourceLink = link.String
	r.SaveLink = saveLink.String
	r.ReferenceSnippet = snippet.String
	r.CitedAuthor = cited.String
	r.DOI = doi.String
	r.References = decodeList(refs.String)
	r.AlertSourceID = src.String
	r.ReceivedAt = decodeTime(received.String)
	return r, nil
}

func scanArticles(rows *sql.Rows) ([]article.Record, error) {
	var records []article.Record
	for rows.Next() {
		r, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil || len(items) == 0 {
		return nil
	}
	return items
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
