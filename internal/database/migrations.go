package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "articles and ingested alerts",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    identity_key TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    normalized_title TEXT,
    authors TEXT,
    venue TEXT,
    raw_date TEXT,
    publication_date TEXT,
    source_link TEXT,
    save_link TEXT,
    reference_snippet TEXT,
    cited_author TEXT,
    doi TEXT,
    article_references TEXT,
    alert_source_id TEXT,
    received_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingested_alerts (
    alert_id TEXT PRIMARY KEY,
    subject TEXT,
    received_at TEXT,
    entries INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    ingested_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_articles_doi ON articles(doi);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "cluster runs",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS cluster_runs (
    id TEXT PRIMARY KEY,
    algorithm TEXT NOT NULL,
    metric TEXT NOT NULL,
    linkage TEXT,
    k INTEGER NOT NULL,
    seed INTEGER DEFAULT 0,
    converged INTEGER DEFAULT 1,
    iterations INTEGER DEFAULT 0,
    silhouette REAL DEFAULT 0,
    record_count INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cluster_groups (
    run_id TEXT NOT NULL REFERENCES cluster_runs(id) ON DELETE CASCADE,
    label INTEGER NOT NULL,
    name TEXT NOT NULL,
    size INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, label)
);

CREATE TABLE IF NOT EXISTS cluster_assignments (
    run_id TEXT NOT NULL REFERENCES cluster_runs(id) ON DELETE CASCADE,
    identity_key TEXT NOT NULL REFERENCES articles(identity_key),
    label INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (run_id, identity_key)
);

CREATE INDEX IF NOT EXISTS idx_cluster_runs_created ON cluster_runs(created_at);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "enrichment tracking",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE articles ADD COLUMN enriched_at TEXT`)
			return err
		},
	},
	{
		Version:     4,
		Description: "run windows and validity indices",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
ALTER TABLE cluster_runs ADD COLUMN received_since TEXT;
ALTER TABLE cluster_runs ADD COLUMN received_until TEXT;
ALTER TABLE cluster_runs ADD COLUMN davies_bouldin REAL DEFAULT 0;
ALTER TABLE cluster_runs ADD COLUMN calinski_harabasz REAL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_articles_received ON articles(received_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
