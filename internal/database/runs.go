package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveRun stores a clustering run with its group summaries and per-record labels in one
// transaction. keys and labels are positional. The run ID is generated when empty.
func (db *DB) SaveRun(run Run, groups []RunGroup, keys []string, labels []int) (Run, error) {
	if len(keys) != len(labels) {
		return Run{}, fmt.Errorf("saving run: %d keys for %d labels", len(keys), len(labels))
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.RecordCount = len(keys)

	tx, err := db.conn.Begin()
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO cluster_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Algorithm, run.Metric, run.Linkage, run.K, run.Seed, boolToInt(run.Converged),
		run.Iterations, run.Silhouette, run.RecordCount, encodeTime(run.CreatedAt),
		run.DaviesBouldin, run.CalinskiHarabasz, encodeTimePtr(run.ReceivedSince), encodeTimePtr(run.ReceivedUntil),
	); err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	for _, g := range groups {
		if _, err := tx.Exec(
			`INSERT INTO cluster_groups (run_id, label, name, size) VALUES (?, ?, ?, ?)`,
			run.ID, g.Label, g.Name, g.Size,
		); err != nil {
			return Run{}, fmt.Errorf("inserting group %d: %w", g.Label, err)
		}
	}

	for i, key := range keys {
		if _, err := tx.Exec(
			`INSERT INTO cluster_assignments (run_id, identity_key, label, position) VALUES (?, ?, ?, ?)`,
			run.ID, key, labels[i], i,
		); err != nil {
			return Run{}, fmt.Errorf("inserting assignment: %w", err)
		}
	}

	return run, tx.Commit()
}

const runColumns = `id, algorithm, metric, linkage, k, seed, converged, iterations, silhouette,
	record_count, created_at, davies_bouldin, calinski_harabasz, received_since, received_until`

// LatestRun returns the most recent clustering run.
func (db *DB) LatestRun() (Run, error) {
	run, err := scanRun(db.conn.QueryRow(
		`SELECT ` + runColumns + ` FROM cluster_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return run, err
}

// GetRun returns a clustering run by ID.
func (db *DB) GetRun(id string) (Run, error) {
	run, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM cluster_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT `+runColumns+` FROM cluster_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunGroups returns the group summaries of a run ordered by label.
func (db *DB) RunGroups(runID string) ([]RunGroup, error) {
	rows, err := db.conn.Query(
		`SELECT label, name, size FROM cluster_groups WHERE run_id = ? ORDER BY label`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []RunGroup
	for rows.Next() {
		var g RunGroup
		if err := rows.Scan(&g.Label, &g.Name, &g.Size); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// RunAssignment returns identity key → label for a run, plus the keys in clustering order.
func (db *DB) RunAssignment(runID string) (map[string]int, []string, error) {
	rows, err := db.conn.Query(
		`SELECT identity_key, label FROM cluster_assignments WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	assignment := make(map[string]int)
	var keys []string
	for rows.Next() {
		var (
			key   string
			label int
		)
		if err := rows.Scan(&key, &label); err != nil {
			return nil, nil, err
		}
		assignment[key] = label
		keys = append(keys, key)
	}
	return assignment, keys, rows.Err()
}

func scanRun(row scanner) (Run, error) {
	var (
		r            Run
		linkage      sql.NullString
		converged    int
		created      string
		db, ch       sql.NullFloat64
		since, until sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Algorithm, &r.Metric, &linkage, &r.K, &r.Seed, &converged,
		&r.Iterations, &r.Silhouette, &r.RecordCount, &created, &db, &ch, &since, &until); err != nil {
		return Run{}, err
	}
	r.Linkage = linkage.String
	r.Converged = converged != 0
	r.CreatedAt = decodeTime(created)
	r.DaviesBouldin = db.Float64
	r.CalinskiHarabasz = ch.Float64
	r.ReceivedSince = decodeTimePtr(since.String)
	r.ReceivedUntil = decodeTimePtr(until.String)
	return r, nil
}

func encodeTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := decodeTime(s)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
