package database

// MarkAlertIngested records a processed alert. Re-marking an alert is a no-op.
func (db *DB) MarkAlertIngested(a IngestedAlert) error {
	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO ingested_alerts (alert_id, subject, received_at, entries, skipped)
		VALUES (?, ?, ?, ?, ?)`,
		a.AlertID, a.Subject, encodeTime(a.ReceivedAt), a.Entries, a.Skipped,
	)
	return err
}

// IsAlertIngested reports whether an alert has already been processed.
func (db *DB) IsAlertIngested(alertID string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM ingested_alerts WHERE alert_id = ?", alertID,
	).Scan(&count)
	return count > 0, err
}

// GetStats returns aggregate counts.
func (db *DB) GetStats() (Stats, error) {
	var s Stats
	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.Articles},
		{"SELECT COUNT(*) FROM articles WHERE enriched_at IS NOT NULL", &s.EnrichedArticles},
		{"SELECT COUNT(*) FROM ingested_alerts", &s.IngestedAlerts},
		{"SELECT COUNT(*) FROM cluster_runs", &s.Runs},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return Stats{}, err
		}
	}
	return s, nil
}
