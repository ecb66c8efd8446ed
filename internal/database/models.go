package database

import "time"

// Run is one stored clustering run.
type Run struct {
	ID               string    `json:"id"`
	Algorithm        string    `json:"algorithm"`
	Metric           string    `json:"metric"`
	Linkage          string    `json:"linkage,omitempty"`
	K                int       `json:"k"`
	Seed             int64     `json:"seed"`
	Converged        bool      `json:"converged"`
	Iterations       int       `json:"iterations"`
	Silhouette       float64   `json:"silhouette"`
	DaviesBouldin    float64   `json:"davies_bouldin"`
	CalinskiHarabasz float64   `json:"calinski_harabasz"`
	RecordCount      int       `json:"record_count"`
	CreatedAt        time.Time `json:"created_at"`
	// ReceivedSince and ReceivedUntil bound the received time of the clustered articles;
	// nil means unbounded.
	ReceivedSince *time.Time `json:"received_since,omitempty"`
	ReceivedUntil *time.Time `json:"received_until,omitempty"`
}

// RunGroup is the stored summary of one cluster in a run.
type RunGroup struct {
	Label int    `json:"label"`
	Name  string `json:"name"`
	Size  int    `json:"size"`
}

// IngestedAlert records that an alert has been processed.
type IngestedAlert struct {
	AlertID    string
	Subject    string
	ReceivedAt time.Time
	Entries    int
	Skipped    int
}

// Stats contains aggregate database statistics.
type Stats struct {
	Articles         int `json:"articles"`
	EnrichedArticles int `json:"enriched_articles"`
	IngestedAlerts   int `json:"ingested_alerts"`
	Runs             int `json:"runs"`
}
