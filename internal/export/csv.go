package export

import (
	"encoding/csv"
	"io"
	"strings"
	"time"
)

var csvHeader = []string{
	"cluster", "cluster_name", "title", "authors", "venue", "publication_date", "doi",
	"source_link", "cited_author", "alert_source_id", "received_at",
}

func writeCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range sections(doc.View) {
		for _, r := range s.records {
			received := ""
			if !r.ReceivedAt.IsZero() {
				received = r.ReceivedAt.UTC().Format(time.RFC3339)
			}
			row := []string{
				s.label, s.name, r.Title, strings.Join(r.Authors, "; "), r.Venue,
				r.PublicationDateString(), r.DOI, r.SourceLink, r.CitedAuthor, r.AlertSourceID, received,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
