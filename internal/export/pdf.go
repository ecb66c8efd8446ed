package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

func writePDF(w io.Writer, doc Document) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Title, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, s := range sections(doc.View) {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s (%d)", s.name, len(s.records))), "B", 1, "L", false, 0, "")
		pdf.Ln(2)

		for _, r := range s.records {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.MultiCell(0, 5, tr(r.Title), "", "L", false)

			var meta []string
			if len(r.Authors) > 0 {
				meta = append(meta, strings.Join(r.Authors, ", "))
			}
			if r.Venue != "" {
				meta = append(meta, r.Venue)
			}
			if y := year(r); y != "" {
				meta = append(meta, y)
			}
			if r.DOI != "" {
				meta = append(meta, "doi:"+r.DOI)
			}
			if len(meta) > 0 {
				pdf.SetFont("Helvetica", "", 9)
				pdf.MultiCell(0, 4.5, tr(strings.Join(meta, " - ")), "", "L", false)
			}
			pdf.Ln(2)
		}
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}
