package export

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/TobiSchelling/sciencesync/internal/article"
)

const maxCellWidth = 60

func renderMarkdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", doc.Title)

	for _, s := range sections(doc.View) {
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", s.name, len(s.records))
		rows := [][]string{{"Title", "Authors", "Year", "Venue"}}
		for _, r := range s.records {
			rows = append(rows, []string{title(r), strings.Join(r.Authors, ", "), year(r), r.Venue})
		}
		for _, line := range formatTable(rows) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func title(r article.Record) string {
	if r.SourceLink == "" {
		return r.Title
	}
	return "[" + r.Title + "](" + r.SourceLink + ")"
}

// formatTable lays out rows as a Markdown table whose columns line up by display width.
// The first row is the header.
func formatTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := len(rows[0])

	cells := make([][]string, len(rows))
	widths := make([]int, cols)
	for i, row := range rows {
		cells[i] = make([]string, cols)
		for j := 0; j < cols && j < len(row); j++ {
			c := escapeCell(row[j])
			if i > 0 {
				c = runewidth.Truncate(c, maxCellWidth, "…")
			}
			cells[i][j] = c
			if w := runewidth.StringWidth(c); w > widths[j] {
				widths[j] = w
			}
		}
	}
	for j := range widths {
		if widths[j] < 3 {
			widths[j] = 3
		}
	}

	lines := make([]string, 0, len(rows)+1)
	for i, row := range cells {
		lines = append(lines, tableLine(row, widths))
		if i == 0 {
			sep := make([]string, cols)
			for j, w := range widths {
				sep[j] = strings.Repeat("-", w)
			}
			lines = append(lines, tableLine(sep, widths))
		}
	}
	return lines
}

func tableLine(row []string, widths []int) string {
	var sb strings.Builder
	sb.WriteString("|")
	for j, c := range row {
		sb.WriteString(" ")
		sb.WriteString(runewidth.FillRight(c, widths[j]))
		sb.WriteString(" |")
	}
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
