package cluster

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/TobiSchelling/sciencesync/internal/features"
)

var titleCaser = cases.Title(language.English)

// Label builds a short descriptive label from the most frequent title words of a group.
// Ties are broken alphabetically so the label is stable.
func Label(titles []string) string {
	counts := make(map[string]int)
	for _, title := range titles {
		for _, word := range features.Tokens(title) {
			if len(word) > 2 {
				counts[word]++
			}
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > 3 {
		words = words[:3]
	}
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	if len(words) > 0 {
		return strings.Join(words, " ")
	}

	// Fallback: first title truncated
	if len(titles) == 0 {
		return ""
	}
	title := []rune(titles[0])
	if len(title) > 50 {
		title = title[:50]
	}
	return string(title)
}
