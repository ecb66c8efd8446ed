package dedup

import (
	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/normalize"
)

// KeyFunc derives an additional identity for a record. An empty key means "no identity".
type KeyFunc func(article.Record) string

// Options tunes how records are collapsed.
type Options struct {
	// SecondaryKey, when set, also merges records that share a non-empty secondary key
	// even if their identity keys differ.
	SecondaryKey KeyFunc
}

// LinkIdentity treats two records pointing at the same source link as the same article.
func LinkIdentity(r article.Record) string {
	return normalize.LinkKey(r.SourceLink)
}

// Result is the deduplicated record list.
type Result struct {
	Records []article.Record
	// Merged counts input records folded into an earlier one.
	Merged int
}

// Dedupe collapses records with the same identity key into one, keeping first-seen order.
// Input records are not modified. Running Dedupe on its own output changes nothing.
func Dedupe(records []article.Record, opts Options) Result {
	var res Result
	byKey := make(map[string]int, len(records))
	bySecondary := make(map[string]int)

	for _, rec := range records {
		var secondary string
		if opts.SecondaryKey != nil {
			secondary = opts.SecondaryKey(rec)
		}

		idx, found := byKey[rec.IdentityKey]
		if !found && secondary != "" {
			idx, found = bySecondary[secondary]
		}

		if !found {
			idx = len(res.Records)
			res.Records = append(res.Records, rec.Clone())
		} else {
			res.Records[idx] = Merge(res.Records[idx], rec)
			res.Merged++
		}

		byKey[rec.IdentityKey] = idx
		if secondary != "" {
			bySecondary[secondary] = idx
		}
	}
	return res
}

// Merge folds src into dst. Empty fields of dst are filled from src and non-empty fields
// are never overwritten. Reference lists are unioned in order. Author lists are unioned only
// when both records carry the same identity key, so dst's key keeps matching its title and
// authors after a merge by secondary key. Provenance moves to src only when src was received
// strictly earlier.
func Merge(dst, src article.Record) article.Record {
	out := dst.Clone()

	fill(&out.Title, src.Title)
	fill(&out.NormalizedTitle, src.NormalizedTitle)
	fill(&out.Venue, src.Venue)
	fill(&out.RawDate, src.RawDate)
	fill(&out.SourceLink, src.SourceLink)
	fill(&out.SaveLink, src.SaveLink)
	fill(&out.ReferenceSnippet, src.ReferenceSnippet)
	fill(&out.CitedAuthor, src.CitedAuthor)
	fill(&out.DOI, src.DOI)
	if out.PublicationDate == nil && src.PublicationDate != nil {
		d := *src.PublicationDate
		out.PublicationDate = &d
	}

	if out.IdentityKey == src.IdentityKey {
		out.Authors = union(out.Authors, src.Authors, normalize.Key)
	}
	out.References = union(out.References, src.References, func(s string) string { return s })

	switch {
	case out.AlertSourceID == "":
		out.AlertSourceID = src.AlertSourceID
		out.ReceivedAt = src.ReceivedAt
	case !src.ReceivedAt.IsZero() && src.ReceivedAt.Before(out.ReceivedAt):
		out.AlertSourceID = src.AlertSourceID
		out.ReceivedAt = src.ReceivedAt
	}
	return out
}

func fill(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func union(a, b []string, key func(string) string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[key(s)] = true
	}
	for _, s := range b {
		k := key(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		a = append(a, s)
	}
	return a
}
