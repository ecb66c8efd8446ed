package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/normalize"
)

// Family is the kind of representation a metric operates on.
type Family string

const (
	FamilySet       Family = "set"
	FamilyGeometric Family = "geometric"
)

// StopWords are dropped from titles and snippets before building features or labels.
var StopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true, "and": true, "but": true,
	"or": true, "nor": true, "not": true, "so": true, "yet": true, "both": true,
	"either": true, "neither": true, "each": true, "every": true, "all": true, "any": true,
	"few": true, "more": true, "most": true, "other": true, "some": true, "such": true,
	"no": true, "only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "how": true, "what": true, "which": true, "who": true,
	"whom": true, "this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "new": true, "about": true, "up": true, "out": true, "we": true,
	"our": true, "us": true, "via": true, "using": true, "based": true, "also": true,
}

// Tokens splits text into normalized content words. Stop-words and one-letter tokens are
// dropped; duplicates are kept.
func Tokens(text string) []string {
	var out []string
	for _, w := range strings.Fields(normalize.Key(text)) {
		if len([]rune(w)) < 2 || StopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func recordTokens(rec article.Record) []string {
	title := rec.NormalizedTitle
	if title == "" {
		title = rec.Title
	}
	return append(Tokens(title), Tokens(rec.ReferenceSnippet)...)
}

// TokenSet is the set representation of a record.
type TokenSet map[string]struct{}

// Has reports whether tok is in the set.
func (s TokenSet) Has(tok string) bool {
	_, ok := s[tok]
	return ok
}

// Sorted returns the members in lexical order.
func (s TokenSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SetOf builds the token set of a record: title and snippet words plus "doi:"-prefixed
// reference DOIs.
func SetOf(rec article.Record) TokenSet {
	set := make(TokenSet)
	for _, t := range recordTokens(rec) {
		set[t] = struct{}{}
	}
	for _, ref := range rec.References {
		if ref = strings.ToLower(strings.TrimSpace(ref)); ref != "" {
			set["doi:"+ref] = struct{}{}
		}
	}
	return set
}

// Basis is the vocabulary that fixes vector dimensions for one run. It is immutable once
// built by Fit.
type Basis struct {
	terms []string
	index map[string]int
}

// Fit builds the basis from every token across records, in sorted order.
func Fit(records []article.Record) *Basis {
	vocab := make(map[string]struct{})
	for _, rec := range records {
		for _, t := range recordTokens(rec) {
			vocab[t] = struct{}{}
		}
	}
	terms := make([]string, 0, len(vocab))
	for t := range vocab {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	index := make(map[string]int, len(terms))
	for i, t := range terms {
		index[t] = i
	}
	return &Basis{terms: terms, index: index}
}

// Len is the vector dimension.
func (b *Basis) Len() int { return len(b.terms) }

// Terms returns a copy of the vocabulary.
func (b *Basis) Terms() []string { return append([]string(nil), b.terms...) }

// Vector returns the term-frequency vector of rec. Tokens outside the basis are ignored.
func (b *Basis) Vector(rec article.Record) []float64 {
	v := make([]float64, len(b.terms))
	for _, t := range recordTokens(rec) {
		if i, ok := b.index[t]; ok {
			v[i]++
		}
	}
	return v
}

// Representation is either a token set or a fixed-length vector, depending on the family.
type Representation struct {
	Set    TokenSet
	Vector []float64
}

// Vectorizer turns records into representations of one family. A geometric vectorizer
// owns the basis fitted over the run's records.
type Vectorizer struct {
	family Family
	basis  *Basis
}

// NewVectorizer prepares a vectorizer for records. For the geometric family the basis is
// fitted here, once.
func NewVectorizer(family Family, records []article.Record) (*Vectorizer, error) {
	switch family {
	case FamilySet:
		return &Vectorizer{family: family}, nil
	case FamilyGeometric:
		return &Vectorizer{family: family, basis: Fit(records)}, nil
	}
	return nil, fmt.Errorf("unknown feature family %q", family)
}

// Family returns the representation family.
func (v *Vectorizer) Family() Family { return v.family }

// Basis returns the fitted basis, or nil for the set family.
func (v *Vectorizer) Basis() *Basis { return v.basis }

// Represent builds the representation of one record.
func (v *Vectorizer) Represent(rec article.Record) Representation {
	if v.family == FamilyGeometric {
		return Representation{Vector: v.basis.Vector(rec)}
	}
	return Representation{Set: SetOf(rec)}
}

// RepresentAll builds representations for records in order.
func (v *Vectorizer) RepresentAll(records []article.Record) []Representation {
	out := make([]Representation, len(records))
	for i, rec := range records {
		out[i] = v.Represent(rec)
	}
	return out
}
