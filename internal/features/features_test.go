package features

import (
	"testing"

	"github.com/TobiSchelling/sciencesync/internal/article"
)

func TestTokensDropStopWords(t *testing.T) {
	got := Tokens("The Structure of a Protein: an Analysis")
	want := []string{"structure", "protein", "analysis"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, expected %q", i, got[i], want[i])
		}
	}
}

func TestSetOfIncludesReferences(t *testing.T) {
	rec := article.Record{
		Title:            "Graph Networks",
		ReferenceSnippet: "message passing",
		References:       []string{"10.1/ABC"},
	}
	set := SetOf(rec)
	for _, tok := range []string{"graph", "networks", "message", "passing", "doi:10.1/abc"} {
		if !set.Has(tok) {
			t.Errorf("missing token %q in %v", tok, set.Sorted())
		}
	}
	if len(set) != 5 {
		t.Errorf("expected 5 tokens, got %v", set.Sorted())
	}
}

func TestFitSortedVocabulary(t *testing.T) {
	records := []article.Record{
		{Title: "zeta alpha"},
		{Title: "beta alpha alpha"},
	}
	b := Fit(records)
	terms := b.Terms()
	if b.Len() != 3 || terms[0] != "alpha" || terms[1] != "beta" || terms[2] != "zeta" {
		t.Fatalf("unexpected basis %v", terms)
	}

	v := b.Vector(records[1])
	if v[0] != 2 || v[1] != 1 || v[2] != 0 {
		t.Errorf("unexpected vector %v", v)
	}

	unseen := b.Vector(article.Record{Title: "gamma"})
	for _, x := range unseen {
		if x != 0 {
			t.Errorf("out-of-basis tokens should be ignored, got %v", unseen)
		}
	}
}

func TestVectorizerFamilies(t *testing.T) {
	records := []article.Record{{Title: "one two"}, {Title: "two three"}}

	geo, err := NewVectorizer(FamilyGeometric, records)
	if err != nil {
		t.Fatal(err)
	}
	reps := geo.RepresentAll(records)
	if len(reps[0].Vector) != 3 || len(reps[1].Vector) != 3 || reps[0].Set != nil {
		t.Errorf("geometric representations have wrong shape: %+v", reps)
	}

	set, err := NewVectorizer(FamilySet, records)
	if err != nil {
		t.Fatal(err)
	}
	if set.Basis() != nil {
		t.Error("set family should not fit a basis")
	}
	if rep := set.Represent(records[0]); rep.Vector != nil || !rep.Set.Has("one") {
		t.Errorf("unexpected set representation %+v", rep)
	}

	if _, err := NewVectorizer("cosine", records); err == nil {
		t.Error("expected error for unknown family")
	}
}
