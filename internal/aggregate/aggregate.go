package aggregate

import (
	"sort"

	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/cluster"
)

// Group is one cluster with its records in input order.
type Group struct {
	Label   int              `json:"label"`
	Name    string           `json:"name"`
	Size    int              `json:"size"`
	Records []article.Record `json:"records"`
}

// View is a read-only grouping of records by cluster label. Records without a label are
// listed as unassigned.
type View struct {
	groups     []Group
	unassigned []article.Record
}

// Build groups records by their assignment, keeping input order within each group and
// ordering groups by label. Records are copied; the inputs are never modified.
func Build(records []article.Record, assignment cluster.Assignment) *View {
	byLabel := make(map[int]*Group)
	v := &View{}
	for _, rec := range records {
		label, ok := assignment[rec.IdentityKey]
		if !ok {
			v.unassigned = append(v.unassigned, rec.Clone())
			continue
		}
		g := byLabel[label]
		if g == nil {
			g = &Group{Label: label}
			byLabel[label] = g
		}
		g.Records = append(g.Records, rec.Clone())
	}

	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	for _, l := range labels {
		g := byLabel[l]
		g.Size = len(g.Records)
		titles := make([]string, len(g.Records))
		for i, r := range g.Records {
			titles[i] = r.Title
		}
		g.Name = cluster.Label(titles)
		v.groups = append(v.groups, *g)
	}
	return v
}

// Groups returns copies of all groups ordered by label.
func (v *View) Groups() []Group {
	out := make([]Group, len(v.groups))
	for i, g := range v.groups {
		out[i] = copyGroup(g)
	}
	return out
}

// Group returns a copy of the group with the given label.
func (v *View) Group(label int) (Group, bool) {
	for _, g := range v.groups {
		if g.Label == label {
			return copyGroup(g), true
		}
	}
	return Group{}, false
}

// Unassigned returns copies of records that had no label.
func (v *View) Unassigned() []article.Record {
	return cloneAll(v.unassigned)
}

// Len is the number of groups.
func (v *View) Len() int { return len(v.groups) }

func copyGroup(g Group) Group {
	g.Records = cloneAll(g.Records)
	return g
}

func cloneAll(records []article.Record) []article.Record {
	if records == nil {
		return nil
	}
	out := make([]article.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
