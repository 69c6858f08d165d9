// Package index holds the relationship index built during the first
// conversion pass. Memory is proportional to the relationship count and
// independent of element count; this is the one deliberately superlinear
// structure in the pipeline.
package index

import "github.com/sbomtools/sbomshift/pkg/types"

// Edge is one outgoing relationship entry.
type Edge struct {
	Type   string
	Target string
}

// Affected records a vulnerability's AFFECTS fan-out together with its VEX
// analysis state, consumed by the vulnerability conversion pass.
type Affected struct {
	State   string
	Targets []string
}

// Index maps element ids to their outgoing relationship edges, in encounter
// order, plus a secondary vulnerability-id to AFFECTS-targets mapping.
type Index struct {
	out     map[string][]Edge
	affects map[string]*Affected
	order   []string
	count   int
}

// New returns an empty index.
func New() *Index {
	return &Index{
		out:     make(map[string][]Edge),
		affects: make(map[string]*Affected),
	}
}

// Add records one relationship. Unknown relationship types are kept as-is;
// classification is the consumer's concern.
func (ix *Index) Add(rel types.Relationship) {
	if _, seen := ix.out[rel.Source]; !seen && len(rel.Targets) > 0 {
		ix.order = append(ix.order, rel.Source)
	}
	for _, target := range rel.Targets {
		ix.out[rel.Source] = append(ix.out[rel.Source], Edge{Type: rel.Type, Target: target})
		ix.count++
	}

	if rel.Type == types.RelAffects || rel.VexState != "" {
		a := ix.affects[rel.Source]
		if a == nil {
			a = &Affected{}
			ix.affects[rel.Source] = a
		}
		a.Targets = append(a.Targets, rel.Targets...)
		if rel.VexState != "" {
			a.State = rel.VexState
		}
	}
}

// Edges returns all outgoing edges of the given element in encounter order.
func (ix *Index) Edges(id string) []Edge {
	return ix.out[id]
}

// DependsOn returns the dependency targets of the given element, covering
// the dependency vocabulary of both formats.
func (ix *Index) DependsOn(id string) []string {
	var targets []string
	for _, e := range ix.out[id] {
		if (types.Relationship{Type: e.Type}).IsDependency() {
			targets = append(targets, e.Target)
		}
	}
	return targets
}

// Affects returns the AFFECTS record for a vulnerability id, or nil.
func (ix *Index) Affects(vulnID string) *Affected {
	return ix.affects[vulnID]
}

// SourceOrder returns source ids in first-encounter order, so emitted
// dependency lists are deterministic across runs.
func (ix *Index) SourceOrder() []string {
	return ix.order
}

// Sources returns the number of elements with at least one outgoing edge.
func (ix *Index) Sources() int { return len(ix.out) }

// Len returns the total number of indexed edges.
func (ix *Index) Len() int { return ix.count }
