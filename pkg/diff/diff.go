// Package diff compares two fully decoded same-format documents by
// identity key: elements, dependency edges and vulnerabilities are each
// diffed as sets, with field-level change detail for elements present on
// both sides.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/identity"
	"github.com/sbomtools/sbomshift/pkg/types"
)

// Entry summarizes one element in the report.
type Entry struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Change is one field-level difference of a modified element.
type Change struct {
	Field string `json:"field"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Modified pairs an element with its field changes.
type Modified struct {
	Entry
	Changes []Change `json:"changes"`
}

// Edge is a dependency edge keyed by element identity.
type Edge struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	Target string `json:"target"`
}

// VulnEntry summarizes one vulnerability in the report. Affects holds the
// identity keys of the affected elements.
type VulnEntry struct {
	ID      string   `json:"id"`
	State   string   `json:"state,omitempty"`
	Affects []string `json:"affects,omitempty"`
}

// Report is the structured diff result.
type Report struct {
	LeftFormat  string `json:"format1"`
	RightFormat string `json:"format2"`

	Added     []Entry    `json:"added"`
	Removed   []Entry    `json:"removed"`
	Modified  []Modified `json:"modified"`
	Unchanged []Entry    `json:"unchanged"`

	EdgesAdded   []Edge `json:"dependencies_added"`
	EdgesRemoved []Edge `json:"dependencies_removed"`

	VulnsAdded   []VulnEntry `json:"vulnerabilities_added"`
	VulnsRemoved []VulnEntry `json:"vulnerabilities_removed"`
}

// Documents diffs right against left. Both must be the same format.
func Documents(left, right types.Document) (*Report, error) {
	if left.Format != right.Format {
		return nil, oops.Code("format_mismatch").
			With("left", left.Describe()).
			With("right", right.Describe()).
			Errorf("cannot diff %s against %s", left.Describe(), right.Describe())
	}

	r := &Report{
		LeftFormat:  left.Describe(),
		RightFormat: right.Describe(),
	}

	leftByKey := elementsByKey(left)
	rightByKey := elementsByKey(right)

	for key, e := range rightByKey {
		if _, ok := leftByKey[key]; !ok {
			r.Added = append(r.Added, entry(key, e))
		}
	}
	for key, e := range leftByKey {
		other, ok := rightByKey[key]
		if !ok {
			r.Removed = append(r.Removed, entry(key, e))
			continue
		}
		changes := compare(e, other)
		if len(changes) == 0 {
			r.Unchanged = append(r.Unchanged, entry(key, e))
		} else {
			r.Modified = append(r.Modified, Modified{Entry: entry(key, e), Changes: changes})
		}
	}

	r.EdgesAdded, r.EdgesRemoved = diffEdges(left, right)
	r.VulnsAdded, r.VulnsRemoved = diffVulns(left, right)

	r.sort()
	return r, nil
}

func elementsByKey(doc types.Document) map[string]types.Element {
	m := make(map[string]types.Element, len(doc.Elements))
	for _, e := range doc.Elements {
		m[identity.Key(e)] = e
	}
	return m
}

func entry(key string, e types.Element) Entry {
	return Entry{Key: key, Name: e.Name, Version: e.Version}
}

// compare checks the mapped fields only; identity fields are already equal
// when two elements reach this point.
func compare(a, b types.Element) []Change {
	var changes []Change
	add := func(field, left, right string) {
		if left != right {
			changes = append(changes, Change{Field: field, Left: left, Right: right})
		}
	}
	add("name", a.Name, b.Name)
	add("version", a.Version, b.Version)
	add("type", string(a.Kind), string(b.Kind))
	add("description", a.Description, b.Description)
	add("scope", a.Scope, b.Scope)
	add("license", a.LicenseExpr, b.LicenseExpr)
	add("hashes", hashFingerprint(a.Hashes), hashFingerprint(b.Hashes))
	return changes
}

func hashFingerprint(hashes []types.Hash) string {
	parts := make([]string, 0, len(hashes))
	for _, h := range hashes {
		parts = append(parts, h.Algorithm+":"+h.Value)
	}
	sort.Strings(parts)
	return fmt.Sprint(parts)
}

// diffEdges compares dependency edges as (source-key, type, target-key)
// triples. Identifiers are translated to identity keys so the comparison
// holds across differently-encoded documents.
func diffEdges(left, right types.Document) (added, removed []Edge) {
	leftSet := edgeSet(left)
	rightSet := edgeSet(right)

	for e := range rightSet {
		if _, ok := leftSet[e]; !ok {
			added = append(added, e)
		}
	}
	for e := range leftSet {
		if _, ok := rightSet[e]; !ok {
			removed = append(removed, e)
		}
	}
	return added, removed
}

func edgeSet(doc types.Document) map[Edge]struct{} {
	keyByID := make(map[string]string, len(doc.Elements))
	for _, e := range doc.Elements {
		keyByID[e.ID] = identity.Key(e)
	}
	resolve := func(id string) string {
		if k, ok := keyByID[id]; ok {
			return k
		}
		return id // dangling targets participate unresolved
	}

	set := make(map[Edge]struct{})
	for _, rel := range doc.Relationships {
		for _, t := range rel.Targets {
			set[Edge{Source: resolve(rel.Source), Type: rel.Type, Target: resolve(t)}] = struct{}{}
		}
	}
	return set
}

// diffVulns compares vulnerabilities as (id, analysis state, affected set)
// records, with affected refs translated to identity keys the same way
// edgeSet translates edge endpoints. A state flip or a changed affected
// set surfaces as the old entry removed and the new one added.
func diffVulns(left, right types.Document) (added, removed []VulnEntry) {
	leftByID := vulnEntries(left)
	rightByID := vulnEntries(right)

	for id, v := range rightByID {
		if prev, ok := leftByID[id]; !ok || !sameVuln(prev, v) {
			added = append(added, v)
		}
	}
	for id, v := range leftByID {
		if next, ok := rightByID[id]; !ok || !sameVuln(v, next) {
			removed = append(removed, v)
		}
	}
	return added, removed
}

func vulnEntries(doc types.Document) map[string]VulnEntry {
	keyByID := make(map[string]string, len(doc.Elements))
	for _, e := range doc.Elements {
		keyByID[e.ID] = identity.Key(e)
	}

	m := make(map[string]VulnEntry, len(doc.Vulnerabilities))
	for _, v := range doc.Vulnerabilities {
		entry := VulnEntry{ID: v.ID, State: v.State}
		for _, ref := range v.Affects {
			ref = affectedRef(ref)
			if k, ok := keyByID[ref]; ok {
				ref = k
			}
			entry.Affects = append(entry.Affects, ref)
		}
		sort.Strings(entry.Affects)
		m[v.ID] = entry
	}
	return m
}

// affectedRef strips the document-scoped serial wrapper from an affected
// reference so the bare element ref can resolve across documents.
func affectedRef(ref string) string {
	if strings.HasPrefix(ref, "urn:uuid:") {
		if i := strings.Index(ref, "#"); i >= 0 {
			return ref[i+1:]
		}
	}
	return ref
}

func sameVuln(a, b VulnEntry) bool {
	if a.State != b.State || len(a.Affects) != len(b.Affects) {
		return false
	}
	for i := range a.Affects {
		if a.Affects[i] != b.Affects[i] {
			return false
		}
	}
	return true
}

func (r *Report) sort() {
	byKey := func(s []Entry) {
		sort.Slice(s, func(i, j int) bool { return s[i].Key < s[j].Key })
	}
	byKey(r.Added)
	byKey(r.Removed)
	byKey(r.Unchanged)
	sort.Slice(r.Modified, func(i, j int) bool { return r.Modified[i].Key < r.Modified[j].Key })

	byEdge := func(s []Edge) {
		sort.Slice(s, func(i, j int) bool {
			if s[i].Source != s[j].Source {
				return s[i].Source < s[j].Source
			}
			return s[i].Target < s[j].Target
		})
	}
	byEdge(r.EdgesAdded)
	byEdge(r.EdgesRemoved)

	byID := func(s []VulnEntry) {
		sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	byID(r.VulnsAdded)
	byID(r.VulnsRemoved)
}
