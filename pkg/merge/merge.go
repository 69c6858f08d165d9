// Package merge combines two or more same-format documents into one.
// Elements are deduplicated by identity key, relationship edges are
// unioned with identifiers rewritten to the surviving element's native
// id, and vulnerabilities are unioned by id. Document metadata comes
// from the first input.
package merge

import (
	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/identity"
	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/types"
)

// Strategy selects which duplicate wins.
type Strategy string

const (
	// StrategyFirst keeps the first occurrence of each identity key.
	StrategyFirst Strategy = "first"
	// StrategyLatest keeps the last occurrence, letting later inputs
	// override earlier ones.
	StrategyLatest Strategy = "latest"
)

// ParseStrategy validates a strategy name from the command line.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFirst, StrategyLatest:
		return Strategy(s), nil
	case "":
		return StrategyFirst, nil
	}
	return "", oops.Code("validation_error").With("strategy", s).
		Errorf("unknown merge strategy %q, want first or latest", s)
}

// Documents merges the inputs in order. At least two are required and all
// must share a format.
func Documents(docs []types.Document, strategy Strategy) (types.Document, error) {
	if len(docs) < 2 {
		return types.Document{}, oops.Code("input_count").
			With("inputs", len(docs)).
			Errorf("merge requires at least two inputs, got %d", len(docs))
	}
	for i, d := range docs[1:] {
		if d.Format != docs[0].Format {
			return types.Document{}, oops.Code("format_mismatch").
				With("first", docs[0].Describe()).
				With("input_index", i+1).
				With("other", d.Describe()).
				Errorf("cannot merge %s into %s", d.Describe(), docs[0].Describe())
		}
	}

	logger := log.WithPrefix("merge")

	out := types.Document{
		Format:      docs[0].Format,
		Encoding:    docs[0].Encoding,
		SpecVersion: docs[0].SpecVersion,
		Metadata:    docs[0].Metadata,
	}

	// survivor maps identity key to the index of the kept element in
	// out.Elements; idToKey resolves any input's native id back to its key
	// so relationship edges can be rewritten to the survivor's id.
	survivor := make(map[string]int)
	idToKey := make(map[string]string)
	duplicates := 0

	for _, d := range docs {
		for _, e := range d.Elements {
			key := identity.Key(e)
			idToKey[e.ID] = key

			at, seen := survivor[key]
			if !seen {
				survivor[key] = len(out.Elements)
				out.Elements = append(out.Elements, e)
				continue
			}
			duplicates++
			if strategy == StrategyLatest {
				out.Elements[at] = e
			}
		}
	}

	resolve := func(id string) string {
		key, ok := idToKey[id]
		if !ok {
			return id // dangling ids pass through unchanged
		}
		return out.Elements[survivor[key]].ID
	}

	edges := make(map[edgeKey]struct{})
	for _, d := range docs {
		for _, rel := range d.Relationships {
			src := resolve(rel.Source)
			for _, t := range rel.Targets {
				k := edgeKey{source: src, typ: rel.Type, target: resolve(t)}
				if _, dup := edges[k]; dup {
					continue
				}
				edges[k] = struct{}{}
				out.Relationships = append(out.Relationships, types.Relationship{
					Source:   k.source,
					Type:     k.typ,
					Targets:  []string{k.target},
					VexState: rel.VexState,
				})
			}
		}
	}

	vulns := make(map[string]struct{})
	for _, d := range docs {
		for _, v := range d.Vulnerabilities {
			if _, dup := vulns[v.ID]; dup {
				continue
			}
			vulns[v.ID] = struct{}{}
			rewritten := v
			rewritten.Affects = nil
			for _, ref := range v.Affects {
				rewritten.Affects = append(rewritten.Affects, resolve(ref))
			}
			out.Vulnerabilities = append(out.Vulnerabilities, rewritten)
		}
	}

	logger.Info("Merged documents",
		log.Int("inputs", len(docs)),
		log.Int("elements", len(out.Elements)),
		log.Int("duplicates", duplicates),
		log.Int("relationships", len(out.Relationships)),
		log.Int("vulnerabilities", len(out.Vulnerabilities)))
	return out, nil
}

type edgeKey struct {
	source string
	typ    string
	target string
}
