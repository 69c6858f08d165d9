package stream

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/sbomtools/sbomshift/pkg/log"
	"github.com/sbomtools/sbomshift/pkg/types"
)

// cdxComponent is the minimal wire shape for a CycloneDX component.
type cdxComponent struct {
	BOMRef      string             `json:"bom-ref"`
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	PURL        string             `json:"purl"`
	CPE         string             `json:"cpe"`
	Description string             `json:"description"`
	Scope       string             `json:"scope"`
	Hashes      []types.Hash       `json:"hashes"`
	Licenses    []cdxLicenseChoice `json:"licenses"`
}

type cdxLicenseChoice struct {
	Expression string `json:"expression"`
	License    *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"license"`
}

type cdxDependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn"`
}

type cdxVulnerability struct {
	ID     string `json:"id"`
	Source *struct {
		Name string `json:"name"`
	} `json:"source"`
	Analysis *struct {
		State string `json:"state"`
	} `json:"analysis"`
	Affects []struct {
		Ref string `json:"ref"`
	} `json:"affects"`
}

func (c cdxComponent) kind() types.Kind {
	switch c.Type {
	case "library":
		return types.KindLibrary
	case "application":
		return types.KindApplication
	case "file":
		return types.KindFile
	case "":
		return types.KindLibrary
	}
	return types.KindOther
}

func (c cdxComponent) license() string {
	var parts []string
	for _, lc := range c.Licenses {
		switch {
		case lc.Expression != "":
			parts = append(parts, lc.Expression)
		case lc.License != nil && lc.License.ID != "":
			parts = append(parts, lc.License.ID)
		case lc.License != nil && lc.License.Name != "":
			parts = append(parts, lc.License.Name)
		}
	}
	return strings.Join(parts, " AND ")
}

func (c cdxComponent) toElement() types.Element {
	return types.Element{
		ID:          c.BOMRef,
		Kind:        c.kind(),
		Name:        c.Name,
		Version:     c.Version,
		PURL:        c.PURL,
		CPE:         c.CPE,
		Hashes:      c.Hashes,
		Description: c.Description,
		Scope:       c.Scope,
		LicenseExpr: c.license(),
	}
}

func (v cdxVulnerability) toVulnerability() types.Vulnerability {
	out := types.Vulnerability{ID: v.ID}
	if v.Source != nil {
		out.Source = v.Source.Name
	}
	if v.Analysis != nil {
		out.State = v.Analysis.State
		if out.State != "" && !types.ValidAnalysisState(out.State) {
			log.Debug("Unknown analysis state carried through",
				log.String("vulnerability", v.ID),
				log.String("state", out.State))
		}
	}
	for _, a := range v.Affects {
		out.Affects = append(out.Affects, a.Ref)
	}
	return out
}

// firstToolName digs the producing tool out of metadata.tools, which is a
// plain tool array through 1.4 and a components/services wrapper from 1.5.
func firstToolName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	type tool struct {
		Vendor string `json:"vendor"`
		Name   string `json:"name"`
	}
	pick := func(tools []tool) string {
		for _, t := range tools {
			if t.Name != "" {
				return t.Name
			}
		}
		return ""
	}

	var legacy []tool
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return pick(legacy)
	}

	var wrapped struct {
		Components []tool `json:"components"`
		Services   []tool `json:"services"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return ""
	}
	if name := pick(wrapped.Components); name != "" {
		return name
	}
	return pick(wrapped.Services)
}

// DecodeCycloneDX walks a CycloneDX JSON document and feeds the configured
// sinks in file order. Dependency records surface as DEPENDS_ON
// relationships, one per record, fanning out to all dependsOn targets.
func DecodeCycloneDX(r io.Reader, opts Options) error {
	dec := newDecoder(r)
	var meta Meta

	components := func(dec *json.Decoder) error {
		if opts.Elements == nil {
			return skipArray(dec)
		}
		return forEachRaw(dec, func(i int, raw json.RawMessage) error {
			var wc cdxComponent
			if err := json.Unmarshal(raw, &wc); err != nil {
				opts.malformed(i, err)
				return nil
			}
			opts.countElement()
			return opts.Elements(i, wc.toElement())
		})
	}

	dependencies := func(dec *json.Decoder) error {
		if opts.Relationships == nil {
			return skipArray(dec)
		}
		return forEachRaw(dec, func(i int, raw json.RawMessage) error {
			var wd cdxDependency
			if err := json.Unmarshal(raw, &wd); err != nil {
				opts.malformed(i, err)
				return nil
			}
			opts.countRelationship()
			return opts.Relationships(i, types.Relationship{
				Source:  wd.Ref,
				Type:    types.RelDependsOn,
				Targets: wd.DependsOn,
			})
		})
	}

	vulnerabilities := func(dec *json.Decoder) error {
		if opts.Vulnerabilities == nil {
			return skipArray(dec)
		}
		return forEachRaw(dec, func(i int, raw json.RawMessage) error {
			var wv cdxVulnerability
			if err := json.Unmarshal(raw, &wv); err != nil {
				opts.malformed(i, err)
				return nil
			}
			opts.countElement()
			return opts.Vulnerabilities(i, wv.toVulnerability())
		})
	}

	scalar := func(dst *string) func(dec *json.Decoder) error {
		return func(dec *json.Decoder) error {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			if s, ok := tok.(string); ok {
				*dst = s
			}
			return nil
		}
	}

	metadata := func(dec *json.Decoder) error {
		var md struct {
			Timestamp string          `json:"timestamp"`
			Tools     json.RawMessage `json:"tools"`
		}
		if err := dec.Decode(&md); err != nil {
			return err
		}
		meta.Timestamp = md.Timestamp
		meta.Tool = firstToolName(md.Tools)
		return nil
	}

	err := walkObject(dec, map[string]func(dec *json.Decoder) error{
		"components":      components,
		"dependencies":    dependencies,
		"vulnerabilities": vulnerabilities,
		"specVersion":     scalar(&meta.SpecVersion),
		"serialNumber":    scalar(&meta.Serial),
		"metadata":        metadata,
	})
	if err != nil {
		return err
	}

	if opts.Meta != nil {
		opts.Meta(meta)
	}
	return nil
}
