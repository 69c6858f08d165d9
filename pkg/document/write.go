package document

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/mapper"
	"github.com/sbomtools/sbomshift/pkg/types"
	"github.com/sbomtools/sbomshift/pkg/xmlcodec"
)

// Save writes a document to the named file in its native format. A .xml
// extension selects the XML codec (CycloneDX only); everything else is
// JSON.
func Save(path string, doc types.Document) error {
	eb := oops.Code("io_error").With("file_path", path)

	f, err := os.Create(path)
	if err != nil {
		return eb.Wrapf(err, "file create error")
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xml") {
		if doc.Format != types.FormatCycloneDX {
			return oops.Code("format_error").Errorf("XML output is only supported for CycloneDX")
		}
		return xmlcodec.Encode(f, doc)
	}
	return WriteJSON(f, doc)
}

// WriteJSON encodes a document as native-format JSON.
func WriteJSON(w io.Writer, doc types.Document) error {
	var native any
	switch doc.Format {
	case types.FormatCycloneDX:
		native = cycloneDXJSON(doc)
	case types.FormatSPDX:
		native = spdxJSON(doc)
	default:
		return oops.Code("format_error").Errorf("unknown document format %q", doc.Format)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(native); err != nil {
		return oops.Code("io_error").Wrapf(err, "json encode error")
	}
	return nil
}

func cycloneDXJSON(doc types.Document) map[string]any {
	out := map[string]any{
		"bomFormat":   "CycloneDX",
		"specVersion": doc.SpecVersion,
		"version":     1,
	}
	if doc.Metadata.Serial != "" {
		out["serialNumber"] = doc.Metadata.Serial
	}
	if doc.Metadata.Timestamp != "" {
		out["metadata"] = map[string]any{"timestamp": doc.Metadata.Timestamp}
	}

	components := make([]mapper.CDXComponent, 0, len(doc.Elements))
	for _, e := range doc.Elements {
		c := mapper.ToCDXComponent(e)
		c.BOMRef = e.ID // native ids are already bom-refs here
		components = append(components, c)
	}
	out["components"] = components

	deps := make([]map[string]any, 0)
	for _, rel := range doc.Relationships {
		if !rel.IsDependency() {
			continue
		}
		deps = append(deps, map[string]any{
			"ref":       rel.Source,
			"dependsOn": rel.Targets,
		})
	}
	out["dependencies"] = deps

	if len(doc.Vulnerabilities) > 0 {
		vulns := make([]map[string]any, 0, len(doc.Vulnerabilities))
		for _, v := range doc.Vulnerabilities {
			entry := map[string]any{"id": v.ID}
			if v.Source != "" {
				entry["source"] = map[string]any{"name": v.Source}
			}
			if v.State != "" {
				entry["analysis"] = map[string]any{"state": v.State}
			}
			if len(v.Affects) > 0 {
				affects := make([]map[string]any, 0, len(v.Affects))
				for _, ref := range v.Affects {
					affects = append(affects, map[string]any{"ref": ref})
				}
				entry["affects"] = affects
			}
			vulns = append(vulns, entry)
		}
		out["vulnerabilities"] = vulns
	}
	return out
}

func spdxJSON(doc types.Document) map[string]any {
	out := map[string]any{
		"spdxVersion": "SPDX-" + strings.TrimPrefix(doc.SpecVersion, "SPDX-"),
		"spdxId":      "SPDXRef-DOCUMENT",
	}
	if doc.Metadata.Serial != "" {
		out["documentNamespace"] = doc.Metadata.Serial
	}
	if doc.Metadata.Timestamp != "" || doc.Metadata.Tool != "" {
		ci := map[string]any{}
		if doc.Metadata.Timestamp != "" {
			ci["created"] = doc.Metadata.Timestamp
		}
		if doc.Metadata.Tool != "" {
			ci["creators"] = []string{doc.Metadata.Tool}
		}
		out["creationInfo"] = ci
	}

	elements := make([]mapper.SPDXElement, 0, len(doc.Elements))
	for _, e := range doc.Elements {
		elements = append(elements, mapper.ToSPDXElement(e))
	}
	for _, v := range doc.Vulnerabilities {
		elements = append(elements, mapper.SPDXElement{
			SpdxID: mapper.SPDXRef("Vulnerability-" + v.ID),
			Type:   "SpdxVulnerability",
			Name:   v.ID,
		})
	}
	out["elements"] = elements

	rels := make([]mapper.SPDXRelationship, 0)
	for _, rel := range doc.Relationships {
		for _, t := range rel.Targets {
			rels = append(rels, mapper.SPDXRelationship{
				SpdxElementID:      mapper.SPDXRef(rel.Source),
				RelationshipType:   rel.Type,
				RelatedSpdxElement: mapper.SPDXRef(t),
			})
		}
	}
	for _, v := range doc.Vulnerabilities {
		for _, ref := range v.Affects {
			rels = append(rels, mapper.SPDXRelationship{
				SpdxElementID:      mapper.SPDXRef("Vulnerability-" + v.ID),
				RelationshipType:   types.RelAffects,
				RelatedSpdxElement: ref,
			})
		}
	}
	out["relationships"] = rels
	return out
}
