package stream

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/sbomtools/sbomshift/pkg/types"
)

// spdxElement is the minimal wire shape for one entry of an SPDX element
// array. It covers both the simple-JSON spelling and the JSON-LD one; only
// the fields the field mapper understands are decoded, the rest is dropped
// by encoding/json.
type spdxElement struct {
	SpdxID   string `json:"spdxId"`
	SPDXID   string `json:"SPDXID"`
	Type     string `json:"type"`
	TypeAlt  string `json:"@type"`
	Name     string `json:"name"`
	Version  string `json:"versionInfo"`
	PkgVer   string `json:"software_packageVersion"`
	Summary  string `json:"summary"`
	Descr    string `json:"description"`
	PURL     string `json:"purl"`
	License  string `json:"licenseConcluded"`
	Purpose  string `json:"software_primaryPurpose"`
	ExtIDs   []spdxExternalIdentifier `json:"externalIdentifier"`
	Verified []spdxHash               `json:"verifiedUsing"`

	// SPDX 2.x package spellings.
	Checksums []spdxChecksum    `json:"checksums"`
	ExtRefs   []spdxExternalRef `json:"externalRefs"`
}

type spdxChecksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"checksumValue"`
}

type spdxExternalRef struct {
	Type    string `json:"referenceType"`
	Locator string `json:"referenceLocator"`
}

type spdxExternalIdentifier struct {
	Type       string `json:"externalIdentifierType"`
	Identifier string `json:"identifier"`
}

type spdxHash struct {
	Algorithm string `json:"algorithm"`
	HashValue string `json:"hashValue"`
}

// spdxRelationship is the minimal wire shape for a relationship in either
// SPDX spelling: simple JSON uses spdxElementId/relatedSpdxElement, JSON-LD
// uses from/to.
type spdxRelationship struct {
	SpdxElementID      string   `json:"spdxElementId"`
	RelationshipType   string   `json:"relationshipType"`
	RelatedSpdxElement string   `json:"relatedSpdxElement"`
	Type               string   `json:"type"`
	From               string   `json:"from"`
	To                 []string `json:"to"`
}

func (e spdxElement) id() string {
	if e.SpdxID != "" {
		return e.SpdxID
	}
	return e.SPDXID
}

func (e spdxElement) kind() types.Kind {
	t := e.Type
	if t == "" {
		t = e.TypeAlt
	}
	switch {
	case strings.Contains(t, "Vulnerability"):
		return types.KindVulnerability
	case strings.Contains(t, "Package"):
		return types.KindPackage
	case strings.Contains(t, "File"):
		return types.KindFile
	}
	return types.KindOther
}

func (e spdxElement) externalID(idType string) string {
	for _, id := range e.ExtIDs {
		if id.Type == idType {
			return id.Identifier
		}
	}
	return ""
}

func (e spdxElement) toElement() types.Element {
	purl := e.PURL
	if purl == "" {
		purl = e.externalID("purl")
	}
	cpe := e.externalID("cpe23Type")
	if cpe == "" {
		cpe = e.externalID("cpe23")
	}
	for _, ref := range e.ExtRefs {
		switch ref.Type {
		case "purl":
			if purl == "" {
				purl = ref.Locator
			}
		case "cpe23Type":
			if cpe == "" {
				cpe = ref.Locator
			}
		}
	}

	version := e.Version
	if version == "" {
		version = e.PkgVer
	}
	descr := e.Summary
	if descr == "" {
		descr = e.Descr
	}

	var hashes []types.Hash
	for _, h := range e.Verified {
		if h.Algorithm == "" || h.HashValue == "" {
			continue
		}
		hashes = append(hashes, types.Hash{Algorithm: h.Algorithm, Value: h.HashValue})
	}
	for _, c := range e.Checksums {
		if c.Algorithm == "" || c.Value == "" {
			continue
		}
		hashes = append(hashes, types.Hash{Algorithm: c.Algorithm, Value: c.Value})
	}

	elem := types.Element{
		ID:          e.id(),
		Kind:        e.kind(),
		Name:        e.Name,
		Version:     version,
		PURL:        purl,
		CPE:         cpe,
		Hashes:      hashes,
		Description: descr,
		Scope:       e.Purpose,
		LicenseExpr: e.License,
	}

	// JSON-LD vulnerability ids are URIs ending in /vulnerability/CVE-xxx;
	// surface the CVE as the element name when none was given.
	if elem.Kind == types.KindVulnerability && elem.Name == "" {
		if cve := e.externalID("cve"); cve != "" {
			elem.Name = cve
		} else if i := strings.LastIndex(elem.ID, "/vulnerability/"); i >= 0 {
			elem.Name = elem.ID[i+len("/vulnerability/"):]
		}
	}
	return elem
}

func (r spdxRelationship) toRelationship() types.Relationship {
	if r.From != "" { // JSON-LD spelling
		rel := types.Relationship{
			Source:  r.From,
			Type:    r.RelationshipType,
			Targets: r.To,
		}
		if state := vexState(r.Type); state != "" {
			rel.Type = types.RelAffects
			rel.VexState = state
		}
		return rel
	}
	return types.Relationship{
		Source:  r.SpdxElementID,
		Type:    r.RelationshipType,
		Targets: []string{r.RelatedSpdxElement},
	}
}

// vexState maps a JSON-LD VEX assessment relationship type to a CycloneDX
// analysis state. Non-VEX types map to the empty string.
func vexState(relType string) string {
	switch {
	case strings.Contains(relType, "VexNotAffected"):
		return "not_affected"
	case strings.Contains(relType, "VexFixed"):
		return "resolved"
	case strings.Contains(relType, "VexAffected"), strings.Contains(relType, "VexUnderInvestigation"):
		return "in_triage"
	}
	return ""
}

// looksLikeRelationship classifies a JSON-LD @graph entry.
func (r spdxRelationship) looksLikeRelationship() bool {
	return r.From != "" || strings.Contains(r.Type, "Relationship")
}

// DecodeSPDX walks an SPDX document (simple JSON or JSON-LD) and feeds the
// configured sinks in file order. Each item is visited at most once; nothing
// beyond the current item is held in memory.
func DecodeSPDX(r io.Reader, opts Options) error {
	dec := newDecoder(r)
	var meta Meta

	elements := func(dec *json.Decoder) error {
		if opts.Elements == nil {
			return skipArray(dec)
		}
		return forEachRaw(dec, func(i int, raw json.RawMessage) error {
			var we spdxElement
			if err := json.Unmarshal(raw, &we); err != nil {
				opts.malformed(i, err)
				return nil
			}
			opts.countElement()
			return opts.Elements(i, we.toElement())
		})
	}

	relationships := func(dec *json.Decoder) error {
		if opts.Relationships == nil {
			return skipArray(dec)
		}
		return forEachRaw(dec, func(i int, raw json.RawMessage) error {
			var wr spdxRelationship
			if err := json.Unmarshal(raw, &wr); err != nil {
				opts.malformed(i, err)
				return nil
			}
			opts.countRelationship()
			return opts.Relationships(i, wr.toRelationship())
		})
	}

	// The @graph array mixes elements and relationships; classify per item.
	graph := func(dec *json.Decoder) error {
		return forEachRaw(dec, func(i int, raw json.RawMessage) error {
			var wr spdxRelationship
			if err := json.Unmarshal(raw, &wr); err == nil && wr.looksLikeRelationship() {
				if opts.Relationships == nil {
					return nil
				}
				opts.countRelationship()
				return opts.Relationships(i, wr.toRelationship())
			}

			if opts.Elements == nil {
				return nil
			}
			var we spdxElement
			if err := json.Unmarshal(raw, &we); err != nil {
				opts.malformed(i, err)
				return nil
			}
			if we.id() == "" && we.Name == "" {
				return nil // creation info and other non-element graph nodes
			}
			opts.countElement()
			return opts.Elements(i, we.toElement())
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

	creationInfo := func(dec *json.Decoder) error {
		var ci struct {
			Created  string   `json:"created"`
			Creators []string `json:"creators"`
		}
		if err := dec.Decode(&ci); err != nil {
			return err
		}
		meta.Timestamp = ci.Created
		if len(ci.Creators) > 0 {
			meta.Tool = ci.Creators[0]
		}
		return nil
	}

	err := walkObject(dec, map[string]func(dec *json.Decoder) error{
		"elements":          elements,
		"packages":          elements, // SPDX 2.x spelling
		"relationships":     relationships,
		"@graph":            graph,
		"spdxVersion":       scalar(&meta.SpecVersion),
		"documentNamespace": scalar(&meta.Serial),
		"name":              scalar(&meta.Name),
		"creationInfo":      creationInfo,
	})
	if err != nil {
		return err
	}

	meta.SpecVersion = strings.TrimPrefix(meta.SpecVersion, "SPDX-")
	if opts.Meta != nil {
		opts.Meta(meta)
	}
	return nil
}
