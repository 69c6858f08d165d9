// Package xmlcodec reads and writes CycloneDX XML. The XML form carries
// the same information as the JSON form with attributes where JSON uses
// fields: component type and bom-ref, hash alg, dependency ref.
package xmlcodec

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/samber/oops"

	"github.com/sbomtools/sbomshift/pkg/mapper"
	"github.com/sbomtools/sbomshift/pkg/types"
)

const xmlnsPrefix = "http://cyclonedx.org/schema/bom/"

type xmlBOM struct {
	XMLName         xml.Name           `xml:"bom"`
	XMLNS           string             `xml:"xmlns,attr"`
	SerialNumber    string             `xml:"serialNumber,attr,omitempty"`
	Version         string             `xml:"version,attr,omitempty"`
	Metadata        *xmlMetadata       `xml:"metadata,omitempty"`
	Components      []xmlComponent     `xml:"components>component"`
	Dependencies    []xmlDependency    `xml:"dependencies>dependency"`
	Vulnerabilities []xmlVulnerability `xml:"vulnerabilities>vulnerability"`
}

type xmlMetadata struct {
	Timestamp string `xml:"timestamp,omitempty"`
}

type xmlComponent struct {
	Type        string       `xml:"type,attr"`
	BOMRef      string       `xml:"bom-ref,attr,omitempty"`
	Name        string       `xml:"name"`
	Version     string       `xml:"version,omitempty"`
	Scope       string       `xml:"scope,omitempty"`
	Description string       `xml:"description,omitempty"`
	Hashes      []xmlHash    `xml:"hashes>hash"`
	Licenses    []xmlLicense `xml:"licenses>license"`
	CPE         string       `xml:"cpe,omitempty"`
	PURL        string       `xml:"purl,omitempty"`
}

type xmlHash struct {
	Alg   string `xml:"alg,attr"`
	Value string `xml:",chardata"`
}

type xmlLicense struct {
	Expression string `xml:"expression,omitempty"`
	ID         string `xml:"id,omitempty"`
}

type xmlDependency struct {
	Ref       string          `xml:"ref,attr"`
	DependsOn []xmlDependency `xml:"dependency"`
}

type xmlVulnerability struct {
	ID       string       `xml:"id"`
	Source   *xmlVulnSrc  `xml:"source,omitempty"`
	Analysis *xmlAnalysis `xml:"analysis,omitempty"`
	Affects  []xmlTarget  `xml:"affects>target"`
}

type xmlVulnSrc struct {
	Name string `xml:"name,omitempty"`
}

type xmlAnalysis struct {
	State string `xml:"state,omitempty"`
}

type xmlTarget struct {
	Ref string `xml:"ref"`
}

// Decode reads a CycloneDX XML document into the neutral form.
func Decode(r io.Reader) (types.Document, error) {
	var bom xmlBOM
	if err := xml.NewDecoder(r).Decode(&bom); err != nil {
		return types.Document{}, oops.Code("parse_error").Wrapf(err, "xml decode error")
	}

	doc := types.Document{
		Format:      types.FormatCycloneDX,
		Encoding:    types.EncodingXML,
		SpecVersion: strings.TrimPrefix(bom.XMLNS, xmlnsPrefix),
		Metadata:    types.DocMetadata{Serial: bom.SerialNumber},
	}
	if bom.Metadata != nil {
		doc.Metadata.Timestamp = bom.Metadata.Timestamp
	}

	for _, c := range bom.Components {
		doc.Elements = append(doc.Elements, componentToElement(c))
	}
	for _, d := range bom.Dependencies {
		targets := make([]string, 0, len(d.DependsOn))
		for _, t := range d.DependsOn {
			targets = append(targets, t.Ref)
		}
		doc.Relationships = append(doc.Relationships, types.Relationship{
			Source:  d.Ref,
			Type:    types.RelDependsOn,
			Targets: targets,
		})
	}
	for _, v := range bom.Vulnerabilities {
		vuln := types.Vulnerability{ID: v.ID}
		if v.Source != nil {
			vuln.Source = v.Source.Name
		}
		if v.Analysis != nil {
			vuln.State = v.Analysis.State
		}
		for _, t := range v.Affects {
			vuln.Affects = append(vuln.Affects, t.Ref)
		}
		doc.Vulnerabilities = append(doc.Vulnerabilities, vuln)
	}
	return doc, nil
}

// Encode writes the document as CycloneDX XML.
func Encode(w io.Writer, doc types.Document) error {
	version := doc.SpecVersion
	if version == "" {
		version = "1.6"
	}
	bom := xmlBOM{
		XMLNS:        xmlnsPrefix + version,
		SerialNumber: doc.Metadata.Serial,
		Version:      "1",
	}
	if doc.Metadata.Timestamp != "" {
		bom.Metadata = &xmlMetadata{Timestamp: doc.Metadata.Timestamp}
	}

	for _, e := range doc.Elements {
		bom.Components = append(bom.Components, elementToComponent(e))
	}
	for _, rel := range doc.Relationships {
		if !rel.IsDependency() {
			continue
		}
		dep := xmlDependency{Ref: rel.Source}
		for _, t := range rel.Targets {
			dep.DependsOn = append(dep.DependsOn, xmlDependency{Ref: t})
		}
		bom.Dependencies = append(bom.Dependencies, dep)
	}
	for _, v := range doc.Vulnerabilities {
		xv := xmlVulnerability{ID: v.ID}
		if v.Source != "" {
			xv.Source = &xmlVulnSrc{Name: v.Source}
		}
		if v.State != "" {
			xv.Analysis = &xmlAnalysis{State: v.State}
		}
		for _, ref := range v.Affects {
			xv.Affects = append(xv.Affects, xmlTarget{Ref: ref})
		}
		bom.Vulnerabilities = append(bom.Vulnerabilities, xv)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return oops.Code("io_error").Wrapf(err, "xml write error")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(bom); err != nil {
		return oops.Code("io_error").Wrapf(err, "xml encode error")
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func componentToElement(c xmlComponent) types.Element {
	e := types.Element{
		ID:          c.BOMRef,
		Kind:        componentKind(c.Type),
		Name:        c.Name,
		Version:     c.Version,
		Scope:       c.Scope,
		Description: c.Description,
		CPE:         c.CPE,
		PURL:        c.PURL,
	}
	if e.ID == "" {
		e.ID = c.Name
	}
	for _, h := range c.Hashes {
		e.Hashes = append(e.Hashes, types.Hash{Algorithm: h.Alg, Value: strings.TrimSpace(h.Value)})
	}
	var exprs []string
	for _, l := range c.Licenses {
		switch {
		case l.Expression != "":
			exprs = append(exprs, l.Expression)
		case l.ID != "":
			exprs = append(exprs, l.ID)
		}
	}
	e.LicenseExpr = strings.Join(exprs, " AND ")
	return e
}

func componentKind(t string) types.Kind {
	switch t {
	case "library", "":
		return types.KindLibrary
	case "application":
		return types.KindApplication
	case "file":
		return types.KindFile
	default:
		return types.KindOther
	}
}

func elementToComponent(e types.Element) xmlComponent {
	c := xmlComponent{
		Type:        mapper.KindToComponentType(e.Kind),
		BOMRef:      e.ID,
		Name:        e.Name,
		Version:     e.Version,
		Scope:       e.Scope,
		Description: e.Description,
		CPE:         e.CPE,
		PURL:        e.PURL,
	}
	if c.Name == "" {
		c.Name = "Unknown"
	}
	for _, h := range e.Hashes {
		c.Hashes = append(c.Hashes, xmlHash{Alg: mapper.HashAlgToCDX(h.Algorithm), Value: h.Value})
	}
	if e.LicenseExpr != "" {
		c.Licenses = append(c.Licenses, xmlLicense{Expression: e.LicenseExpr})
	}
	return c
}
