package types

import (
	"fmt"
	"strings"
)

// Format identifies the SBOM document family.
type Format string

const (
	FormatSPDX      Format = "SPDX"
	FormatCycloneDX Format = "CycloneDX"
)

// Encoding identifies the wire encoding of a document.
type Encoding string

const (
	EncodingJSON   Encoding = "json"
	EncodingJSONLD Encoding = "json-ld"
	EncodingXML    Encoding = "xml"
)

// Kind classifies an element within a document.
type Kind string

const (
	KindPackage       Kind = "package"
	KindLibrary       Kind = "library"
	KindApplication   Kind = "application"
	KindFile          Kind = "file"
	KindVulnerability Kind = "vulnerability"
	KindOther         Kind = "other"
)

// IsPackageLike reports whether the kind survives a packages-only conversion.
func (k Kind) IsPackageLike() bool {
	switch k {
	case KindPackage, KindLibrary, KindApplication:
		return true
	}
	return false
}

// Relationship types understood by the converters. Anything else is carried
// through unmapped.
const (
	RelDependsOn = "DEPENDS_ON"
	RelAffects   = "AFFECTS"
	RelContains  = "CONTAINS"
)

// Hash is a single digest attached to an element.
type Hash struct {
	Algorithm string `json:"alg"`
	Value     string `json:"content"`
}

// Element is one entry of a document's element array. Elements are immutable
// once decoded; converters build new elements rather than editing in place.
type Element struct {
	ID          string `json:",omitempty"`
	Kind        Kind   `json:",omitempty"`
	Name        string `json:",omitempty"`
	Version     string `json:",omitempty"`
	PURL        string `json:",omitempty"`
	CPE         string `json:",omitempty"`
	Hashes      []Hash `json:",omitempty"`
	Description string `json:",omitempty"`
	Scope       string `json:",omitempty"`
	LicenseExpr string `json:",omitempty"`
}

// Relationship is a directed source->targets edge.
type Relationship struct {
	Source  string   `json:",omitempty"`
	Type    string   `json:",omitempty"`
	Targets []string `json:",omitempty"`

	// VexState carries the analysis state when the relationship encodes a
	// VEX assessment; empty otherwise.
	VexState string `json:",omitempty"`
}

// IsDependency reports whether the relationship type expresses a dependency
// edge in either format's vocabulary.
func (r Relationship) IsDependency() bool {
	switch r.Type {
	case RelDependsOn, "dependsOn", RelContains, "contains":
		return true
	}
	return false
}

// Vulnerability is a decoded vulnerability record with its VEX analysis state
// and affected element references.
type Vulnerability struct {
	ID      string   `json:",omitempty"`
	Source  string   `json:",omitempty"`
	State   string   `json:",omitempty"`
	Affects []string `json:",omitempty"`
}

// DocMetadata holds document-level metadata shared by both formats.
type DocMetadata struct {
	Timestamp string `json:",omitempty"`
	Tool      string `json:",omitempty"`
	Serial    string `json:",omitempty"`
}

// Document is a fully decoded SBOM. Diff and merge operate on Documents;
// the converters stream instead and never build one.
type Document struct {
	Format          Format
	Encoding        Encoding
	SpecVersion     string
	Metadata        DocMetadata
	Elements        []Element
	Relationships   []Relationship
	Vulnerabilities []Vulnerability
}

// Describe returns a short human-readable format tag, e.g. "CycloneDX 1.6".
func (d Document) Describe() string {
	return fmt.Sprintf("%s %s", d.Format, d.SpecVersion)
}

// AffectsURN builds the URN reference linking a vulnerability to an affected
// element: urn:uuid:{serial}#{ref}. The serial may already carry the
// urn:uuid: prefix.
func AffectsURN(serial, ref string) string {
	s := strings.TrimPrefix(serial, "urn:uuid:")
	return fmt.Sprintf("urn:uuid:%s#%s", s, ref)
}
