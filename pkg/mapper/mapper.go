// Package mapper holds the bidirectional field-translation tables between
// the SPDX and CycloneDX metadata models. Every function here is total,
// deterministic and side-effect free; fields with no counterpart in the
// target format are dropped silently.
package mapper

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/sbomtools/sbomshift/pkg/types"
)

// CDXComponent is the wire shape written into a CycloneDX components array.
type CDXComponent struct {
	BOMRef      string             `json:"bom-ref,omitempty"`
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Version     string             `json:"version,omitempty"`
	Scope       string             `json:"scope,omitempty"`
	Hashes      []types.Hash       `json:"hashes,omitempty"`
	Licenses    []CDXLicenseChoice `json:"licenses,omitempty"`
	CPE         string             `json:"cpe,omitempty"`
	PURL        string             `json:"purl,omitempty"`
	Description string             `json:"description,omitempty"`
}

// CDXLicenseChoice wraps either a license expression or a named license.
type CDXLicenseChoice struct {
	Expression string `json:"expression,omitempty"`
}

// SPDXElement is the wire shape written into an SPDX elements array.
type SPDXElement struct {
	SpdxID             string                   `json:"spdxId"`
	Type               string                   `json:"type"`
	Name               string                   `json:"name,omitempty"`
	VersionInfo        string                   `json:"versionInfo,omitempty"`
	Summary            string                   `json:"summary,omitempty"`
	LicenseConcluded   string                   `json:"licenseConcluded,omitempty"`
	PrimaryPurpose     string                   `json:"software_primaryPurpose,omitempty"`
	ExternalIdentifier []SPDXExternalIdentifier `json:"externalIdentifier,omitempty"`
	VerifiedUsing      []SPDXHash               `json:"verifiedUsing,omitempty"`
}

// SPDXExternalIdentifier carries purl and CPE identifiers.
type SPDXExternalIdentifier struct {
	Type       string `json:"externalIdentifierType"`
	Identifier string `json:"identifier"`
}

// SPDXHash is one verifiedUsing entry.
type SPDXHash struct {
	Type      string `json:"type"`
	Algorithm string `json:"algorithm"`
	HashValue string `json:"hashValue"`
}

// SPDXRelationship is the wire shape of an SPDX relationship record.
type SPDXRelationship struct {
	SpdxElementID      string `json:"spdxElementId"`
	RelationshipType   string `json:"relationshipType"`
	RelatedSpdxElement string `json:"relatedSpdxElement"`
}

// HashAlgToCDX normalizes a hash algorithm name to CycloneDX spelling,
// e.g. sha256 -> SHA-256.
func HashAlgToCDX(alg string) string {
	a := strings.ToUpper(strings.ReplaceAll(alg, "-", ""))
	switch a {
	case "SHA1":
		return "SHA-1"
	case "SHA256":
		return "SHA-256"
	case "SHA384":
		return "SHA-384"
	case "SHA512":
		return "SHA-512"
	case "SHA3256":
		return "SHA3-256"
	case "SHA3512":
		return "SHA3-512"
	case "BLAKE2B256":
		return "BLAKE2b-256"
	case "MD5":
		return "MD5"
	}
	return strings.ToUpper(alg)
}

// HashAlgToSPDX normalizes a hash algorithm name to SPDX spelling,
// e.g. SHA-256 -> sha256.
func HashAlgToSPDX(alg string) string {
	return strings.ToLower(strings.ReplaceAll(alg, "-", ""))
}

// ScopeToPurpose maps a CycloneDX scope to an SPDX primary purpose.
// Unknown values pass through unchanged.
func ScopeToPurpose(scope string) string {
	switch scope {
	case "required":
		return "install"
	case "optional":
		return "optional"
	}
	return scope
}

// PurposeToScope maps an SPDX primary purpose to a CycloneDX scope.
// Unknown values pass through unchanged.
func PurposeToScope(purpose string) string {
	switch purpose {
	case "install":
		return "required"
	case "optional":
		return "optional"
	}
	return purpose
}

// KindToComponentType maps an element kind to a CycloneDX component type.
func KindToComponentType(k types.Kind) string {
	switch k {
	case types.KindFile:
		return "file"
	case types.KindApplication:
		return "application"
	default:
		return "library"
	}
}

// KindToSPDXType maps an element kind to an SPDX element type.
func KindToSPDXType(k types.Kind) string {
	switch k {
	case types.KindFile:
		return "SpdxFile"
	case types.KindVulnerability:
		return "SpdxVulnerability"
	default:
		return "SpdxPackage"
	}
}

// BOMRef derives a CycloneDX bom-ref from an SPDX identifier. Simple ids
// lose their SPDXRef- prefix; JSON-LD URIs are reduced to the last path
// segment plus a digest of the full URI, so distinct URIs sharing a tail
// never collide.
func BOMRef(spdxID string) string {
	if strings.HasPrefix(spdxID, "http://") || strings.HasPrefix(spdxID, "https://") {
		h := fnv.New64a()
		h.Write([]byte(spdxID))

		name := "element"
		for _, seg := range strings.Split(spdxID, "/") {
			if seg != "" && strings.ContainsFunc(seg, unicode.IsLetter) {
				name = seg
			}
		}
		return fmt.Sprintf("%s-%x", name, h.Sum64())
	}
	return strings.TrimPrefix(spdxID, "SPDXRef-")
}

// SPDXRef derives an SPDX identifier from a CycloneDX bom-ref.
func SPDXRef(bomRef string) string {
	if strings.HasPrefix(bomRef, "SPDXRef-") {
		return bomRef
	}
	return "SPDXRef-" + bomRef
}

// ToCDXComponent translates a decoded element into a CycloneDX component.
func ToCDXComponent(e types.Element) CDXComponent {
	c := CDXComponent{
		BOMRef:      BOMRef(e.ID),
		Type:        KindToComponentType(e.Kind),
		Name:        e.Name,
		Version:     e.Version,
		Scope:       PurposeToScope(e.Scope),
		CPE:         e.CPE,
		PURL:        e.PURL,
		Description: e.Description,
	}
	if c.Name == "" {
		c.Name = "Unknown"
	}
	for _, h := range e.Hashes {
		c.Hashes = append(c.Hashes, types.Hash{
			Algorithm: HashAlgToCDX(h.Algorithm),
			Value:     h.Value,
		})
	}
	if e.LicenseExpr != "" {
		c.Licenses = []CDXLicenseChoice{{Expression: e.LicenseExpr}}
	}
	return c
}

// ToSPDXElement translates a decoded element into an SPDX element.
func ToSPDXElement(e types.Element) SPDXElement {
	out := SPDXElement{
		SpdxID:           SPDXRef(e.ID),
		Type:             KindToSPDXType(e.Kind),
		Name:             e.Name,
		VersionInfo:      e.Version,
		Summary:          e.Description,
		LicenseConcluded: e.LicenseExpr,
		PrimaryPurpose:   ScopeToPurpose(e.Scope),
	}
	if e.PURL != "" {
		out.ExternalIdentifier = append(out.ExternalIdentifier, SPDXExternalIdentifier{
			Type:       "purl",
			Identifier: e.PURL,
		})
	}
	if e.CPE != "" {
		out.ExternalIdentifier = append(out.ExternalIdentifier, SPDXExternalIdentifier{
			Type:       "cpe23Type",
			Identifier: e.CPE,
		})
	}
	for _, h := range e.Hashes {
		out.VerifiedUsing = append(out.VerifiedUsing, SPDXHash{
			Type:      "Hash",
			Algorithm: HashAlgToSPDX(h.Algorithm),
			HashValue: h.Value,
		})
	}
	return out
}
