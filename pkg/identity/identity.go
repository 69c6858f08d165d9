// Package identity derives stable cross-document keys for SBOM elements.
// SPDX and CycloneDX encode identity differently, so diff and merge match
// elements through a derived key instead of the format-native identifier.
package identity

import (
	"fmt"

	"github.com/package-url/packageurl-go"

	"github.com/sbomtools/sbomshift/pkg/types"
)

// Key derives the identity key for an element: purl if present, else the
// format-native reference, else name@version. The key is computed on demand
// and never persisted.
func Key(e types.Element) string {
	if e.PURL != "" {
		if purl, err := packageurl.FromString(e.PURL); err == nil {
			return purl.ToString()
		}
		return e.PURL
	}
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s@%s", e.Name, e.Version)
}
