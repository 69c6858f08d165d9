package validate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbomshift/pkg/types"
	"github.com/sbomtools/sbomshift/pkg/validate"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFile(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		opts       validate.Options
		wantFormat types.Format
		wantIssues []string
		wantErr    string
	}{
		{
			name: "valid cyclonedx",
			content: `{
				"bomFormat": "CycloneDX",
				"specVersion": "1.6",
				"serialNumber": "urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79",
				"version": 1,
				"components": [{"type": "library", "name": "liba", "version": "1.0.0"}]
			}`,
			wantFormat: types.FormatCycloneDX,
		},
		{
			name: "component missing name",
			content: `{
				"bomFormat": "CycloneDX",
				"specVersion": "1.6",
				"components": [{"type": "library"}]
			}`,
			wantFormat: types.FormatCycloneDX,
			wantIssues: []string{"/components/0"},
		},
		{
			name: "bad serial number",
			content: `{
				"bomFormat": "CycloneDX",
				"specVersion": "1.6",
				"serialNumber": "not-a-urn"
			}`,
			wantFormat: types.FormatCycloneDX,
			wantIssues: []string{"/serialNumber"},
		},
		{
			name: "valid spdx 2.3",
			content: `{
				"spdxVersion": "SPDX-2.3",
				"SPDXID": "SPDXRef-DOCUMENT",
				"name": "example",
				"creationInfo": {"created": "2024-01-01T00:00:00Z"},
				"packages": [{"SPDXID": "SPDXRef-Package-liba", "name": "liba"}]
			}`,
			wantFormat: types.FormatSPDX,
		},
		{
			name: "spdx 2.3 missing document fields",
			content: `{
				"spdxVersion": "SPDX-2.3"
			}`,
			wantFormat: types.FormatSPDX,
			wantIssues: []string{"/"},
		},
		{
			name: "json-ld structural issues",
			content: `{
				"@context": "https://spdx.org/rdf/3.0.1/spdx-context.jsonld",
				"@graph": [
					{"spdxId": "https://example.com/e1", "type": "software_Package"},
					{"type": "software_Package"},
					"not an object"
				]
			}`,
			wantFormat: types.FormatSPDX,
			wantIssues: []string{"/@graph/1", "/@graph/2"},
		},
		{
			name: "json-ld checks skippable",
			content: `{
				"@context": "https://spdx.org/rdf/3.0.1/spdx-context.jsonld",
				"@graph": [{"type": "software_Package"}]
			}`,
			opts:       validate.Options{SkipGraphChecks: true},
			wantFormat: types.FormatSPDX,
		},
		{
			name:    "undetectable input",
			content: `{"hello": "world"}`,
			wantErr: "format detection failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := validate.File(writeDoc(t, tt.content), tt.opts)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, res.Format)

			if len(tt.wantIssues) == 0 {
				assert.True(t, res.Valid(), "issues: %v", res.Issues)
				return
			}
			assert.False(t, res.Valid())
			for _, wantLoc := range tt.wantIssues {
				found := false
				for _, issue := range res.Issues {
					if issue.Location == wantLoc {
						found = true
					}
				}
				assert.True(t, found, "missing issue at %s, got %v", wantLoc, res.Issues)
			}
		})
	}
}
