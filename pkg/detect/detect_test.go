package detect_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbomshift/pkg/detect"
	"github.com/sbomtools/sbomshift/pkg/types"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    detect.Result
		wantErr string
	}{
		{
			name:  "cyclonedx json",
			input: `{"bomFormat": "CycloneDX", "specVersion": "1.5", "components": []}`,
			want: detect.Result{
				Format:   types.FormatCycloneDX,
				Encoding: types.EncodingJSON,
				Version:  "1.5",
			},
		},
		{
			name:  "cyclonedx without specVersion defaults",
			input: `{"bomFormat": "CycloneDX", "components": []}`,
			want: detect.Result{
				Format:   types.FormatCycloneDX,
				Encoding: types.EncodingJSON,
				Version:  "1.6",
			},
		},
		{
			name:  "cyclonedx unrecognized specVersion defaults",
			input: `{"bomFormat": "CycloneDX", "specVersion": "next"}`,
			want: detect.Result{
				Format:   types.FormatCycloneDX,
				Encoding: types.EncodingJSON,
				Version:  "1.6",
			},
		},
		{
			name:  "byte order mark before the object",
			input: "\uFEFF" + `{"bomFormat": "CycloneDX", "specVersion": "1.5"}`,
			want: detect.Result{
				Format:   types.FormatCycloneDX,
				Encoding: types.EncodingJSON,
				Version:  "1.5",
			},
		},
		{
			name:  "spdx simple json",
			input: `{"spdxVersion": "SPDX-2.3", "SPDXID": "SPDXRef-DOCUMENT"}`,
			want: detect.Result{
				Format:   types.FormatSPDX,
				Encoding: types.EncodingJSON,
				Version:  "2.3",
			},
		},
		{
			name:  "spdx elements without version",
			input: `{"elements": [{"spdxId": "SPDXRef-a"}]}`,
			want: detect.Result{
				Format:   types.FormatSPDX,
				Encoding: types.EncodingJSON,
				Version:  "3.0.1",
			},
		},
		{
			name:  "spdx json-ld",
			input: `{"@context": "https://spdx.org/rdf/3.0.1/spdx-context.jsonld", "@graph": []}`,
			want: detect.Result{
				Format:   types.FormatSPDX,
				Encoding: types.EncodingJSONLD,
				Version:  "3.0.1",
			},
		},
		{
			name:  "cyclonedx xml",
			input: `<?xml version="1.0"?><bom xmlns="http://cyclonedx.org/schema/bom/1.4" version="1">`,
			want: detect.Result{
				Format:   types.FormatCycloneDX,
				Encoding: types.EncodingXML,
				Version:  "1.4",
			},
		},
		{
			name:  "marker beyond a skipped nested object",
			input: `{"metadata": {"component": {"name": "app"}}, "bomFormat": "CycloneDX", "specVersion": "1.6"}`,
			want: detect.Result{
				Format:   types.FormatCycloneDX,
				Encoding: types.EncodingJSON,
				Version:  "1.6",
			},
		},
		{
			name:    "unsupported cyclonedx version",
			input:   `{"bomFormat": "CycloneDX", "specVersion": "1.2"}`,
			wantErr: "unsupported CycloneDX version 1.2",
		},
		{
			name:    "unsupported spdx version",
			input:   `{"spdxVersion": "SPDX-2.1"}`,
			wantErr: "unsupported SPDX version 2.1",
		},
		{
			name:    "unsupported xml document",
			input:   `<?xml version="1.0"?><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">`,
			wantErr: "only CycloneDX <bom> is accepted",
		},
		{
			name:    "no markers",
			input:   `{"hello": "world"}`,
			wantErr: "no recognizable SBOM marker found",
		},
		{
			name:    "empty input",
			input:   "   \n",
			wantErr: "empty input",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detect.Prefix([]byte(tt.input))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixTruncated(t *testing.T) {
	// A document larger than the detection window must still be classified
	// from whatever fits, even when the prefix ends mid-value.
	doc := `{"spdxVersion": "SPDX-3.0.1", "elements": [` +
		strings.Repeat(`{"spdxId": "SPDXRef-pad", "name": "padding"},`, 4096)

	got, err := detect.Prefix([]byte(doc[:detect.PrefixSize]))
	require.NoError(t, err)
	assert.Equal(t, types.FormatSPDX, got.Format)
	assert.Equal(t, "3.0.1", got.Version)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.json")
	content := `{"bomFormat": "CycloneDX", "specVersion": "1.6", "components": []}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := detect.File(path)
	require.NoError(t, err)
	assert.Equal(t, types.FormatCycloneDX, got.Format)

	_, err = detect.File(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "file open error")
}
