package stream_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbomshift/pkg/stream"
	"github.com/sbomtools/sbomshift/pkg/types"
)

func collect(t *testing.T) (*stream.Options, *[]types.Element, *[]types.Relationship, *[]types.Vulnerability, *stream.Meta) {
	t.Helper()
	var (
		elements      []types.Element
		relationships []types.Relationship
		vulns         []types.Vulnerability
		meta          stream.Meta
	)
	opts := &stream.Options{
		Elements: func(_ int, e types.Element) error {
			elements = append(elements, e)
			return nil
		},
		Relationships: func(_ int, r types.Relationship) error {
			relationships = append(relationships, r)
			return nil
		},
		Vulnerabilities: func(_ int, v types.Vulnerability) error {
			vulns = append(vulns, v)
			return nil
		},
		Meta: func(m stream.Meta) { meta = m },
	}
	return opts, &elements, &relationships, &vulns, &meta
}

func TestDecodeCycloneDX(t *testing.T) {
	input := `{
		"bomFormat": "CycloneDX",
		"specVersion": "1.6",
		"serialNumber": "urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79",
		"version": 1,
		"metadata": {
			"timestamp": "2024-01-01T00:00:00Z",
			"tools": [{"vendor": "acme", "name": "gen", "version": "0.9.0"}]
		},
		"components": [
			{
				"bom-ref": "pkg-a",
				"type": "library",
				"name": "liba",
				"version": "1.0.0",
				"purl": "pkg:npm/liba@1.0.0",
				"scope": "required",
				"hashes": [{"alg": "SHA-256", "content": "abc123"}],
				"licenses": [{"expression": "MIT"}]
			},
			{"bom-ref": "app", "type": "application", "name": "app", "version": "2.0.0"}
		],
		"dependencies": [
			{"ref": "app", "dependsOn": ["pkg-a"]}
		],
		"vulnerabilities": [
			{
				"id": "CVE-2024-0001",
				"source": {"name": "NVD"},
				"analysis": {"state": "not_affected"},
				"affects": [{"ref": "pkg-a"}]
			}
		]
	}`

	opts, elements, relationships, vulns, meta := collect(t)
	require.NoError(t, stream.DecodeCycloneDX(strings.NewReader(input), *opts))

	require.Len(t, *elements, 2)
	assert.Equal(t, types.Element{
		ID:          "pkg-a",
		Kind:        types.KindLibrary,
		Name:        "liba",
		Version:     "1.0.0",
		PURL:        "pkg:npm/liba@1.0.0",
		Scope:       "required",
		Hashes:      []types.Hash{{Algorithm: "SHA-256", Value: "abc123"}},
		LicenseExpr: "MIT",
	}, (*elements)[0])
	assert.Equal(t, types.KindApplication, (*elements)[1].Kind)

	require.Len(t, *relationships, 1)
	assert.Equal(t, types.Relationship{
		Source:  "app",
		Type:    types.RelDependsOn,
		Targets: []string{"pkg-a"},
	}, (*relationships)[0])

	require.Len(t, *vulns, 1)
	assert.Equal(t, types.Vulnerability{
		ID:      "CVE-2024-0001",
		Source:  "NVD",
		State:   "not_affected",
		Affects: []string{"pkg-a"},
	}, (*vulns)[0])

	assert.Equal(t, "1.6", meta.SpecVersion)
	assert.Equal(t, "urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79", meta.Serial)
	assert.Equal(t, "2024-01-01T00:00:00Z", meta.Timestamp)
	assert.Equal(t, "gen", meta.Tool)
}

func TestDecodeCycloneDXWrappedTools(t *testing.T) {
	// metadata.tools became a components/services wrapper in 1.5.
	input := `{
		"bomFormat": "CycloneDX",
		"specVersion": "1.5",
		"metadata": {
			"tools": {"components": [{"type": "application", "name": "gen", "version": "1.1.0"}]}
		},
		"components": []
	}`

	opts, _, _, _, meta := collect(t)
	require.NoError(t, stream.DecodeCycloneDX(strings.NewReader(input), *opts))
	assert.Equal(t, "gen", meta.Tool)
}

func TestDecodeSPDXSimpleJSON(t *testing.T) {
	input := `{
		"spdxVersion": "SPDX-2.3",
		"SPDXID": "SPDXRef-DOCUMENT",
		"name": "example",
		"documentNamespace": "https://example.com/spdxdocs/example-1",
		"creationInfo": {"created": "2024-01-01T00:00:00Z", "creators": ["Tool: gen"]},
		"packages": [
			{
				"SPDXID": "SPDXRef-Package-liba",
				"name": "liba",
				"versionInfo": "1.0.0",
				"licenseConcluded": "MIT",
				"checksums": [{"algorithm": "SHA256", "checksumValue": "abc123"}],
				"externalRefs": [
					{"referenceType": "purl", "referenceLocator": "pkg:npm/liba@1.0.0"}
				]
			}
		],
		"relationships": [
			{
				"spdxElementId": "SPDXRef-DOCUMENT",
				"relationshipType": "DESCRIBES",
				"relatedSpdxElement": "SPDXRef-Package-liba"
			}
		]
	}`

	opts, elements, relationships, _, meta := collect(t)
	require.NoError(t, stream.DecodeSPDX(strings.NewReader(input), *opts))

	require.Len(t, *elements, 1)
	e := (*elements)[0]
	assert.Equal(t, "SPDXRef-Package-liba", e.ID)
	assert.Equal(t, "pkg:npm/liba@1.0.0", e.PURL)
	assert.Equal(t, []types.Hash{{Algorithm: "SHA256", Value: "abc123"}}, e.Hashes)
	assert.Equal(t, "MIT", e.LicenseExpr)

	require.Len(t, *relationships, 1)
	assert.Equal(t, "DESCRIBES", (*relationships)[0].Type)

	assert.Equal(t, "2.3", meta.SpecVersion)
	assert.Equal(t, "https://example.com/spdxdocs/example-1", meta.Serial)
	assert.Equal(t, "Tool: gen", meta.Tool)
}

func TestDecodeSPDXGraph(t *testing.T) {
	input := `{
		"@context": "https://spdx.org/rdf/3.0.1/spdx-context.jsonld",
		"@graph": [
			{
				"spdxId": "https://example.com/element/liba",
				"type": "software_Package",
				"name": "liba",
				"software_packageVersion": "1.0.0"
			},
			{
				"spdxId": "https://example.com/vulnerability/CVE-2024-0001",
				"type": "security_Vulnerability"
			},
			{
				"type": "Relationship",
				"relationshipType": "dependsOn",
				"from": "https://example.com/element/liba",
				"to": ["https://example.com/element/libb"]
			},
			{
				"type": "security_VexNotAffectedVulnAssessmentRelationship",
				"from": "https://example.com/vulnerability/CVE-2024-0001",
				"to": ["https://example.com/element/liba"]
			},
			{"type": "CreationInfo", "created": "2024-01-01T00:00:00Z"}
		]
	}`

	opts, elements, relationships, _, _ := collect(t)
	require.NoError(t, stream.DecodeSPDX(strings.NewReader(input), *opts))

	require.Len(t, *elements, 2)
	assert.Equal(t, types.KindPackage, (*elements)[0].Kind)
	assert.Equal(t, "1.0.0", (*elements)[0].Version)
	assert.Equal(t, types.KindVulnerability, (*elements)[1].Kind)
	assert.Equal(t, "CVE-2024-0001", (*elements)[1].Name)

	require.Len(t, *relationships, 2)
	assert.Equal(t, "dependsOn", (*relationships)[0].Type)
	assert.Equal(t, types.Relationship{
		Source:   "https://example.com/vulnerability/CVE-2024-0001",
		Type:     types.RelAffects,
		Targets:  []string{"https://example.com/element/liba"},
		VexState: "not_affected",
	}, (*relationships)[1])
}

func TestDecodeMalformedRecordSkipped(t *testing.T) {
	input := `{
		"bomFormat": "CycloneDX",
		"specVersion": "1.6",
		"components": [
			{"bom-ref": "ok-1", "type": "library", "name": "a"},
			"not an object",
			{"bom-ref": "ok-2", "type": "library", "name": "b"}
		]
	}`

	var elements []types.Element
	var malformed []int
	err := stream.DecodeCycloneDX(strings.NewReader(input), stream.Options{
		Elements: func(_ int, e types.Element) error {
			elements = append(elements, e)
			return nil
		},
		OnMalformed: func(i int, err error) {
			malformed = append(malformed, i)
		},
	})
	require.NoError(t, err)
	assert.Len(t, elements, 2)
	assert.Equal(t, []int{1}, malformed)
}

func TestDecodeTruncatedInput(t *testing.T) {
	// Mid-array truncation must fail with a parse error naming the position,
	// after the records before the cut were already delivered.
	input := `{"bomFormat": "CycloneDX", "specVersion": "1.6", "components": [
		{"bom-ref": "ok-1", "type": "library", "name": "a"},
		{"bom-ref": "ok-2", "type": "libr`

	var count int
	err := stream.DecodeCycloneDX(strings.NewReader(input), stream.Options{
		Elements: func(_ int, e types.Element) error {
			count++
			return nil
		},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "json syntax error")
	assert.Equal(t, 1, count)
}
