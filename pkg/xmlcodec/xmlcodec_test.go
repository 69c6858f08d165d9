package xmlcodec_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbomshift/pkg/types"
	"github.com/sbomtools/sbomshift/pkg/xmlcodec"
)

func TestDecode(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<bom xmlns="http://cyclonedx.org/schema/bom/1.4" serialNumber="urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79" version="1">
  <metadata>
    <timestamp>2024-01-01T00:00:00Z</timestamp>
  </metadata>
  <components>
    <component type="library" bom-ref="liba">
      <name>liba</name>
      <version>1.0.0</version>
      <hashes>
        <hash alg="SHA-256">abc123</hash>
      </hashes>
      <licenses>
        <license>
          <expression>MIT</expression>
        </license>
      </licenses>
      <purl>pkg:npm/liba@1.0.0</purl>
    </component>
    <component type="application" bom-ref="app">
      <name>app</name>
      <version>2.0.0</version>
    </component>
  </components>
  <dependencies>
    <dependency ref="app">
      <dependency ref="liba"/>
    </dependency>
  </dependencies>
  <vulnerabilities>
    <vulnerability>
      <id>CVE-2024-0001</id>
      <analysis>
        <state>resolved</state>
      </analysis>
      <affects>
        <target>
          <ref>liba</ref>
        </target>
      </affects>
    </vulnerability>
  </vulnerabilities>
</bom>`

	doc, err := xmlcodec.Decode(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, types.FormatCycloneDX, doc.Format)
	assert.Equal(t, types.EncodingXML, doc.Encoding)
	assert.Equal(t, "1.4", doc.SpecVersion)
	assert.Equal(t, "urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79", doc.Metadata.Serial)
	assert.Equal(t, "2024-01-01T00:00:00Z", doc.Metadata.Timestamp)

	require.Len(t, doc.Elements, 2)
	liba := doc.Elements[0]
	assert.Equal(t, "liba", liba.ID)
	assert.Equal(t, types.KindLibrary, liba.Kind)
	assert.Equal(t, "pkg:npm/liba@1.0.0", liba.PURL)
	assert.Equal(t, []types.Hash{{Algorithm: "SHA-256", Value: "abc123"}}, liba.Hashes)
	assert.Equal(t, "MIT", liba.LicenseExpr)

	require.Len(t, doc.Relationships, 1)
	assert.Equal(t, types.Relationship{
		Source:  "app",
		Type:    types.RelDependsOn,
		Targets: []string{"liba"},
	}, doc.Relationships[0])

	require.Len(t, doc.Vulnerabilities, 1)
	assert.Equal(t, types.Vulnerability{
		ID:      "CVE-2024-0001",
		State:   "resolved",
		Affects: []string{"liba"},
	}, doc.Vulnerabilities[0])
}

func TestDecodeBadXML(t *testing.T) {
	_, err := xmlcodec.Decode(strings.NewReader("<bom><components>"))
	assert.ErrorContains(t, err, "xml decode error")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := types.Document{
		Format:      types.FormatCycloneDX,
		SpecVersion: "1.6",
		Metadata: types.DocMetadata{
			Serial:    "urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79",
			Timestamp: "2024-01-01T00:00:00Z",
		},
		Elements: []types.Element{
			{ID: "liba", Kind: types.KindLibrary, Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0", LicenseExpr: "MIT"},
			{ID: "app", Kind: types.KindApplication, Name: "app", Version: "2.0.0"},
		},
		Relationships: []types.Relationship{
			{Source: "app", Type: types.RelDependsOn, Targets: []string{"liba"}},
		},
		Vulnerabilities: []types.Vulnerability{
			{ID: "CVE-2024-0001", State: "resolved", Affects: []string{"liba"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, xmlcodec.Encode(&buf, doc))
	assert.Contains(t, buf.String(), `xmlns="http://cyclonedx.org/schema/bom/1.6"`)

	back, err := xmlcodec.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, doc.SpecVersion, back.SpecVersion)
	assert.Equal(t, doc.Metadata.Serial, back.Metadata.Serial)
	require.Len(t, back.Elements, 2)
	assert.Equal(t, doc.Elements[0].PURL, back.Elements[0].PURL)
	assert.Equal(t, doc.Elements[0].LicenseExpr, back.Elements[0].LicenseExpr)
	assert.Equal(t, doc.Relationships, back.Relationships)
	assert.Equal(t, doc.Vulnerabilities, back.Vulnerabilities)
}
