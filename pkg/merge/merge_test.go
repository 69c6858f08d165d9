package merge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbomshift/pkg/identity"
	"github.com/sbomtools/sbomshift/pkg/merge"
	"github.com/sbomtools/sbomshift/pkg/types"
)

func doc(serial string, elements []types.Element, rels []types.Relationship, vulns []types.Vulnerability) types.Document {
	return types.Document{
		Format:          types.FormatCycloneDX,
		SpecVersion:     "1.6",
		Metadata:        types.DocMetadata{Serial: serial},
		Elements:        elements,
		Relationships:   rels,
		Vulnerabilities: vulns,
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := merge.ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, merge.StrategyFirst, s)

	s, err = merge.ParseStrategy("latest")
	require.NoError(t, err)
	assert.Equal(t, merge.StrategyLatest, s)

	_, err = merge.ParseStrategy("newest")
	assert.ErrorContains(t, err, "unknown merge strategy")
}

func TestDocumentsStrategies(t *testing.T) {
	a := doc("urn:uuid:a",
		[]types.Element{
			{ID: "liba", Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0", LicenseExpr: "MIT"},
		}, nil, nil)
	b := doc("urn:uuid:b",
		[]types.Element{
			{ID: "pkg-liba", Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0", LicenseExpr: "Apache-2.0"},
			{ID: "libb", Name: "libb", Version: "2.0.0"},
		}, nil, nil)

	first, err := merge.Documents([]types.Document{a, b}, merge.StrategyFirst)
	require.NoError(t, err)
	require.Len(t, first.Elements, 2)
	assert.Equal(t, "MIT", first.Elements[0].LicenseExpr)

	latest, err := merge.Documents([]types.Document{a, b}, merge.StrategyLatest)
	require.NoError(t, err)
	require.Len(t, latest.Elements, 2)
	assert.Equal(t, "Apache-2.0", latest.Elements[0].LicenseExpr)

	// Metadata always comes from the first input.
	assert.Equal(t, "urn:uuid:a", first.Metadata.Serial)
	assert.Equal(t, "urn:uuid:a", latest.Metadata.Serial)

	// Strategies are order-sensitive, not commutative.
	reversed, err := merge.Documents([]types.Document{b, a}, merge.StrategyFirst)
	require.NoError(t, err)
	assert.Equal(t, "Apache-2.0", reversed.Elements[0].LicenseExpr)
	assert.Equal(t, "urn:uuid:b", reversed.Metadata.Serial)
}

func TestDocumentsKeyCoverage(t *testing.T) {
	a := doc("urn:uuid:a", []types.Element{
		{ID: "liba", Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0"},
		{ID: "only-a", Name: "only-a", Version: "1.0.0"},
	}, nil, nil)
	b := doc("urn:uuid:b", []types.Element{
		{ID: "liba-again", Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0"},
		{ID: "only-b", Name: "only-b", Version: "1.0.0"},
	}, nil, nil)

	merged, err := merge.Documents([]types.Document{a, b}, merge.StrategyFirst)
	require.NoError(t, err)

	// Every input key appears in the output exactly once.
	want := make(map[string]int)
	for _, d := range []types.Document{a, b} {
		for _, e := range d.Elements {
			want[identity.Key(e)] = 0
		}
	}
	for _, e := range merged.Elements {
		key := identity.Key(e)
		_, ok := want[key]
		require.True(t, ok, "unexpected key %s", key)
		want[key]++
	}
	for key, n := range want {
		assert.Equal(t, 1, n, "key %s", key)
	}
}

func TestDocumentsEdgeRewriting(t *testing.T) {
	a := doc("urn:uuid:a",
		[]types.Element{
			{ID: "app", Name: "app", Version: "2.0.0", PURL: "pkg:npm/app@2.0.0"},
			{ID: "liba", Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0"},
		},
		[]types.Relationship{
			{Source: "app", Type: types.RelDependsOn, Targets: []string{"liba"}},
		}, nil)
	// Same logical edge under different native ids, plus a new one.
	b := doc("urn:uuid:b",
		[]types.Element{
			{ID: "pkg-app", Name: "app", Version: "2.0.0", PURL: "pkg:npm/app@2.0.0"},
			{ID: "pkg-liba", Name: "liba", Version: "1.0.0", PURL: "pkg:npm/liba@1.0.0"},
			{ID: "pkg-libc", Name: "libc", Version: "3.0.0", PURL: "pkg:npm/libc@3.0.0"},
		},
		[]types.Relationship{
			{Source: "pkg-app", Type: types.RelDependsOn, Targets: []string{"pkg-liba"}},
			{Source: "pkg-app", Type: types.RelDependsOn, Targets: []string{"pkg-libc"}},
		},
		[]types.Vulnerability{
			{ID: "CVE-2024-0001", State: "resolved", Affects: []string{"pkg-liba"}},
		})

	merged, err := merge.Documents([]types.Document{a, b}, merge.StrategyFirst)
	require.NoError(t, err)

	// The duplicate edge collapses; ids are rewritten to the survivors'.
	require.Len(t, merged.Relationships, 2)
	assert.Equal(t, "app", merged.Relationships[0].Source)
	assert.Equal(t, []string{"liba"}, merged.Relationships[0].Targets)
	assert.Equal(t, []string{"pkg-libc"}, merged.Relationships[1].Targets)

	require.Len(t, merged.Vulnerabilities, 1)
	assert.Equal(t, []string{"liba"}, merged.Vulnerabilities[0].Affects)
}

func TestDocumentsErrors(t *testing.T) {
	a := doc("urn:uuid:a", nil, nil, nil)

	_, err := merge.Documents([]types.Document{a}, merge.StrategyFirst)
	assert.ErrorContains(t, err, "at least two inputs")

	b := a
	b.Format = types.FormatSPDX
	_, err = merge.Documents([]types.Document{a, b}, merge.StrategyFirst)
	assert.ErrorContains(t, err, "cannot merge")
}
