package spool_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbomshift/pkg/spool"
	"github.com/sbomtools/sbomshift/pkg/types"
)

func TestSpoolReplayOrder(t *testing.T) {
	sp, err := spool.New(t.TempDir())
	require.NoError(t, err)
	defer sp.Close()

	records := []types.Relationship{
		{Source: "app", Type: types.RelDependsOn, Targets: []string{"liba"}},
		{Source: "liba", Type: types.RelDependsOn, Targets: []string{"libb"}},
		{Source: "vuln-1", Type: types.RelAffects, Targets: []string{"liba"}, VexState: "resolved"},
	}
	for _, rel := range records {
		require.NoError(t, sp.Append(rel))
	}
	assert.Equal(t, 3, sp.Len())

	var got []types.Relationship
	err = sp.Replay(func(rel types.Relationship) error {
		got = append(got, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestSpoolCloseRemovesFile(t *testing.T) {
	sp, err := spool.New(t.TempDir())
	require.NoError(t, err)

	path := sp.Path()
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, sp.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Close is idempotent.
	assert.NoError(t, sp.Close())
}

func TestSpoolUniquePaths(t *testing.T) {
	dir := t.TempDir()
	a, err := spool.New(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := spool.New(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.Path(), b.Path())
}
