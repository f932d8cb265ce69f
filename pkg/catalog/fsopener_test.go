package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodds/geodds/pkg/geoquery"
)

func writeDataFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644))
}

func newFSOpener(t *testing.T) (*FSOpener, string) {
	t.Helper()
	root := t.TempDir()
	writeDataFile(t, filepath.Join(root, "era5", "reanalysis"), "tas.nc", 100)
	writeDataFile(t, filepath.Join(root, "era5", "reanalysis"), "pr.nc", 50)
	o, err := NewFSOpener(root)
	require.NoError(t, err)
	return o, root
}

func TestFSOpener_UnknownProduct(t *testing.T) {
	o, _ := newFSOpener(t)
	_, err := o.Open(context.Background(), "era5", "no-such-product")
	assert.Error(t, err)
}

func TestFSOpener_EstimateSelectsVariables(t *testing.T) {
	o, _ := newFSOpener(t)
	h, err := o.Open(context.Background(), "era5", "reanalysis")
	require.NoError(t, err)

	size, err := h.Estimate(context.Background(), geoquery.Query{Variable: []string{"tas"}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)

	// no selection means the whole product
	size, err = h.Estimate(context.Background(), geoquery.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(150), size)

	_, err = h.Estimate(context.Background(), geoquery.Query{Variable: []string{"nope"}})
	assert.Error(t, err)
}

func TestFSOpener_ExecuteProducesArtifact(t *testing.T) {
	o, _ := newFSOpener(t)
	h, err := o.Open(context.Background(), "era5", "reanalysis")
	require.NoError(t, err)

	outDir := t.TempDir()
	path, err := h.Execute(context.Background(), geoquery.Query{Variable: []string{"tas"}, Format: "netcdf"}, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "result.netcdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.Size())
}
