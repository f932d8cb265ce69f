package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodds/geodds/pkg/geoquery"
)

const era5YAML = `name: era5
metadata:
  description: ERA5 reanalysis
products:
  reanalysis:
    description: hourly single levels
    role: public
    maximum_query_size_gb: 1
    metadata:
      resolution: "0.25deg"
  internal-monthly:
    description: monthly means
    role: internal
`

func writeCatalog(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestOpen_LoadsDatasets(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"era5.yaml": era5YAML})

	c, err := Open(dir)
	require.NoError(t, err)

	datasets := c.Datasets()
	require.Len(t, datasets, 1)
	assert.Equal(t, "era5", datasets[0].Name)

	p, err := c.Product("era5", "reanalysis")
	require.NoError(t, err)
	assert.Equal(t, "public", p.Role)
	assert.Equal(t, 1.0, p.MaximumQuerySizeGB)

	v, err := p.MetadataValue("resolution")
	require.NoError(t, err)
	assert.Equal(t, "0.25deg", v)
}

func TestOpen_AppliesDefaults(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"era5.yaml": era5YAML})

	c, err := Open(dir)
	require.NoError(t, err)

	p, err := c.Product("era5", "internal-monthly")
	require.NoError(t, err)
	assert.Equal(t, "internal", p.Role)
	assert.Equal(t, DefaultMaximumQuerySizeGB, p.MaximumQuerySizeGB)
}

func TestLookup_Errors(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"era5.yaml": era5YAML})

	c, err := Open(dir)
	require.NoError(t, err)

	_, err = c.Dataset("cmip6")
	assert.ErrorIs(t, err, ErrMissingDataset)

	_, err = c.Product("era5", "nope")
	assert.ErrorIs(t, err, ErrMissingProduct)

	p, err := c.Product("era5", "reanalysis")
	require.NoError(t, err)
	_, err = p.MetadataValue("absent")
	assert.ErrorIs(t, err, ErrMissingKeyInCatalogEntry)
}

func TestOpen_RejectsUnnamedDataset(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"bad.yaml": "products: {}"})

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrMissingKeyInCatalogEntry)
}

func TestReload_KeepsPreviousOnFailure(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"era5.yaml": era5YAML})

	c, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "era5.yaml"), []byte(":\tnot yaml"), 0o644))
	require.Error(t, c.Reload())

	_, err = c.Dataset("era5")
	assert.NoError(t, err)
}

type fakeHandle struct {
	estimates int
	size      int64
	path      string
	err       error
}

func (h *fakeHandle) Estimate(ctx context.Context, q geoquery.Query) (int64, error) {
	h.estimates++
	return h.size, h.err
}

func (h *fakeHandle) Execute(ctx context.Context, q geoquery.Query, outDir string) (string, error) {
	return h.path, h.err
}

type fakeOpener struct {
	opens  int
	handle *fakeHandle
	err    error
}

func (o *fakeOpener) Open(ctx context.Context, dataset, product string) (Handle, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.handle, nil
}

func TestEngine_CachesHandles(t *testing.T) {
	opener := &fakeOpener{handle: &fakeHandle{size: 2048}}
	e := NewEngine(opener)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		size, err := e.Estimate(ctx, "era5", "reanalysis", geoquery.Query{})
		require.NoError(t, err)
		assert.Equal(t, int64(2048), size)
	}
	assert.Equal(t, 1, opener.opens)
	assert.Equal(t, 3, opener.handle.estimates)
}

func TestEngine_OpenFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("index unavailable")}
	e := NewEngine(opener)

	_, err := e.Estimate(context.Background(), "era5", "reanalysis", geoquery.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "era5/reanalysis")
}

func TestEngine_ExecuteUsesHandle(t *testing.T) {
	opener := &fakeOpener{handle: &fakeHandle{path: "/store/1/result.nc"}}
	e := NewEngine(opener)

	path, err := e.Execute(context.Background(), "era5", "reanalysis", geoquery.Query{}, "/store/1")
	require.NoError(t, err)
	assert.Equal(t, "/store/1/result.nc", path)
}
