package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/estimate", strings.NewReader(`{"variable":"tas"}`))

	body, err := ReadBody(r)
	require.NoError(t, err)
	assert.Equal(t, `{"variable":"tas"}`, string(body))
}

func TestParsePathParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/requests/42", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "42", "dataset": "era5"})

	id, err := ParsePathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	ds, err := ParsePathString(r, "dataset")
	require.NoError(t, err)
	assert.Equal(t, "era5", ds)

	_, err = ParsePathInt64(r, "missing")
	assert.Error(t, err)

	r = mux.SetURLVars(r, map[string]string{"id": "not-a-number"})
	_, err = ParsePathInt64(r, "id")
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest("POST", "/execute?format=netcdf", nil)

	assert.Equal(t, "netcdf", ParseQueryString(r, "format", "zarr"))
	assert.Equal(t, "bytes", ParseQueryString(r, "unit", "bytes"))
}
