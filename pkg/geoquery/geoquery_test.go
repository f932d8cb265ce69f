package geoquery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullQuery(t *testing.T) {
	doc := `{
		"variable": ["tas", "pr"],
		"time": {"start": "1981-01-01", "stop": "1982-01-01"},
		"area": {"north": 54.0, "south": 49.0, "east": 24.0, "west": 14.0},
		"vertical": [100.0, 500.0],
		"format": "netcdf",
		"format_args": {"compress": true}
	}`

	q, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"tas", "pr"}, q.Variable)
	require.NotNil(t, q.Time)
	require.NotNil(t, q.Time.Range)
	assert.Equal(t, "1981-01-01", q.Time.Range.Start)
	assert.Equal(t, "1982-01-01", q.Time.Range.Stop)
	require.NotNil(t, q.Area)
	assert.Equal(t, 54.0, q.Area.North)
	require.NotNil(t, q.Vertical)
	assert.Equal(t, []float64{100.0, 500.0}, q.Vertical.Values)
	assert.Equal(t, "netcdf", q.Format)
	assert.Equal(t, map[string]interface{}{"compress": true}, q.FormatArgs)
}

func TestParse_ScalarVariants(t *testing.T) {
	doc := `{
		"variable": "tas",
		"time": {"year": [2000, 2001], "month": [1], "hour": [0, 12]},
		"location": {"latitude": 52.2, "longitude": [20.9, 21.1]},
		"vertical": 850.0
	}`

	q, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"tas"}, q.Variable)
	require.NotNil(t, q.Time.Combo)
	assert.Equal(t, []int{2000, 2001}, q.Time.Combo.Year)
	assert.Equal(t, []int{0, 12}, q.Time.Combo.Hour)
	require.NotNil(t, q.Location)
	assert.Equal(t, []float64{52.2}, q.Location.Latitude)
	assert.Equal(t, []float64{20.9, 21.1}, q.Location.Longitude)
	assert.Equal(t, []float64{850.0}, q.Vertical.Values)
}

func TestParse_VerticalRange(t *testing.T) {
	q, err := Parse([]byte(`{"vertical": {"start": 100.0, "stop": 1000.0, "step": 100.0}}`))
	require.NoError(t, err)
	require.NotNil(t, q.Vertical.Range)
	assert.Equal(t, 100.0, q.Vertical.Range.Start)
	assert.Equal(t, 1000.0, q.Vertical.Range.Stop)
	assert.Equal(t, 100.0, q.Vertical.Range.Step)
}

func TestParse_UnknownKeysLiftedIntoFilters(t *testing.T) {
	doc := `{"variable": "tas", "product_type": "ensemble_mean", "experiment": ["rcp45"]}`

	q, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "ensemble_mean", q.Filters["product_type"])
	assert.Equal(t, []interface{}{"rcp45"}, q.Filters["experiment"])
}

func TestParse_AreaLocationExclusive(t *testing.T) {
	doc := `{
		"area": {"north": 1, "south": 0, "east": 1, "west": 0},
		"location": {"latitude": 0.5, "longitude": 0.5}
	}`

	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestParse_RejectsStopWithoutStart(t *testing.T) {
	_, err := Parse([]byte(`{"time": {"stop": "2020-01-01"}}`))
	require.Error(t, err)
}

func TestRoundTrip_Identity(t *testing.T) {
	docs := []string{
		`{"variable": "tas"}`,
		`{"variable": ["tas", "pr"], "time": {"start": "2000", "stop": "2001", "step": "1D"}}`,
		`{"time": {"year": [2020], "month": [6, 7, 8]}}`,
		`{"area": {"north": 54, "south": 49, "east": 24, "west": 14}, "vertical": 500}`,
		`{"variable": "tas", "product_type": "reanalysis", "format": "netcdf"}`,
		`{"location": {"latitude": [1, 2], "longitude": [3, 4]}, "format_args": {"zip": false}}`,
	}

	for _, doc := range docs {
		first, err := Parse([]byte(doc))
		require.NoError(t, err, doc)

		data, err := json.Marshal(first)
		require.NoError(t, err, doc)

		second, err := Parse(data)
		require.NoError(t, err, doc)

		assert.Equal(t, first, second, doc)
	}
}

func TestRoundTrip_FiltersSurvive(t *testing.T) {
	first, err := Parse([]byte(`{"variable": "tas", "product_type": "reanalysis"}`))
	require.NoError(t, err)

	data, err := json.Marshal(first)
	require.NoError(t, err)

	second, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "reanalysis", second.Filters["product_type"])
}

func TestParse_NotAnObject(t *testing.T) {
	_, err := Parse([]byte(`[1, 2, 3]`))
	require.Error(t, err)
}
