package ncfile

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/aqs/internal/aqs"
	"github.com/rtm0/aqs/internal/reshape"
)

func hourlyTable(t *testing.T, withCoords bool) *reshape.Table {
	t.Helper()
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	index := []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}
	cols := []series.Series{
		series.New([]float64{0.031, 0.029, 0.027}, series.Float, "o3"),
		series.New([]any{7.5, nil, 9.5}, series.Float, "pm25"),
		series.New([]string{"A", "B", "C"}, series.String, reshape.QualifierName("o3")),
	}
	if withCoords {
		cols = append(cols,
			series.New([]float64{39.95, 39.95, 39.95}, series.Float, aqs.Latitude),
			series.New([]float64{-75.16, -75.16, -75.16}, series.Float, aqs.Longitude),
		)
	}
	tbl, err := reshape.NewTable(index, cols...)
	require.NoError(t, err)
	return tbl
}

func TestWriteAndScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joined.nc")
	require.NoError(t, Write(path, hourlyTable(t, false), []string{"pm25", "o3"}))

	s, err := NewScanner(path, 2)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"o3", "pm25"}, s.Measurements())
	assert.Equal(t, 3, s.TotalRecCount())

	var recs []aqs.Record
	var batches int
	for s.Scan() {
		recs = append(recs, s.Records()...)
		batches++
	}
	require.NoError(t, s.Err())
	assert.Equal(t, 2, batches)
	assert.Nil(t, s.Records())
	require.Len(t, recs, 3)

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	for i, r := range recs {
		assert.Equal(t, start+int64(i)*3600*1000, r.Timestamp)
		assert.True(t, math.IsNaN(r.Latitude))
		assert.True(t, math.IsNaN(r.Longitude))
	}
	assert.Equal(t, []float64{0.031, 7.5}, recs[0].Values)
	assert.Equal(t, 0.029, recs[1].Values[0])
	assert.True(t, math.IsNaN(recs[1].Values[1]))
	assert.Equal(t, []float64{0.027, 9.5}, recs[2].Values)
}

func TestWriteCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joined.nc")
	require.NoError(t, Write(path, hourlyTable(t, true), []string{"o3"}))

	s, err := NewScanner(path, 10)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"o3"}, s.Measurements())
	require.True(t, s.Scan())
	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, 39.95, recs[0].Latitude)
	assert.Equal(t, -75.16, recs[0].Longitude)
	assert.False(t, s.Scan())
}

func TestWriteRejects(t *testing.T) {
	dir := t.TempDir()

	empty, err := reshape.NewTable(nil)
	require.NoError(t, err)
	require.Error(t, Write(filepath.Join(dir, "empty.nc"), empty, nil))

	tbl := hourlyTable(t, false)
	require.Error(t, Write(filepath.Join(dir, "bad.nc"), tbl, []string{"pm2.5"}))
	require.Error(t, Write(filepath.Join(dir, "time.nc"), tbl, []string{"time"}))
	require.ErrorIs(t, Write(filepath.Join(dir, "missing.nc"), tbl, []string{"no2"}), reshape.ErrMissingColumn)
}

// writeRaw writes a file with the given variables along time, bypassing
// Write's checks.
func writeRaw(t *testing.T, path string, vars map[string]any) {
	t.Helper()
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)
	for _, name := range []string{timeVar, "o3"} {
		if v, ok := vars[name]; ok {
			require.NoError(t, addVar(cw, name, v))
		}
	}
	require.NoError(t, cw.Close())
}

func TestScanForeignTypes(t *testing.T) {
	dir := t.TempDir()

	floatTime := filepath.Join(dir, "float-time.nc")
	writeRaw(t, floatTime, map[string]any{timeVar: []float64{1060824, 1060825}})
	_, err := NewScanner(floatTime, 10)
	require.Error(t, err)

	float32Metric := filepath.Join(dir, "float32-o3.nc")
	writeRaw(t, float32Metric, map[string]any{
		timeVar: []int32{1060824, 1060825},
		"o3":    []float32{0.031, 0.029},
	})
	s, err := NewScanner(float32Metric, 10)
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.Scan())
	require.Error(t, s.Err())
	assert.Nil(t, s.Records())
}
