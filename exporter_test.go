package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/aqs/internal/config"
	"github.com/rtm0/aqs/internal/ncfile"
	"github.com/rtm0/aqs/internal/reshape"
)

func TestParamsFlag(t *testing.T) {
	var p paramsFlag
	require.NoError(t, p.Set("o3=data/o3.csv"))
	require.NoError(t, p.Set(" pm25 = data/pm25.json "))
	assert.Equal(t, "o3=data/o3.csv,pm25=data/pm25.json", p.String())

	require.Error(t, p.Set("o3=other.csv"))
	require.Error(t, p.Set("no2"))
	require.Error(t, p.Set("=x.csv"))
}

const header = "date_local,time_local,date_gmt,time_gmt,sample_measurement,qualifier,sample_duration,latitude,longitude,method\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessAllAndWrite(t *testing.T) {
	dir := t.TempDir()
	ps := []param{
		{name: "o3", path: writeFile(t, dir, "o3.csv", header+
			"2021-01-01,00:00,2021-01-01,05:00,0.031,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n"+
			"2021-01-01,01:00,2021-01-01,06:00,0.029,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n")},
		{name: "pm25", path: writeFile(t, dir, "pm25.csv", header+
			"2021-01-01,00:00,2021-01-01,05:00,12.5,,24 HOUR,39.9523,-75.1638,FRM\n")},
		{name: "co", path: writeFile(t, dir, "co.json", `{"Header":[{"status":"No data matched your selection"}],"Data":[]}`)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := reshape.New(logger)

	tables, names, err := processAll(context.Background(), logger, r, ps, reshape.DefaultProcessOptions(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"o3"}, names)
	require.Len(t, tables, 1)

	joined, err := r.Join(tables, names)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.Nrow())

	out := filepath.Join(dir, "joined.nc")
	require.NoError(t, ncfile.Write(out, joined, names))
	s, err := ncfile.NewScanner(out, 10)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"o3"}, s.Measurements())
	assert.Equal(t, 2, s.TotalRecCount())
}

func TestProcessAllVerbose(t *testing.T) {
	*verbose = true
	defer func() { *verbose = false }()

	dir := t.TempDir()
	ps := []param{
		{name: "o3", path: writeFile(t, dir, "o3.csv", header+
			"2021-01-01,00:00,2021-01-01,05:00,0.031,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n"+
			"2021-01-01,01:00,2021-01-01,06:00,0.029,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n")},
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tables, names, err := processAll(context.Background(), logger, reshape.New(logger), ps, reshape.DefaultProcessOptions(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"o3"}, names)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"o3", reshape.QualifierName("o3")}, tables[0].Names())

	assert.Contains(t, buf.String(), `msg="Informative columns" measurement=o3 columns=[o3] rows=2`)
}

func TestProcessAllFails(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := reshape.New(logger)

	_, _, err := processAll(context.Background(), logger, r, []param{
		{name: "o3", path: filepath.Join(dir, "missing.csv")},
	}, reshape.DefaultProcessOptions(), 1)
	require.Error(t, err)

	_, _, err = processAll(context.Background(), logger, r, []param{
		{name: "pm25", path: writeFile(t, dir, "pm25.csv", header+
			"2021-01-01,00:00,2021-01-01,05:00,12.5,,24 HOUR,39.9523,-75.1638,FRM\n")},
	}, reshape.DefaultProcessOptions(), 1)
	require.EqualError(t, err, "no parameter has hourly data")
}

func TestExportReportsFailedBatches(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := reshape.New(logger)
	tables, names, err := processAll(context.Background(), logger, r, []param{
		{name: "o3", path: writeFile(t, dir, "o3.csv", header+
			"2021-01-01,00:00,2021-01-01,05:00,0.031,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n"+
			"2021-01-01,01:00,2021-01-01,06:00,0.029,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n"+
			"2021-01-01,02:00,2021-01-01,07:00,0.027,,1 HOUR,39.9523,-75.1638,INSTRUMENTAL\n")},
	}, reshape.DefaultProcessOptions(), 1)
	require.NoError(t, err)
	joined, err := r.Join(tables, names)
	require.NoError(t, err)
	path := filepath.Join(dir, "joined.nc")
	require.NoError(t, ncfile.Write(path, joined, names))

	for _, tc := range []struct {
		name   string
		status int
		fails  bool
	}{
		{name: "accepted", status: http.StatusNoContent},
		{name: "rejected", status: http.StatusBadRequest, fails: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			cfg := config.Config{
				VMInsertURL:   srv.URL + "/write",
				MetricPrefix:  "aqs",
				Concurrency:   2,
				RecsPerInsert: 2,
			}
			err := export(context.Background(), logger, cfg, path)
			if tc.fails {
				require.EqualError(t, err, "2 batches could not be inserted")
				return
			}
			require.NoError(t, err)
		})
	}
}
