package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitglue/heatmap/pkg/domain/file_generators"
	"github.com/fitglue/heatmap/pkg/types"
)

const (
	gravelRow = `Data,1,device_info,ant_device_number,"2230",,` + "\n"
	badRecord = `Data,3,record,timestamp,"1060261133",s,position_lat,"-2147483647",semicircles,position_long,"385432325",semicircles,distance,"13.1",m,` + "\n"
	badFixed  = `Data,3,record,timestamp,"1060261133",s,distance,"13.1",m,` + "\n"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"draw"}, &out), errUsage)
	assert.Error(t, run(context.Background(), []string{"clean", "-in", "x.csv"}, &out))
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ride.csv")
	outPath := filepath.Join(dir, "ride_fixed.csv")
	writeFile(t, in, gravelRow+badRecord)

	var out bytes.Buffer
	err := run(context.Background(), []string{"clean", "-in", in, "-out", outPath, "-mode", "public"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "bike=gravel(b8850168) latitude_fixes=1 serial_fixes=0 written=true\n", out.String())

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, gravelRow+badFixed, string(got))
}

func TestClean_InvalidMode(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	err := run(context.Background(), []string{"clean", "-in", filepath.Join(dir, "a.csv"), "-out", filepath.Join(dir, "b.csv"), "-mode", "shared"}, &out)
	assert.ErrorContains(t, err, "unknown pipeline mode")
}

func TestLabel(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ride.csv")
	writeFile(t, in, gravelRow)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"label", "-in", in}, &out))
	assert.Equal(t, "bike=gravel(b8850168) gear=b8850168\n", out.String())
}

func TestStripAndSeal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ride.gpx")
	writeFile(t, path, strings.Join([]string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<gpx version="1.1" creator="test">`,
		`<trk><trkseg><trkpt lat="48.6" lon="22.2"><time>2025-09-22T07:48:49Z</time></trkpt></trkseg></trk>`,
		`</gpx>`,
	}, "\n")+"\n")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"strip", "-in", path}, &out))
	assert.Equal(t, "stripped=true first_time=2025-09-22T07:48:49Z\n", out.String())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<gpx")
	assert.NotContains(t, string(body), "</gpx>")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"seal", "-in", path}, &out))
	assert.Equal(t, "appended_close_tag=true\n", out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"seal", "-in", path}, &out))
	assert.Equal(t, "appended_close_tag=false\n", out.String())
}

func TestGPX(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 9, 22, 7, 48, 49, 0, time.UTC)
	data, err := file_generators.GenerateFitFile(&types.Track{
		Name: "ride",
		Points: []types.TrackPoint{
			{Time: start, Latitude: 48.6201, Longitude: 22.2879},
			{Time: start.Add(time.Second), Latitude: 48.6202, Longitude: 22.2881},
		},
	})
	require.NoError(t, err)
	in := filepath.Join(dir, "ride.fit")
	require.NoError(t, os.WriteFile(in, data, 0o600))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"gpx", "-in", in}, &out))
	assert.Contains(t, out.String(), "points=2 start=2025-09-22T07:48:49Z")

	gpxData, err := os.ReadFile(filepath.Join(dir, "ride.gpx"))
	require.NoError(t, err)
	assert.Contains(t, string(gpxData), "<trkpt")
}
