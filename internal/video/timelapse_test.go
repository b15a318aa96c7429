package video

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satwatch/internal/render"
	"satwatch/internal/store"
	"satwatch/pkg/geotiff"
)

func writeEntry(t *testing.T, dir, filename string) store.Entry {
	t.Helper()
	width, height := 8, 6
	bands := make([][]uint16, 4)
	for b := range bands {
		bands[b] = make([]uint16, width*height)
		for i := range bands[b] {
			bands[b][i] = uint16(100 + b*50 + i)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, geotiff.EncodeBands(&buf, bands, width, height, nil))

	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return store.Entry{Path: path, Filename: filename, Date: time.Now()}
}

func newExporter(t *testing.T, opts Options) *Exporter {
	t.Helper()
	r, err := render.New(8)
	require.NoError(t, err)
	return NewExporter(r, 1, [3]int{3, 2, 1}, opts)
}

func TestExportWritesPlayableAVI(t *testing.T) {
	dir := t.TempDir()
	entries := []store.Entry{
		writeEntry(t, dir, "2025_01.tiff"),
		writeEntry(t, dir, "2025_04.tiff"),
		writeEntry(t, dir, "2025_07.tiff"),
	}

	opts := DefaultOptions()
	opts.Width, opts.Height = 64, 48
	e := newExporter(t, opts)

	out := filepath.Join(dir, "timelapse.avi")
	require.NoError(t, e.Export(entries, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
}

func TestExportForcesAVIExtension(t *testing.T) {
	dir := t.TempDir()
	entries := []store.Entry{writeEntry(t, dir, "2025_01.tiff")}

	opts := DefaultOptions()
	opts.Width, opts.Height = 32, 32
	e := newExporter(t, opts)

	require.NoError(t, e.Export(entries, filepath.Join(dir, "timelapse.mp4")))

	_, err := os.Stat(filepath.Join(dir, "timelapse.avi"))
	assert.NoError(t, err)
}

func TestExportEmptyEntriesFails(t *testing.T) {
	e := newExporter(t, DefaultOptions())
	err := e.Export(nil, filepath.Join(t.TempDir(), "out.avi"))
	assert.Error(t, err)
}

func TestExportMissingRasterFails(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 32, 32
	e := newExporter(t, opts)

	entries := []store.Entry{{Path: "/does/not/exist.tiff", Filename: "exist.tiff"}}
	err := e.Export(entries, filepath.Join(t.TempDir(), "out.avi"))
	assert.Error(t, err)
}
