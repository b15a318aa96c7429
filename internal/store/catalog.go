// Package store reads the local raster store: one directory per project,
// one dated composite per file. The naming convention
// Sentinel2_<code>/<year>_<month:02>.tiff is load-bearing; the scanner's date
// parsing depends on it.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DirPrefix prefixes every per-project imagery directory.
const DirPrefix = "Sentinel2_"

var (
	// ErrNoImageryFolder is returned when the project has no imagery
	// directory at all.
	ErrNoImageryFolder = errors.New("no imagery folder for project")

	// ErrEmptyImageryFolder is returned when the directory exists but holds
	// no raster files.
	ErrEmptyImageryFolder = errors.New("imagery folder contains no rasters")
)

// rasterExtensions lists filename extensions the scanner accepts.
var rasterExtensions = map[string]bool{
	".tiff": true,
	".tif":  true,
}

// Entry is one cataloged raster. Entries are rebuilt on every scan; nothing
// here persists. Date is zero when the filename did not parse.
type Entry struct {
	Path     string    `json:"path"`
	Filename string    `json:"filename"`
	Date     time.Time `json:"date,omitzero"`
	Label    string    `json:"label"`
}

// Dated reports whether the entry carries a parsed acquisition date.
func (e Entry) Dated() bool {
	return !e.Date.IsZero()
}

// YearGroup is a display projection of the sorted entry list.
type YearGroup struct {
	Year    string  `json:"year"`
	Entries []Entry `json:"entries"`
}

// DirName returns the conventional imagery directory name for a project.
func DirName(projectCode string) string {
	return DirPrefix + projectCode
}

// FileName returns the conventional raster filename for a time slice.
func FileName(year int, month time.Month) string {
	return fmt.Sprintf("%d_%02d.tiff", year, month)
}

// ProductPath returns the full store path for a (project, slice) unit.
func ProductPath(baseDir, projectCode string, year int, month time.Month) string {
	return filepath.Join(baseDir, DirName(projectCode), FileName(year, month))
}

// ParseFilename extracts the (year, month) date from names like 2025_01.tiff.
// Exactly two underscore-delimited integer components are required; anything
// else yields a zero time, which the catalog treats as "undated".
func ParseFilename(filename string) time.Time {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) != 2 {
		return time.Time{}
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 || year < 1 {
		return time.Time{}
	}

	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// Scan lists the project's rasters sorted ascending by date. Undated entries
// sort first, treated as the earliest possible timestamp, so display grouping
// stays deterministic. Unparsable filenames degrade to undated entries rather
// than failing the scan.
func Scan(baseDir, projectCode string) ([]Entry, error) {
	dir := filepath.Join(baseDir, DirName(projectCode))

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoImageryFolder, DirName(projectCode))
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read imagery folder %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !rasterExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}

		date := ParseFilename(de.Name())
		label := strings.TrimSuffix(de.Name(), filepath.Ext(de.Name()))
		if !date.IsZero() {
			label = date.Format("Jan 2006")
		}

		entries = append(entries, Entry{
			Path:     filepath.Join(dir, de.Name()),
			Filename: de.Name(),
			Date:     date,
			Label:    label,
		})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyImageryFolder, DirName(projectCode))
	}

	SortEntries(entries)
	return entries, nil
}

// SortEntries orders entries chronologically with undated entries first.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
}

// GroupByYear projects the sorted entries into per-year groups for display.
// Undated entries fall into a "Sin fecha" group, which sorts first because
// the input order is preserved.
func GroupByYear(entries []Entry) []YearGroup {
	var groups []YearGroup
	index := map[string]int{}

	for _, e := range entries {
		year := "Sin fecha"
		if e.Dated() {
			year = strconv.Itoa(e.Date.Year())
		}

		i, ok := index[year]
		if !ok {
			i = len(groups)
			index[year] = i
			groups = append(groups, YearGroup{Year: year})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}

	return groups
}

// Find returns the catalog entry for a filename within the scanned list.
func Find(entries []Entry, filename string) (Entry, bool) {
	for _, e := range entries {
		if e.Filename == filename {
			return e, true
		}
	}
	return Entry{}, false
}
