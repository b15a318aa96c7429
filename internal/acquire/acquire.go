// Package acquire drives the imagery acquisition pipeline: project
// coordinates become an area of interest, each configured temporal slice is
// searched and the best candidate downloaded into the local store.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"satwatch/internal/catalog"
	"satwatch/internal/download"
	"satwatch/internal/geo"
	"satwatch/internal/registry"
	"satwatch/internal/report"
	"satwatch/internal/store"
)

var ErrNoCoordinates = errors.New("project has no coordinates")

// Fetcher downloads a catalog asset to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, asset catalog.Asset, destPath string) error
}

var _ Fetcher = (*download.Downloader)(nil)

// Reporter persists run outcomes. Satisfied by report.Store.
type Reporter interface {
	StartRun(ctx context.Context, projectCode string) (report.Run, error)
	RecordSlice(ctx context.Context, rec report.SliceRecord) error
	FinishRun(ctx context.Context, runID string) error
}

// Slice is one acquisition target: a calendar month within a year.
type Slice struct {
	Year  int
	Month int
}

// SliceResult is the in-memory outcome of one slice.
type SliceResult struct {
	Slice  Slice
	Status string
	Detail string
	Path   string
}

// Summary aggregates a project run.
type Summary struct {
	RunID      string
	Project    string
	Results    []SliceResult
	Downloaded int
	NoScene    int
	Failed     int
}

// Options controls one acquisition run.
type Options struct {
	Collection    string
	MaxCloudCover float64
	BufferKm      float64
	WindowDays    int
	Workers       int64
	DataDir       string
}

// Pipeline wires the catalog, downloader and report store together.
type Pipeline struct {
	catalog catalog.Client
	fetcher Fetcher
	reports Reporter
	logger  *slog.Logger
	opts    Options
}

func New(cat catalog.Client, fetcher Fetcher, reports Reporter, logger *slog.Logger, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{catalog: cat, fetcher: fetcher, reports: reports, logger: logger, opts: opts}
}

// AcquireProject runs every slice for one project. Slice failures are
// isolated: a failed month is recorded and the rest proceed. The returned
// error covers run-level problems only, such as unusable coordinates.
func (p *Pipeline) AcquireProject(ctx context.Context, project registry.Project, slices []Slice) (*Summary, error) {
	if !project.HasCoordinates() {
		return nil, fmt.Errorf("%w: %s", ErrNoCoordinates, project.Code)
	}

	center, err := geo.ParsePoint(project.LatDMS, project.LonDMS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse coordinates for project %s: %w", project.Code, err)
	}
	area, err := geo.Buffer(center, p.opts.BufferKm)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer area for project %s: %w", project.Code, err)
	}

	run, err := p.reports.StartRun(ctx, project.Code)
	if err != nil {
		return nil, err
	}

	productDir := filepath.Join(p.opts.DataDir, store.DirName(project.Code))
	if err := os.MkdirAll(productDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create imagery folder %s: %w", productDir, err)
	}

	p.logger.Info("acquisition run started",
		"run_id", run.ID,
		"project", project.Code,
		"slices", len(slices),
		"area", fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", area.West, area.South, area.East, area.North))

	summary := &Summary{RunID: run.ID, Project: project.Code, Results: make([]SliceResult, len(slices))}

	sem := semaphore.NewWeighted(p.opts.Workers)
	var wg sync.WaitGroup
	for i, slice := range slices {
		if err := sem.Acquire(ctx, 1); err != nil {
			// context cancelled; mark remaining slices failed
			for j := i; j < len(slices); j++ {
				summary.Results[j] = SliceResult{Slice: slices[j], Status: report.StatusFailed, Detail: err.Error()}
			}
			break
		}
		wg.Add(1)
		go func(i int, slice Slice) {
			defer wg.Done()
			defer sem.Release(1)
			summary.Results[i] = p.acquireSlice(ctx, run.ID, project.Code, area, slice)
		}(i, slice)
	}
	wg.Wait()

	for _, res := range summary.Results {
		switch res.Status {
		case report.StatusDownloaded:
			summary.Downloaded++
		case report.StatusNoScene:
			summary.NoScene++
		default:
			summary.Failed++
		}
	}

	if err := p.reports.FinishRun(ctx, run.ID); err != nil {
		p.logger.Error("failed to finalize run report", "run_id", run.ID, "error", err)
	}

	p.logger.Info("acquisition run finished",
		"run_id", run.ID,
		"project", project.Code,
		"downloaded", summary.Downloaded,
		"no_scene", summary.NoScene,
		"failed", summary.Failed)

	return summary, nil
}

func (p *Pipeline) acquireSlice(ctx context.Context, runID, code string, area geo.BoundingBox, slice Slice) SliceResult {
	result := p.runSlice(ctx, code, area, slice)

	rec := report.SliceRecord{
		RunID:  runID,
		Year:   slice.Year,
		Month:  slice.Month,
		Status: result.Status,
		Detail: result.Detail,
		Path:   result.Path,
	}
	if err := p.reports.RecordSlice(ctx, rec); err != nil {
		p.logger.Error("failed to persist slice outcome",
			"run_id", runID, "year", slice.Year, "month", slice.Month, "error", err)
	}
	return result
}

func (p *Pipeline) runSlice(ctx context.Context, code string, area geo.BoundingBox, slice Slice) SliceResult {
	logger := p.logger.With("project", code, "year", slice.Year, "month", slice.Month)

	scenes, err := p.catalog.Search(ctx, catalog.SearchRequest{
		Collection:    p.opts.Collection,
		Area:          area,
		Dates:         catalog.SliceRange(slice.Year, time.Month(slice.Month), p.opts.WindowDays),
		MaxCloudCover: p.opts.MaxCloudCover,
	})
	if err != nil {
		logger.Error("catalog search failed", "error", err)
		return SliceResult{Slice: slice, Status: report.StatusFailed, Detail: fmt.Sprintf("search: %v", err)}
	}
	if len(scenes) == 0 {
		logger.Info("no usable scene for slice")
		return SliceResult{Slice: slice, Status: report.StatusNoScene, Detail: "no scenes under cloud ceiling"}
	}

	best := scenes[0]
	destPath := store.ProductPath(p.opts.DataDir, code, slice.Year, time.Month(slice.Month))
	if err := p.fetcher.Fetch(ctx, best.Asset, destPath); err != nil {
		logger.Error("download failed", "scene", best.ID, "error", err)
		return SliceResult{Slice: slice, Status: report.StatusFailed, Detail: fmt.Sprintf("download %s: %v", best.ID, err)}
	}

	logger.Info("slice downloaded", "scene", best.ID, "cloud_cover", best.CloudCover, "path", destPath)
	return SliceResult{Slice: slice, Status: report.StatusDownloaded, Path: destPath}
}

// DefaultSlices expands a year and month list into slices.
func DefaultSlices(year int, months []int) []Slice {
	slices := make([]Slice, 0, len(months))
	for _, m := range months {
		slices = append(slices, Slice{Year: year, Month: m})
	}
	return slices
}
