// Package server exposes the catalog, rendering and comparison operations
// over HTTP.
package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"satwatch/internal/compare"
	"satwatch/internal/config"
	"satwatch/internal/geo"
	"satwatch/internal/registry"
	"satwatch/internal/render"
	"satwatch/internal/report"
	"satwatch/internal/store"
	"satwatch/internal/video"
	"satwatch/pkg/geotiff"
)

type Handler struct {
	settings *config.Settings
	registry *registry.Registry
	renderer *render.Renderer
	comparer *compare.Comparer
	reports  *report.Store
	logger   *slog.Logger
}

func NewHandler(settings *config.Settings, reg *registry.Registry, renderer *render.Renderer,
	reports *report.Store, logger *slog.Logger) *Handler {
	return &Handler{
		settings: settings,
		registry: reg,
		renderer: renderer,
		comparer: compare.New(renderer, settings.GrayBand, settings.RGBBands),
		reports:  reports,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/api/projects/:code", h.getProject)
	r.GET("/api/projects/:code/images", h.getImages)
	r.GET("/api/projects/:code/images/:filename/render", h.renderImage)
	r.GET("/api/projects/:code/images/:filename/export", h.exportGeoTIFF)
	r.GET("/api/projects/:code/compare", h.compareImages)
	r.GET("/api/projects/:code/timelapse", h.timelapse)
	r.GET("/api/runs", h.getRuns)
	r.GET("/api/runs/:id", h.getRunSlices)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getProject(c *gin.Context) {
	project, err := h.registry.Lookup(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) getImages(c *gin.Context) {
	code := c.Param("code")
	entries, err := store.Scan(h.settings.DataDir, code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoImageryFolder) || errors.Is(err, store.ErrEmptyImageryFolder) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project": code,
		"count":   len(entries),
		"groups":  store.GroupByYear(entries),
	})
}

// lookupEntry resolves a filename within a project's imagery folder,
// refusing names that escape it.
func (h *Handler) lookupEntry(code, filename string) (store.Entry, error) {
	if filepath.Base(filename) != filename {
		return store.Entry{}, fmt.Errorf("invalid filename %q", filename)
	}
	entries, err := store.Scan(h.settings.DataDir, code)
	if err != nil {
		return store.Entry{}, err
	}
	entry, ok := store.Find(entries, filename)
	if !ok {
		return store.Entry{}, fmt.Errorf("no image %q for project %s", filename, code)
	}
	return entry, nil
}

func (h *Handler) renderOptions(c *gin.Context) (render.Options, error) {
	mode := render.ModeGrayscale
	if m := c.Query("mode"); m != "" {
		parsed, err := render.ParseMode(m)
		if err != nil {
			return render.Options{}, err
		}
		mode = parsed
	}
	return render.Options{
		Mode:     mode,
		GrayBand: h.settings.GrayBand,
		RGBBands: h.settings.RGBBands,
	}, nil
}

func (h *Handler) renderImage(c *gin.Context) {
	entry, err := h.lookupEntry(c.Param("code"), c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	opts, err := h.renderOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img, err := h.renderer.RenderFile(entry.Path, opts)
	if err != nil {
		h.logger.Error("render failed", "path", entry.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render image"})
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode image"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type paneResponse struct {
	Filename string `json:"filename"`
	Label    string `json:"label"`
	Zoom     int    `json:"zoom"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	PNG      string `json:"png_base64"`
}

func (h *Handler) compareImages(c *gin.Context) {
	code := c.Param("code")

	selected := []store.Entry{}
	files := c.QueryArray("file")
	for _, f := range files {
		entry, err := h.lookupEntry(code, f)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		selected = append(selected, entry)
	}

	opts, err := h.renderOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings := compare.Settings{
		Mode:        opts.Mode,
		ZoomEarlier: queryInt(c, "zoom_earlier", 100),
		ZoomLater:   queryInt(c, "zoom_later", 100),
		SyncZoom:    c.Query("sync") == "true",
	}

	result, err := h.comparer.Compare(selected, settings)
	if err != nil {
		h.logger.Error("comparison failed", "project", code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build comparison"})
		return
	}

	if result.Incomplete {
		c.JSON(http.StatusOK, gin.H{
			"incomplete":     true,
			"selected_count": result.SelectedCount,
			"message":        fmt.Sprintf("comparison needs exactly 2 images, got %d", result.SelectedCount),
		})
		return
	}

	earlier, err := encodePane(result.Earlier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode comparison"})
		return
	}
	later, err := encodePane(result.Later)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode comparison"})
		return
	}

	resp := gin.H{
		"incomplete": false,
		"earlier":    earlier,
		"later":      later,
	}
	if result.HasElapsed {
		resp["elapsed_days"] = result.ElapsedDays
	}
	c.JSON(http.StatusOK, resp)
}

func encodePane(pane compare.Pane) (paneResponse, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, pane.Image); err != nil {
		return paneResponse{}, err
	}
	return paneResponse{
		Filename: pane.Entry.Filename,
		Label:    pane.Entry.Label,
		Zoom:     pane.Zoom,
		Width:    pane.Image.Bounds().Dx(),
		Height:   pane.Image.Bounds().Dy(),
		PNG:      base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// exportGeoTIFF re-encodes a rendered image as a georeferenced TIFF. The
// bounding box comes from the project's registered coordinates and the
// configured acquisition buffer, so the export lines up with what was
// originally requested from the catalog.
func (h *Handler) exportGeoTIFF(c *gin.Context) {
	code := c.Param("code")
	project, err := h.registry.Lookup(code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if !project.HasCoordinates() {
		c.JSON(http.StatusConflict, gin.H{"error": "project has no registered coordinates"})
		return
	}

	entry, err := h.lookupEntry(code, c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	opts, err := h.renderOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	center, err := geo.ParsePoint(project.LatDMS, project.LonDMS)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("unusable registry coordinates: %v", err)})
		return
	}
	area, err := geo.Buffer(center, h.settings.BufferKm)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	img, err := h.renderer.RenderFile(entry.Path, opts)
	if err != nil {
		h.logger.Error("render failed", "path", entry.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render image"})
		return
	}

	tags := geotiff.GeographicTags(area.West, area.South, area.East, area.North,
		img.Bounds().Dx(), img.Bounds().Dy())

	var buf bytes.Buffer
	if err := geotiff.Encode(&buf, img, tags); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode GeoTIFF"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s", code, entry.Filename))
	c.Data(http.StatusOK, "image/tiff", buf.Bytes())
}

func (h *Handler) timelapse(c *gin.Context) {
	code := c.Param("code")
	entries, err := store.Scan(h.settings.DataDir, code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoImageryFolder) || errors.Is(err, store.ErrEmptyImageryFolder) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	opts := video.DefaultOptions()
	if m := c.Query("mode"); m != "" {
		mode, err := render.ParseMode(m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Mode = mode
	}

	exporter := video.NewExporter(h.renderer, h.settings.GrayBand, h.settings.RGBBands, opts)

	tmp, err := os.CreateTemp("", "satwatch-timelapse-*.avi")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage timelapse"})
		return
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := exporter.Export(entries, tmp.Name()); err != nil {
		h.logger.Error("timelapse export failed", "project", code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export timelapse"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_timelapse.avi", code))
	c.File(tmp.Name())
}

func (h *Handler) getRuns(c *gin.Context) {
	runs, err := h.reports.ListRuns(c.Request.Context(), c.Query("project"))
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) getRunSlices(c *gin.Context) {
	slices, err := h.reports.RunSlices(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to list run slices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list run slices"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slices": slices})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
