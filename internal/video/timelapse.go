// Package video assembles a project's monthly rasters into a timelapse.
// Output is Motion JPEG in an AVI container, which plays everywhere without
// an external encoder.
package video

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/icza/mjpeg"
	"github.com/nfnt/resize"

	"satwatch/internal/render"
	"satwatch/internal/store"
)

// Options controls timelapse assembly.
type Options struct {
	Width      int
	Height     int
	FrameDelay float64 // seconds each raster stays on screen
	Quality    int     // JPEG quality, 0-100
	Mode       render.Mode
}

// DefaultOptions produces a 720p timelapse with two seconds per frame.
func DefaultOptions() Options {
	return Options{
		Width:      1280,
		Height:     720,
		FrameDelay: 2.0,
		Quality:    85,
		Mode:       render.ModeFalseColor,
	}
}

// Exporter renders catalog entries into video frames.
type Exporter struct {
	renderer *render.Renderer
	bands    render.Options
	opts     Options
}

func NewExporter(renderer *render.Renderer, grayBand int, rgbBands [3]int, opts Options) *Exporter {
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = 85
	}
	return &Exporter{
		renderer: renderer,
		bands:    render.Options{GrayBand: grayBand, RGBBands: rgbBands},
		opts:     opts,
	}
}

// Export writes a timelapse of the entries, in the order given, to
// outputPath. Entries are expected pre-sorted oldest first, the catalog
// listing's order.
func (e *Exporter) Export(entries []store.Entry, outputPath string) error {
	if len(entries) == 0 {
		return fmt.Errorf("no frames to export")
	}

	if !strings.HasSuffix(strings.ToLower(outputPath), ".avi") {
		outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".avi"
	}

	// each raster holds for FrameDelay seconds, so FPS is its inverse
	fps := int(1.0 / e.opts.FrameDelay)
	if fps < 1 {
		fps = 1
	}
	if fps > 30 {
		fps = 30
	}

	writer, err := mjpeg.New(outputPath, int32(e.opts.Width), int32(e.opts.Height), int32(fps))
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}
	defer writer.Close()

	renderOpts := e.bands
	renderOpts.Mode = e.opts.Mode

	for _, entry := range entries {
		img, err := e.renderer.RenderFile(entry.Path, renderOpts)
		if err != nil {
			return fmt.Errorf("failed to render frame %s: %w", entry.Filename, err)
		}

		frame := e.composeFrame(img)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: e.opts.Quality}); err != nil {
			return fmt.Errorf("failed to encode frame %s: %w", entry.Filename, err)
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to add frame %s: %w", entry.Filename, err)
		}
	}

	return nil
}

// composeFrame letterboxes the raster into the output dimensions, preserving
// aspect ratio on a black background.
func (e *Exporter) composeFrame(src *image.NRGBA) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, e.opts.Width, e.opts.Height))

	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()
	scale := float64(e.opts.Width) / float64(srcW)
	if s := float64(e.opts.Height) / float64(srcH); s < scale {
		scale = s
	}

	w := uint(float64(srcW) * scale)
	h := uint(float64(srcH) * scale)
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	scaled := resize.Resize(w, h, src, resize.Bilinear)

	offset := image.Pt(
		(e.opts.Width-scaled.Bounds().Dx())/2,
		(e.opts.Height-scaled.Bounds().Dy())/2,
	)
	draw.Draw(out, scaled.Bounds().Add(offset), scaled, scaled.Bounds().Min, draw.Src)
	return out
}
