// Package compare builds the two-pane temporal comparison: exactly two
// catalog entries, ordered oldest first, each rendered and scaled
// independently unless zoom sync ties them together.
package compare

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"satwatch/internal/render"
	"satwatch/internal/store"
)

const (
	MinZoom = 50
	MaxZoom = 400
)

// Settings carries the per-request display state.
type Settings struct {
	Mode        render.Mode
	ZoomEarlier int
	ZoomLater   int
	SyncZoom    bool
}

// Pane is one half of a comparison.
type Pane struct {
	Entry store.Entry
	Zoom  int
	Image *image.NRGBA
}

// Result is either a complete two-pane comparison or a report of how many
// entries were selected. Callers check Incomplete before touching the panes.
type Result struct {
	Incomplete    bool
	SelectedCount int

	Earlier Pane
	Later   Pane

	// ElapsedDays is only meaningful when both entries carry a date.
	ElapsedDays int
	HasElapsed  bool
}

// ClampZoom folds any requested zoom into the supported percentage range.
func ClampZoom(zoom int) int {
	if zoom < MinZoom {
		return MinZoom
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

// Comparer renders comparison panes through a shared renderer so both sides
// benefit from the same cache.
type Comparer struct {
	renderer *render.Renderer
	bands    render.Options
}

func New(renderer *render.Renderer, grayBand int, rgbBands [3]int) *Comparer {
	return &Comparer{
		renderer: renderer,
		bands:    render.Options{GrayBand: grayBand, RGBBands: rgbBands},
	}
}

// Compare renders the selected entries side by side. Selections of any size
// other than two produce an incomplete result rather than an error; the
// caller surfaces the count to the user.
func (c *Comparer) Compare(selected []store.Entry, settings Settings) (*Result, error) {
	if len(selected) != 2 {
		return &Result{Incomplete: true, SelectedCount: len(selected)}, nil
	}

	earlier, later := selected[0], selected[1]
	if isLater(earlier, later) {
		earlier, later = later, earlier
	}

	zoomEarlier := ClampZoom(settings.ZoomEarlier)
	zoomLater := ClampZoom(settings.ZoomLater)
	if settings.SyncZoom {
		zoomLater = zoomEarlier
	}

	opts := c.bands
	opts.Mode = settings.Mode

	earlierImg, err := c.renderPane(earlier, opts, zoomEarlier)
	if err != nil {
		return nil, err
	}
	laterImg, err := c.renderPane(later, opts, zoomLater)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Earlier: Pane{Entry: earlier, Zoom: zoomEarlier, Image: earlierImg},
		Later:   Pane{Entry: later, Zoom: zoomLater, Image: laterImg},
	}
	if earlier.Dated() && later.Dated() {
		result.ElapsedDays = int(later.Date.Sub(earlier.Date).Hours() / 24)
		result.HasElapsed = true
	}
	return result, nil
}

func (c *Comparer) renderPane(entry store.Entry, opts render.Options, zoom int) (*image.NRGBA, error) {
	img, err := c.renderer.RenderFile(entry.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", entry.Filename, err)
	}
	if zoom == 100 {
		return img, nil
	}

	bounds := img.Bounds()
	w := uint(bounds.Dx() * zoom / 100)
	h := uint(bounds.Dy() * zoom / 100)
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}

	scaled := resize.Resize(w, h, img, resize.Bilinear)
	if out, ok := scaled.(*image.NRGBA); ok {
		return out, nil
	}

	out := image.NewNRGBA(scaled.Bounds())
	for y := scaled.Bounds().Min.Y; y < scaled.Bounds().Max.Y; y++ {
		for x := scaled.Bounds().Min.X; x < scaled.Bounds().Max.X; x++ {
			out.Set(x, y, scaled.At(x, y))
		}
	}
	return out, nil
}

// isLater reports whether a was acquired after b. Undated entries sort as
// the oldest possible date, matching the catalog listing.
func isLater(a, b store.Entry) bool {
	return a.Date.After(b.Date)
}
