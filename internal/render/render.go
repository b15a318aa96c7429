// Package render turns multi-band reflectance rasters into displayable
// images. Raw band values are meaningless to the eye, so each displayed band
// is contrast-stretched between its 2nd and 98th percentile, computed over
// valid pixels only.
package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/stat"

	"satwatch/pkg/geotiff"
)

// Mode selects the band-to-channel mapping.
type Mode string

const (
	ModeGrayscale  Mode = "grayscale"
	ModeFalseColor Mode = "falsecolor"
)

// ParseMode validates a mode string from a request or config file.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGrayscale, ModeFalseColor:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown render mode %q", s)
}

const (
	lowPercentile  = 0.02
	highPercentile = 0.98
	stretchEpsilon = 1e-9
)

// Options configures the band mapping. Band indices are 1-based.
type Options struct {
	Mode     Mode
	GrayBand int
	RGBBands [3]int
}

// DefaultOptions matches the band order the acquisition pipeline writes:
// blue, green, red, near-infrared. Grayscale shows blue; false color maps
// red, green, blue to the display channels.
func DefaultOptions(mode Mode) Options {
	return Options{Mode: mode, GrayBand: 1, RGBBands: [3]int{3, 2, 1}}
}

// Renderer caches rendered images. The cache key includes file mtime and
// size, so a rewritten raster renders fresh without explicit invalidation.
type Renderer struct {
	cache *lru.Cache[string, *image.NRGBA]
}

func New(cacheSize int) (*Renderer, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, *image.NRGBA](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	return &Renderer{cache: cache}, nil
}

// RenderFile decodes and renders a raster from disk, caching the result.
func (r *Renderer) RenderFile(path string, opts Options) (*image.NRGBA, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat raster %s: %w", path, err)
	}

	key := fmt.Sprintf("%s|%s|%d|%d|%d|%v", path, opts.Mode, opts.GrayBand,
		info.ModTime().UnixNano(), info.Size(), opts.RGBBands)
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}

	raster, err := geotiff.DecodeFile(path)
	if err != nil {
		return nil, err
	}

	img, err := Render(raster, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", path, err)
	}

	r.cache.Add(key, img)
	return img, nil
}

// Render produces an 8-bit image from the raster. Both modes yield a
// three-channel result; grayscale replicates the stretched band across
// R, G and B so downstream handling is uniform.
func Render(raster *geotiff.Raster, opts Options) (*image.NRGBA, error) {
	var channels [3][]uint8

	switch opts.Mode {
	case ModeGrayscale:
		band, err := raster.Band(opts.GrayBand)
		if err != nil {
			return nil, err
		}
		stretched := stretch(band)
		channels = [3][]uint8{stretched, stretched, stretched}
	case ModeFalseColor:
		for i, n := range opts.RGBBands {
			band, err := raster.Band(n)
			if err != nil {
				return nil, err
			}
			channels[i] = stretch(band)
		}
	default:
		return nil, fmt.Errorf("unknown render mode %q", opts.Mode)
	}

	img := image.NewNRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	for i := 0; i < raster.Width*raster.Height; i++ {
		img.SetNRGBA(i%raster.Width, i/raster.Width, color.NRGBA{
			R: channels[0][i],
			G: channels[1][i],
			B: channels[2][i],
			A: 255,
		})
	}
	return img, nil
}

// stretch maps a band to 8-bit via a 2-98 percentile stretch. Zero and
// negative samples are nodata and excluded from the percentile computation,
// though they still map through the resulting ramp.
func stretch(band []float64) []uint8 {
	valid := make([]float64, 0, len(band))
	for _, v := range band {
		if v > 0 {
			valid = append(valid, v)
		}
	}

	p2, p98 := 0.0, 1.0
	if len(valid) > 0 {
		sort.Float64s(valid)
		p2 = stat.Quantile(lowPercentile, stat.Empirical, valid, nil)
		p98 = stat.Quantile(highPercentile, stat.Empirical, valid, nil)
	}

	scale := p98 - p2 + stretchEpsilon
	out := make([]uint8, len(band))
	for i, v := range band {
		n := (v - p2) / scale
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		out[i] = uint8(n * 255)
	}
	return out
}
