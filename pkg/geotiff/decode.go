package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"

	xtiff "golang.org/x/image/tiff"
)

// Raster is a decoded multi-band image. Band samples are row-major float64
// regardless of the on-disk bit depth, so downstream normalization works on
// one representation.
type Raster struct {
	Width  int
	Height int
	Bands  [][]float64
}

// Band returns the 1-based band, matching the convention of raster tooling.
func (r *Raster) Band(n int) ([]float64, error) {
	if n < 1 || n > len(r.Bands) {
		return nil, fmt.Errorf("band %d out of range, raster has %d bands", n, len(r.Bands))
	}
	return r.Bands[n-1], nil
}

// DecodeFile reads a raster from disk.
func DecodeFile(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster %s: %w", path, err)
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}
	return r, nil
}

// Decode parses a TIFF byte stream. Uncompressed strip layouts with uniform
// 8/16/32-bit unsigned or 32-bit float samples are handled natively, chunky
// or planar; anything else falls back to the x/image decoder, which covers
// compressed single-image rasters at the cost of multi-band awareness.
func Decode(data []byte) (*Raster, error) {
	raster, err := decodeNative(data)
	if err == nil {
		return raster, nil
	}

	img, xerr := xtiff.Decode(bytes.NewReader(data))
	if xerr != nil {
		return nil, fmt.Errorf("native decode failed (%v) and fallback failed: %w", err, xerr)
	}
	return fromImage(img), nil
}

type tiffField struct {
	datatype uint16
	count    uint32
	raw      []byte
	order    binary.ByteOrder
}

var typeSizes = map[uint16]uint32{
	DataType_Byte:     1,
	DataType_ASCII:    1,
	DataType_Short:    2,
	DataType_Long:     4,
	DataType_Rational: 8,
	DataType_Float:    4,
	DataType_Double:   8,
}

// uints returns the field values widened to uint32.
func (f tiffField) uints() []uint32 {
	out := make([]uint32, 0, f.count)
	for i := uint32(0); i < f.count; i++ {
		switch f.datatype {
		case DataType_Byte:
			out = append(out, uint32(f.raw[i]))
		case DataType_Short:
			out = append(out, uint32(f.order.Uint16(f.raw[i*2:])))
		case DataType_Long:
			out = append(out, f.order.Uint32(f.raw[i*4:]))
		}
	}
	return out
}

func (f tiffField) first(fallback uint32) uint32 {
	vs := f.uints()
	if len(vs) == 0 {
		return fallback
	}
	return vs[0]
}

func decodeNative(data []byte) (*Raster, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("truncated TIFF header")
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF stream")
	}
	if order.Uint16(data[2:]) != 42 {
		return nil, fmt.Errorf("bad TIFF magic")
	}

	ifdOffset := order.Uint32(data[4:])
	fields, err := readIFD(data, ifdOffset, order)
	if err != nil {
		return nil, err
	}

	width := int(field(fields, TagType_ImageWidth).first(0))
	height := int(field(fields, TagType_ImageLength).first(0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d", width, height)
	}

	if c := field(fields, TagType_Compression).first(1); c != 1 {
		return nil, fmt.Errorf("unsupported compression %d", c)
	}

	spp := int(field(fields, TagType_SamplesPerPixel).first(1))
	bits, err := uniformValue(field(fields, TagType_BitsPerSample).uints(), 8)
	if err != nil {
		return nil, fmt.Errorf("bits per sample: %w", err)
	}
	format, err := uniformValue(field(fields, TagType_SampleFormat).uints(), 1)
	if err != nil {
		return nil, fmt.Errorf("sample format: %w", err)
	}

	sampleBytes := int(bits) / 8
	switch {
	case format == 1 && (bits == 8 || bits == 16 || bits == 32):
	case format == 3 && bits == 32:
	default:
		return nil, fmt.Errorf("unsupported sample layout: format %d, %d bits", format, bits)
	}

	offsets := field(fields, TagType_StripOffsets).uints()
	counts := field(fields, TagType_StripByteCounts).uints()
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("inconsistent strip layout: %d offsets, %d counts", len(offsets), len(counts))
	}

	var raw []byte
	for i := range offsets {
		start, end := int(offsets[i]), int(offsets[i])+int(counts[i])
		if start < 0 || end > len(data) {
			return nil, fmt.Errorf("strip %d outside file bounds", i)
		}
		raw = append(raw, data[start:end]...)
	}

	total := width * height * spp
	if len(raw) < total*sampleBytes {
		return nil, fmt.Errorf("pixel data short: %d bytes, want %d", len(raw), total*sampleBytes)
	}

	samples := make([]float64, total)
	for i := 0; i < total; i++ {
		off := i * sampleBytes
		switch {
		case bits == 8:
			samples[i] = float64(raw[off])
		case bits == 16:
			samples[i] = float64(order.Uint16(raw[off:]))
		case bits == 32 && format == 1:
			samples[i] = float64(order.Uint32(raw[off:]))
		case bits == 32 && format == 3:
			samples[i] = float64(math.Float32frombits(order.Uint32(raw[off:])))
		}
	}

	bands := make([][]float64, spp)
	for b := range bands {
		bands[b] = make([]float64, width*height)
	}

	planar := field(fields, TagType_PlanarConfiguration).first(1)
	switch planar {
	case 1: // chunky: samples interleave per pixel
		for i := 0; i < width*height; i++ {
			for b := 0; b < spp; b++ {
				bands[b][i] = samples[i*spp+b]
			}
		}
	case 2: // planar: one full plane per band
		for b := 0; b < spp; b++ {
			copy(bands[b], samples[b*width*height:(b+1)*width*height])
		}
	default:
		return nil, fmt.Errorf("unsupported planar configuration %d", planar)
	}

	return &Raster{Width: width, Height: height, Bands: bands}, nil
}

func readIFD(data []byte, offset uint32, order binary.ByteOrder) (map[uint16]tiffField, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("IFD offset outside file bounds")
	}

	count := int(order.Uint16(data[offset:]))
	base := int(offset) + 2
	if base+count*12+4 > len(data) {
		return nil, fmt.Errorf("IFD truncated")
	}

	fields := make(map[uint16]tiffField, count)
	for i := 0; i < count; i++ {
		entry := data[base+i*12 : base+i*12+12]
		tag := order.Uint16(entry)
		datatype := order.Uint16(entry[2:])
		n := order.Uint32(entry[4:])

		size, ok := typeSizes[datatype]
		if !ok {
			continue
		}

		byteLen := size * n
		var raw []byte
		if byteLen <= 4 {
			raw = entry[8 : 8+byteLen]
		} else {
			valOffset := order.Uint32(entry[8:])
			if int(valOffset)+int(byteLen) > len(data) {
				return nil, fmt.Errorf("tag %d value outside file bounds", tag)
			}
			raw = data[valOffset : valOffset+byteLen]
		}

		fields[tag] = tiffField{datatype: datatype, count: n, raw: raw, order: order}
	}

	return fields, nil
}

func field(fields map[uint16]tiffField, tag uint16) tiffField {
	return fields[tag]
}

// uniformValue collapses a per-band tag to a single value, requiring all
// bands to agree.
func uniformValue(vs []uint32, fallback uint32) (uint32, error) {
	if len(vs) == 0 {
		return fallback, nil
	}
	for _, v := range vs[1:] {
		if v != vs[0] {
			return 0, fmt.Errorf("per-band values differ: %v", vs)
		}
	}
	return vs[0], nil
}

// fromImage converts an x/image decode result into bands. Gray images yield
// one band; everything else is split into R, G, B.
func fromImage(img image.Image) *Raster {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	switch m := img.(type) {
	case *image.Gray:
		band := make([]float64, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				band[y*width+x] = float64(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return &Raster{Width: width, Height: height, Bands: [][]float64{band}}
	case *image.Gray16:
		band := make([]float64, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				band[y*width+x] = float64(m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return &Raster{Width: width, Height: height, Bands: [][]float64{band}}
	}

	r := make([]float64, width*height)
	g := make([]float64, width*height)
	bl := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pr, pg, pb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*width + x
			r[i] = float64(pr >> 8)
			g[i] = float64(pg >> 8)
			bl[i] = float64(pb >> 8)
		}
	}
	return &Raster{Width: width, Height: height, Bands: [][]float64{r, g, bl}}
}
