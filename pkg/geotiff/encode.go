// Package geotiff reads and writes the uncompressed strip-oriented GeoTIFF
// rasters the acquisition pipeline produces. Only the minimal tag set is
// defined here; a full TIFF dependency is not worth it for a handful of tags.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"sort"
)

const (
	DataType_Byte     = 1
	DataType_ASCII    = 2
	DataType_Short    = 3
	DataType_Long     = 4
	DataType_Rational = 5
	DataType_Float    = 11
	DataType_Double   = 12

	TagType_ImageWidth                = 256
	TagType_ImageLength               = 257
	TagType_BitsPerSample             = 258
	TagType_Compression               = 259
	TagType_PhotometricInterpretation = 262
	TagType_StripOffsets              = 273
	TagType_SamplesPerPixel           = 277
	TagType_RowsPerStrip              = 278
	TagType_StripByteCounts           = 279
	TagType_XResolution               = 282
	TagType_YResolution               = 283
	TagType_PlanarConfiguration       = 284
	TagType_ResolutionUnit            = 296
	TagType_SampleFormat              = 339

	// GeoTIFF tags
	TagType_ModelPixelScaleTag = 33550
	TagType_ModelTiepointTag   = 33922
	TagType_GeoKeyDirectoryTag = 34735
	TagType_GeoDoubleParamsTag = 34736
	TagType_GeoAsciiParamsTag  = 34737
)

var enc = binary.LittleEndian

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

type byTag []ifdEntry

func (d byTag) Len() int           { return len(d) }
func (d byTag) Less(i, j int) bool { return d[i].tag < d[j].tag }
func (d byTag) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

// Encode writes m to w as an uncompressed 8-bit RGBA TIFF, a single strip.
// extraTags maps TagID to value; supported value types are []uint16 (SHORT),
// []float64 (DOUBLE), and string (ASCII).
func Encode(w io.Writer, m image.Image, extraTags map[uint16]interface{}) error {
	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pixelData := new(bytes.Buffer)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := m.At(x, y).RGBA()
			pixelData.WriteByte(uint8(r >> 8))
			pixelData.WriteByte(uint8(g >> 8))
			pixelData.WriteByte(uint8(b >> 8))
			pixelData.WriteByte(uint8(a >> 8))
		}
	}

	entries, err := baseEntries(width, height, 4, 8, 1, extraTags)
	if err != nil {
		return err
	}
	entries = append(entries,
		ifdEntry{TagType_PhotometricInterpretation, DataType_Short, 1, enc16(2)}) // RGB

	return writeTIFF(w, entries, pixelData.Bytes())
}

// EncodeBands writes a multi-band 16-bit raster as an uncompressed
// pixel-interleaved TIFF. All bands must share the raster dimensions;
// photometric interpretation is min-is-black.
func EncodeBands(w io.Writer, bands [][]uint16, width, height int, extraTags map[uint16]interface{}) error {
	if len(bands) == 0 {
		return fmt.Errorf("no bands to encode")
	}
	for i, b := range bands {
		if len(b) != width*height {
			return fmt.Errorf("band %d has %d samples, want %d", i+1, len(b), width*height)
		}
	}

	spp := len(bands)
	pixelData := make([]byte, 0, width*height*spp*2)
	for i := 0; i < width*height; i++ {
		for _, b := range bands {
			pixelData = append(pixelData, byte(b[i]), byte(b[i]>>8))
		}
	}

	entries, err := baseEntries(width, height, spp, 16, 1, extraTags)
	if err != nil {
		return err
	}
	entries = append(entries,
		ifdEntry{TagType_PhotometricInterpretation, DataType_Short, 1, enc16(1)}) // BlackIsZero

	return writeTIFF(w, entries, pixelData)
}

// baseEntries builds the tag set shared by both encoders: a single full-height
// strip, no compression, uniform bit depth and sample format across bands.
func baseEntries(width, height, spp, bits int, sampleFormat uint16, extraTags map[uint16]interface{}) ([]ifdEntry, error) {
	bitsPerSample := make([]uint16, spp)
	formats := make([]uint16, spp)
	for i := range bitsPerSample {
		bitsPerSample[i] = uint16(bits)
		formats[i] = sampleFormat
	}

	entries := []ifdEntry{
		{TagType_ImageWidth, DataType_Long, 1, enc32(uint32(width))},
		{TagType_ImageLength, DataType_Long, 1, enc32(uint32(height))},
		{TagType_BitsPerSample, DataType_Short, uint32(spp), enc16s(bitsPerSample)},
		{TagType_Compression, DataType_Short, 1, enc16(1)},
		{TagType_SamplesPerPixel, DataType_Short, 1, enc16(uint16(spp))},
		{TagType_RowsPerStrip, DataType_Long, 1, enc32(uint32(height))},
		{TagType_PlanarConfiguration, DataType_Short, 1, enc16(1)},
		{TagType_SampleFormat, DataType_Short, uint32(spp), enc16s(formats)},
		{TagType_XResolution, DataType_Rational, 1, encRational(72, 1)},
		{TagType_YResolution, DataType_Rational, 1, encRational(72, 1)},
		{TagType_ResolutionUnit, DataType_Short, 1, enc16(2)},
		// offsets and byte counts are fixed up once the layout is known
		{TagType_StripOffsets, DataType_Long, 1, make([]byte, 4)},
		{TagType_StripByteCounts, DataType_Long, 1, make([]byte, 4)},
	}

	for tag, val := range extraTags {
		switch v := val.(type) {
		case []uint16:
			entries = append(entries, ifdEntry{tag, DataType_Short, uint32(len(v)), enc16s(v)})
		case []float64:
			entries = append(entries, ifdEntry{tag, DataType_Double, uint32(len(v)), encDoubles(v)})
		case string:
			b := append([]byte(v), 0)
			entries = append(entries, ifdEntry{tag, DataType_ASCII, uint32(len(b)), b})
		default:
			return nil, fmt.Errorf("unsupported tag value type for tag %d", tag)
		}
	}

	return entries, nil
}

// writeTIFF lays the file out as header, IFD, overflow value area, pixels.
func writeTIFF(w io.Writer, entries []ifdEntry, pixels []byte) error {
	sort.Sort(byTag(entries))

	// header: little endian, magic 42, first IFD at offset 8
	if _, err := w.Write([]byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00}); err != nil {
		return err
	}

	ifdSize := 2 + 12*len(entries) + 4
	valueDataOffset := 8 + ifdSize

	// Values wider than the 4-byte value field move to the overflow area and
	// the field holds their offset instead.
	var largeData bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.data) > 4 {
			offset := uint32(valueDataOffset + largeData.Len())
			largeData.Write(e.data)
			e.data = enc32(offset)
		}
	}

	pixelsOffset := uint32(valueDataOffset + largeData.Len())
	for i := range entries {
		switch entries[i].tag {
		case TagType_StripOffsets:
			entries[i].data = enc32(pixelsOffset)
		case TagType_StripByteCounts:
			entries[i].data = enc32(uint32(len(pixels)))
		}
	}

	if err := binary.Write(w, enc, uint16(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(w, enc, e.tag); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.datatype); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.count); err != nil {
			return err
		}
		var val [4]byte
		copy(val[:], e.data)
		if _, err := w.Write(val[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, enc, uint32(0)); err != nil {
		return err
	}

	if _, err := largeData.WriteTo(w); err != nil {
		return err
	}
	_, err := w.Write(pixels)
	return err
}

// GeographicTags builds the GeoTIFF tags tying the raster to a WGS84
// (EPSG:4326) bounding box: pixel scale in degrees and a tiepoint anchoring
// pixel (0,0) to the box's northwest corner.
func GeographicTags(west, south, east, north float64, width, height int) map[uint16]interface{} {
	scaleX := (east - west) / float64(width)
	scaleY := (north - south) / float64(height)

	return map[uint16]interface{}{
		TagType_GeoKeyDirectoryTag: []uint16{
			1, 1, 0, 3, // version, revision, minor, key count
			1024, 0, 1, 2, // GTModelTypeGeoKey = geographic
			2048, 0, 1, 4326, // GeographicTypeGeoKey = WGS84
			2054, 0, 1, 9102, // GeogAngularUnitsGeoKey = degree
		},
		TagType_ModelPixelScaleTag: []float64{scaleX, scaleY, 0},
		TagType_ModelTiepointTag:   []float64{0, 0, 0, west, north, 0},
	}
}

// Helpers

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func enc16s(vs []uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[i*2:], v)
	}
	return b
}

func encDoubles(vs []float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func encRational(num, den uint32) []byte {
	b := make([]byte, 8)
	enc.PutUint32(b[:4], num)
	enc.PutUint32(b[4:], den)
	return b
}
