package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidLatitudeForBuffer is returned when the buffer center is too close
// to a pole for the cosine-latitude longitude correction to stay bounded.
var ErrInvalidLatitudeForBuffer = errors.New("latitude too close to pole for buffer")

// maxBufferLatitude bounds the equirectangular approximation; beyond it the
// 1/cos(lat) term blows up.
const maxBufferLatitude = 89.9

// kmPerDegree is the approximate length of one degree of latitude.
const kmPerDegree = 111.0

// BoundingBox is a square area of interest in decimal degrees, centered on a
// project location. It is recomputed per acquisition call and never persisted.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Validate checks the box edges are ordered and inside geographic range.
func (b BoundingBox) Validate() error {
	if b.South >= b.North {
		return fmt.Errorf("south (%f) must be less than north (%f)", b.South, b.North)
	}
	if b.West >= b.East {
		return fmt.Errorf("west (%f) must be less than east (%f)", b.West, b.East)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: south=%f, north=%f", b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]: west=%f, east=%f", b.West, b.East)
	}
	return nil
}

// Contains reports whether the point lies strictly inside the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat > b.South && p.Lat < b.North && p.Lon > b.West && p.Lon < b.East
}

// Buffer builds a bounding box of radiusKm half-width around center using the
// equirectangular approximation: one degree of latitude is ~111 km and one
// degree of longitude is ~111*cos(lat) km. Cheap, distorted near the poles,
// fine at project scale.
func Buffer(center Point, radiusKm float64) (BoundingBox, error) {
	if math.Abs(center.Lat) >= maxBufferLatitude {
		return BoundingBox{}, fmt.Errorf("%w: %f", ErrInvalidLatitudeForBuffer, center.Lat)
	}
	if radiusKm <= 0 {
		return BoundingBox{}, fmt.Errorf("buffer radius must be positive, got %f", radiusKm)
	}

	latBuffer := radiusKm / kmPerDegree
	lonBuffer := radiusKm / (kmPerDegree * math.Cos(center.Lat*math.Pi/180))

	return BoundingBox{
		West:  center.Lon - lonBuffer,
		South: center.Lat - latBuffer,
		East:  center.Lon + lonBuffer,
		North: center.Lat + latBuffer,
	}, nil
}
