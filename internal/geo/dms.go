package geo

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedCoordinate is returned when a DMS string does not match the
// degrees°minutes'seconds"hemisphere pattern or a component is non-numeric.
var ErrMalformedCoordinate = errors.New("malformed DMS coordinate")

// dmsPattern matches strings like 4°35'56.57"N
var dmsPattern = regexp.MustCompile(`^(\d+)°(\d+)'([\d.]+)"([NSEW])$`)

// Point is a decimal-degree geographic location for a project.
type Point struct {
	Lat float64
	Lon float64
}

// ParseDMS converts a sexagesimal coordinate string to signed decimal degrees.
// South and west hemispheres negate the magnitude.
func ParseDMS(s string) (float64, error) {
	m := dmsPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, s)
	}

	degrees, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, s)
	}
	minutes, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, s)
	}
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, s)
	}

	decimal := degrees + minutes/60 + seconds/3600
	if m[4] == "S" || m[4] == "W" {
		decimal = -decimal
	}
	return decimal, nil
}

// ParsePoint parses a latitude and longitude DMS pair into a Point.
// The latitude string must use N/S and the longitude string E/W.
func ParsePoint(latDMS, lonDMS string) (Point, error) {
	lat, err := ParseDMS(latDMS)
	if err != nil {
		return Point{}, fmt.Errorf("latitude: %w", err)
	}
	if !strings.ContainsAny(latDMS, "NS") {
		return Point{}, fmt.Errorf("%w: latitude %q must end in N or S", ErrMalformedCoordinate, latDMS)
	}
	lon, err := ParseDMS(lonDMS)
	if err != nil {
		return Point{}, fmt.Errorf("longitude: %w", err)
	}
	if !strings.ContainsAny(lonDMS, "EW") {
		return Point{}, fmt.Errorf("%w: longitude %q must end in E or W", ErrMalformedCoordinate, lonDMS)
	}

	if lat < -90 || lat > 90 {
		return Point{}, fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrMalformedCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return Point{}, fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrMalformedCoordinate, lon)
	}

	return Point{Lat: lat, Lon: lon}, nil
}
