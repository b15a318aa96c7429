package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDMS(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "north positive", input: `4°35'56.57"N`, want: 4 + 35.0/60 + 56.57/3600},
		{name: "south negative", input: `4°35'56.57"S`, want: -(4 + 35.0/60 + 56.57/3600)},
		{name: "east positive", input: `74°04'51.30"E`, want: 74 + 4.0/60 + 51.30/3600},
		{name: "west negative", input: `74°04'51.30"W`, want: -(74 + 4.0/60 + 51.30/3600)},
		{name: "surrounding whitespace", input: ` 10°0'0"N `, want: 10},
		{name: "missing hemisphere", input: `4°35'56.57"`, wantErr: true},
		{name: "lowercase hemisphere", input: `4°35'56.57"n`, wantErr: true},
		{name: "decimal only", input: `4.5989`, wantErr: true},
		{name: "empty", input: ``, wantErr: true},
		{name: "double dot seconds", input: `4°35'5.6.57"N`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDMS(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedCoordinate)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseDMSSignRoundTrip(t *testing.T) {
	north, err := ParseDMS(`12°30'15"N`)
	require.NoError(t, err)
	south, err := ParseDMS(`12°30'15"S`)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, north, 0.0)
	assert.Equal(t, -north, south)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(`4°35'56.57"N`, `74°04'51.30"W`)
	require.NoError(t, err)
	assert.InDelta(t, 4.599, p.Lat, 0.001)
	assert.InDelta(t, -74.081, p.Lon, 0.001)

	// latitude must use N/S
	_, err = ParsePoint(`4°35'56.57"E`, `74°04'51.30"W`)
	assert.ErrorIs(t, err, ErrMalformedCoordinate)

	// longitude must use E/W
	_, err = ParsePoint(`4°35'56.57"N`, `74°04'51.30"S`)
	assert.ErrorIs(t, err, ErrMalformedCoordinate)
}

func TestBufferContainsCenter(t *testing.T) {
	center := Point{Lat: 4.6, Lon: -74.08}
	box, err := Buffer(center, 5)
	require.NoError(t, err)

	require.NoError(t, box.Validate())
	assert.True(t, box.Contains(center))
}

func TestBufferLongitudeWidthGrowsWithLatitude(t *testing.T) {
	equatorBox, err := Buffer(Point{Lat: 0, Lon: 0}, 5)
	require.NoError(t, err)
	highBox, err := Buffer(Point{Lat: 60, Lon: 0}, 5)
	require.NoError(t, err)

	equatorWidth := equatorBox.East - equatorBox.West
	highWidth := highBox.East - highBox.West

	// At 60°, cos(lat) = 0.5, so the angular width doubles.
	assert.InDelta(t, equatorWidth/math.Cos(60*math.Pi/180), highWidth, 1e-9)
	assert.Greater(t, highWidth, equatorWidth)

	// Latitude half-width is independent of latitude.
	assert.InDelta(t, equatorBox.North-equatorBox.South, highBox.North-highBox.South, 1e-9)
}

func TestBufferNearPole(t *testing.T) {
	_, err := Buffer(Point{Lat: 89.95, Lon: 10}, 5)
	assert.ErrorIs(t, err, ErrInvalidLatitudeForBuffer)

	_, err = Buffer(Point{Lat: -89.91, Lon: 10}, 5)
	assert.ErrorIs(t, err, ErrInvalidLatitudeForBuffer)

	_, err = Buffer(Point{Lat: 89.8, Lon: 10}, 5)
	assert.NoError(t, err)
}
