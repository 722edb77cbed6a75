package attendance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"geoattend/internal/geo"
)

var campus = geo.Coordinate{Lat: 40.0, Lng: -75.0}

// north returns the point d meters due north of c.
func north(c geo.Coordinate, d float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat + d/geo.EarthRadiusMeters*180/math.Pi, Lng: c.Lng}
}

func ptr[T any](v T) *T { return &v }

func TestClassifyGeofence(t *testing.T) {
	fence := &Geofence{Center: campus, MaxRadiusMeters: 100}

	tests := []struct {
		name     string
		location *geo.Coordinate
		want     Status
	}{
		{"at center", ptr(campus), StatusVerified},
		{"inside", ptr(north(campus, 60)), StatusVerified},
		{"just outside", ptr(north(campus, 100.01)), StatusOutOfBounds},
		{"far away", ptr(geo.Coordinate{Lat: 41, Lng: -75}), StatusOutOfBounds},
		{"no location", nil, StatusLocationNotShared},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.location, false, fence))
		})
	}
}

// east returns the point d meters due east of c.
func east(c geo.Coordinate, d float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat, Lng: c.Lng + d/(geo.EarthRadiusMeters*math.Cos(c.Lat*math.Pi/180))*180/math.Pi}
}

func TestClassifyBoundaryIsInclusive(t *testing.T) {
	fence := &Geofence{Center: campus, MaxRadiusMeters: 100}

	for name, p := range map[string]geo.Coordinate{
		"north": north(campus, 100),
		"east":  east(campus, 100),
	} {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, 100, geo.DistanceMeters(p, campus), 1e-3)
			assert.Equal(t, StatusVerified, Classify(&p, false, fence))
		})
	}

	beyond := north(campus, 100.01)
	assert.Equal(t, StatusOutOfBounds, Classify(&beyond, false, fence))
}

func TestClassifyZeroRadius(t *testing.T) {
	fence := &Geofence{Center: campus, MaxRadiusMeters: 0}
	assert.Equal(t, StatusVerified, Classify(ptr(campus), false, fence))
	assert.Equal(t, StatusOutOfBounds, Classify(ptr(north(campus, 0.01)), false, fence))
}

func TestClassifyDeniedAlwaysNotShared(t *testing.T) {
	fences := []*Geofence{
		nil,
		{Center: campus, MaxRadiusMeters: 100},
		{Center: campus, MaxRadiusMeters: 0},
	}
	for _, f := range fences {
		assert.Equal(t, StatusLocationNotShared, Classify(ptr(campus), true, f))
		assert.Equal(t, StatusLocationNotShared, Classify(nil, true, f))
	}
}

func TestClassifyWithoutFenceVerifies(t *testing.T) {
	assert.Equal(t, StatusVerified, Classify(nil, false, nil))
	assert.Equal(t, StatusVerified, Classify(ptr(geo.Coordinate{Lat: -33.9, Lng: 151.2}), false, nil))

	partial := []Sheet{
		{Center: ptr(campus)},
		{MaxRadiusMeters: ptr(50.0)},
	}
	for _, sh := range partial {
		assert.Nil(t, sh.Geofence())
		assert.Equal(t, StatusVerified, Classify(nil, false, sh.Geofence()))
	}
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Verified", StatusVerified.Label())
	assert.Equal(t, "Out of bounds", StatusOutOfBounds.Label())
	assert.Equal(t, "Location not shared", StatusLocationNotShared.Label())
}
