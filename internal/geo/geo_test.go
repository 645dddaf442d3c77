package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKm(t *testing.T) {
	jeddah := orb.Point{39.1925, 21.4858}

	assert.Zero(t, HaversineKm(jeddah, jeddah))

	// One degree of latitude is ~111.19 km on a 6371 km sphere.
	north := orb.Point{39.1925, 22.4858}
	d := HaversineKm(jeddah, north)
	assert.InDelta(t, 111.19, d, 0.2)

	// Symmetric.
	assert.InDelta(t, d, HaversineKm(north, jeddah), 1e-9)
}

func TestBearingDeg(t *testing.T) {
	origin := orb.Point{39.0, 21.0}

	assert.InDelta(t, 0, BearingDeg(origin, orb.Point{39.0, 22.0}), 1e-6)
	assert.InDelta(t, 180, BearingDeg(origin, orb.Point{39.0, 20.0}), 1e-6)

	east := BearingDeg(origin, orb.Point{40.0, 21.0})
	assert.InDelta(t, 90, east, 0.5)

	west := BearingDeg(origin, orb.Point{38.0, 21.0})
	assert.InDelta(t, 270, west, 0.5)
}

func TestDestinationPointRoundTrip(t *testing.T) {
	origin := orb.Point{39.1925, 21.4858}

	for _, bearing := range []float64{0, 45, 133, 270} {
		p := DestinationPoint(origin, bearing, 10)
		assert.InDelta(t, 10, HaversineKm(origin, p), 0.1, "bearing %v", bearing)
		assert.InDelta(t, bearing, BearingDeg(origin, p), 0.5, "bearing %v", bearing)
	}
}

func TestProjectorRoundTrip(t *testing.T) {
	pr := NewProjector(orb.Point{39.1925, 21.4858})

	p := orb.Point{39.25, 21.40}
	planarPt := pr.Project(p)
	back := pr.Unproject(planarPt)

	assert.InDelta(t, p[0], back[0], 1e-9)
	assert.InDelta(t, p[1], back[1], 1e-9)

	assert.Zero(t, pr.Project(orb.Point{39.1925, 21.4858}))
}

func TestRingContains(t *testing.T) {
	square := orb.Ring{{39.0, 21.0}, {39.2, 21.0}, {39.2, 21.2}, {39.0, 21.2}}

	assert.True(t, RingContains(square, orb.Point{39.1, 21.1}))
	assert.False(t, RingContains(square, orb.Point{39.5, 21.1}))
	assert.False(t, RingContains(orb.Ring{{39.0, 21.0}, {39.2, 21.0}}, orb.Point{39.1, 21.0}))
}

func TestConvexHull(t *testing.T) {
	pts := []orb.Point{
		{39.0, 21.0}, {39.2, 21.0}, {39.2, 21.2}, {39.0, 21.2},
		{39.1, 21.1}, // interior
	}

	hull := ConvexHull(pts)
	require.NotEmpty(t, hull)
	assert.Equal(t, hull[0], hull[len(hull)-1], "ring must be closed")

	// Four corners plus closure.
	assert.Len(t, hull, 5)
	for _, interior := range []orb.Point{{39.1, 21.1}} {
		assert.True(t, RingContains(hull, interior))
	}
}

func TestConvexHullDegenerate(t *testing.T) {
	assert.Nil(t, ConvexHull(nil))

	one := ConvexHull([]orb.Point{{39.0, 21.0}})
	assert.Len(t, one, 1)

	two := ConvexHull([]orb.Point{{39.0, 21.0}, {39.1, 21.0}})
	assert.Equal(t, two[0], two[len(two)-1])
}
