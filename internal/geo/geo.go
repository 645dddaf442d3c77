// Package geo holds the pure geographic primitives used by the zoning
// strategies and the matrix fallback: haversine distance, bearings, an
// equirectangular projection onto a local Cartesian plane, and convex hulls.
// Points follow the orb convention: Point{lon, lat}.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadiusKm is the mean earth radius used for haversine distances.
	EarthRadiusKm = 6371.0

	// KmPerDegree is the surface length of one degree of latitude.
	KmPerDegree = 111.32
)

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b orb.Point) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := (b[1] - a[1]) * math.Pi / 180
	dLon := (b[0] - a[0]) * math.Pi / 180

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(s)))
}

// BearingDeg returns the initial bearing from one point to another,
// normalized to [0, 360) with 0 = north, 90 = east.
func BearingDeg(from, to orb.Point) float64 {
	lat1 := from[1] * math.Pi / 180
	lat2 := to[1] * math.Pi / 180
	dLon := (to[0] - from[0]) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DestinationPoint returns the point reached from origin by travelling
// distKm along the given bearing, using the same local-plane approximation
// as Projector. Accurate near the origin, which is all the sector polygons
// need.
func DestinationPoint(origin orb.Point, bearingDeg, distKm float64) orb.Point {
	rad := bearingDeg * math.Pi / 180
	dy := distKm * math.Cos(rad)
	dx := distKm * math.Sin(rad)

	lat := origin[1] + dy/KmPerDegree
	lon := origin[0] + dx/(KmPerDegree*math.Cos(origin[1]*math.Pi/180))
	return orb.Point{lon, lat}
}

// Projector maps (lon, lat) onto a local Cartesian plane in km centered on
// its origin. One degree of latitude maps to 111.32 km; one degree of
// longitude is scaled by the cosine of the origin latitude. Euclidean math
// is metric-preserving near the origin; never do Euclidean math on raw
// degrees.
type Projector struct {
	origin   orb.Point
	lonScale float64
}

func NewProjector(origin orb.Point) Projector {
	return Projector{
		origin:   origin,
		lonScale: KmPerDegree * math.Cos(origin[1]*math.Pi/180),
	}
}

// Project returns the planar (x, y) position of p in km.
func (pr Projector) Project(p orb.Point) orb.Point {
	return orb.Point{
		(p[0] - pr.origin[0]) * pr.lonScale,
		(p[1] - pr.origin[1]) * KmPerDegree,
	}
}

// Unproject maps a planar km position back to (lon, lat).
func (pr Projector) Unproject(p orb.Point) orb.Point {
	return orb.Point{
		pr.origin[0] + p[0]/pr.lonScale,
		pr.origin[1] + p[1]/KmPerDegree,
	}
}
