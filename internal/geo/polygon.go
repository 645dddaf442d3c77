package geo

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// CloseRing returns ring with the first vertex repeated last. Rings are
// treated as cyclic everywhere; this only normalizes the representation.
func CloseRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	if ring[0] == ring[len(ring)-1] {
		return ring
	}
	out := make(orb.Ring, len(ring)+1)
	copy(out, ring)
	out[len(ring)] = ring[0]
	return out
}

// RingContains reports whether p lies inside the ring (ray casting).
func RingContains(ring orb.Ring, p orb.Point) bool {
	if len(ring) < 3 {
		return false
	}
	return planar.RingContains(CloseRing(ring), p)
}

// ConvexHull computes the convex hull of the given (lon, lat) points via
// the monotone chain, doing the ordering on a local projected plane so
// degree anisotropy cannot flip orientation near the poles. The result is a
// closed ring in (lon, lat); fewer than three distinct points yield a
// degenerate ring of what is available.
func ConvexHull(points []orb.Point) orb.Ring {
	if len(points) == 0 {
		return nil
	}

	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	// Drop duplicates so collinear checks stay stable.
	uniq := pts[:1]
	for _, p := range pts[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}

	if len(uniq) < 3 {
		return CloseRing(orb.Ring(uniq))
	}

	pr := NewProjector(uniq[0])
	proj := make([]orb.Point, len(uniq))
	for i, p := range uniq {
		proj[i] = pr.Project(p)
	}

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	n := len(uniq)
	hull := make([]int, 0, 2*n)

	// Lower hull.
	for i := 0; i < n; i++ {
		for len(hull) >= 2 && cross(proj[hull[len(hull)-2]], proj[hull[len(hull)-1]], proj[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}

	// Upper hull.
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		for len(hull) >= lower && cross(proj[hull[len(hull)-2]], proj[hull[len(hull)-1]], proj[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}

	ring := make(orb.Ring, 0, len(hull))
	for _, idx := range hull[:len(hull)-1] {
		ring = append(ring, uniq[idx])
	}
	return CloseRing(ring)
}
