// Package zoning partitions a city's customers into delivery zones. Four
// strategies share one output contract; a balancing post-pass evens the
// zone sizes afterwards.
package zoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/geo"
)

// Input is the common strategy input: one city's customers and its depot.
type Input struct {
	City      string
	Depot     domain.Depot
	Customers []domain.Customer
}

// Strategy assigns every (assignable) customer of the input to a zone.
type Strategy interface {
	Name() string
	Assign(ctx context.Context, in Input) (domain.ZoningResult, error)
}

// MintZoneID builds a zone id from the depot city code and a 1-based
// ordinal, e.g. JED001.
func MintZoneID(depotCode string, ordinal int) string {
	code := strings.ToUpper(strings.TrimSpace(depotCode))
	if len(code) > 3 {
		code = code[:3]
	}
	return fmt.Sprintf("%s%03d", code, ordinal)
}

func point(c domain.Customer) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func depotPoint(d domain.Depot) orb.Point {
	return orb.Point{d.Lon, d.Lat}
}

// centroid returns the coordinate mean of the points. Callers guarantee a
// non-empty slice.
func centroid(points []orb.Point) orb.Point {
	var sumLon, sumLat float64
	for _, p := range points {
		sumLon += p[0]
		sumLat += p[1]
	}
	n := float64(len(points))
	return orb.Point{sumLon / n, sumLat / n}
}

// hullPolygon builds a zone boundary as the convex hull of member points,
// reported as closed (lat, lon) vertex pairs. Fewer than three distinct
// points yield no polygon.
func hullPolygon(zoneID string, points []orb.Point) (domain.ZonePolygon, bool) {
	ring := geo.ConvexHull(points)
	if len(ring) < 4 { // closed triangle minimum
		return domain.ZonePolygon{}, false
	}
	return domain.ZonePolygon{ZoneID: zoneID, Vertices: ringToLatLon(ring)}, true
}

func ringToLatLon(ring orb.Ring) [][2]float64 {
	out := make([][2]float64, len(ring))
	for i, p := range ring {
		out[i] = [2]float64{p[1], p[0]}
	}
	return out
}

func latLonToRing(vertices [][2]float64) orb.Ring {
	ring := make(orb.Ring, len(vertices))
	for i, v := range vertices {
		ring[i] = orb.Point{v[1], v[0]}
	}
	return geo.CloseRing(ring)
}

// newResult assembles the shared output contract from ordered zone member
// lists. Counts follow zone order; assignments cover every member exactly
// once.
func newResult(in Input, method string, zoneIDs []string, members map[string][]domain.Customer) domain.ZoningResult {
	res := domain.ZoningResult{
		City:        in.City,
		Method:      method,
		Assignments: make(map[string]string),
		Counts:      make([]domain.ZoneCount, 0, len(zoneIDs)),
		Metadata:    map[string]any{},
	}

	for _, zid := range zoneIDs {
		ms := members[zid]
		res.Counts = append(res.Counts, domain.ZoneCount{ZoneID: zid, Count: len(ms)})
		for _, c := range ms {
			res.Assignments[c.CustomerID] = zid
		}

		pts := make([]orb.Point, len(ms))
		for i, c := range ms {
			pts[i] = point(c)
		}
		if poly, ok := hullPolygon(zid, pts); ok {
			res.Polygons = append(res.Polygons, poly)
		}
	}

	return res
}

func validateInput(in Input) error {
	if len(in.Customers) == 0 {
		return fmt.Errorf("zoning: no customers: %w", domain.ErrNotFound)
	}
	for _, c := range in.Customers {
		if !c.ValidCoordinates() {
			return fmt.Errorf("zoning: customer %s has invalid coordinates: %w",
				c.CustomerID, domain.ErrInvalidInput)
		}
	}
	return nil
}
