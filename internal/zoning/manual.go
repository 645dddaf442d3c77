package zoning

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/geo"
)

// Manual assigns customers to caller-supplied polygons by ray-casting
// containment. A point inside several rings goes to the first ring by input
// order; the overlap is reported in metadata. Customers outside every ring
// stay out of the assignments and are listed as unassigned.
type Manual struct {
	// Polygons are (zone_id, ring) pairs with (lat, lon) vertices. Empty
	// zone ids are minted from the depot code by input order.
	Polygons []domain.ZonePolygon
}

func (Manual) Name() string { return "manual" }

// overlapRecord reports one customer contained by more than one ring.
type overlapRecord struct {
	CustomerID string   `json:"customer_id"`
	Assigned   string   `json:"assigned"`
	AlsoIn     []string `json:"also_in"`
}

func (s Manual) Assign(_ context.Context, in Input) (domain.ZoningResult, error) {
	if len(s.Polygons) == 0 {
		return domain.ZoningResult{}, fmt.Errorf(
			"manual zoning: at least one polygon required: %w", domain.ErrInvalidInput)
	}
	if err := validateInput(in); err != nil {
		return domain.ZoningResult{}, err
	}

	zoneIDs := make([]string, len(s.Polygons))
	rings := make([]orb.Ring, len(s.Polygons))
	usedIDs := make(map[string]int, len(s.Polygons))
	for i, poly := range s.Polygons {
		if len(distinctVertices(poly.Vertices)) < 3 {
			return domain.ZoningResult{}, fmt.Errorf(
				"manual zoning: polygon %d needs at least 3 distinct vertices: %w",
				i+1, domain.ErrInvalidInput)
		}
		zoneIDs[i] = poly.ZoneID
		if zoneIDs[i] == "" {
			zoneIDs[i] = MintZoneID(in.Depot.Code, i+1)
		}
		if prev, dup := usedIDs[zoneIDs[i]]; dup {
			return domain.ZoningResult{}, fmt.Errorf(
				"manual zoning: zone id %q used by polygons %d and %d: %w",
				zoneIDs[i], prev, i+1, domain.ErrInvalidInput)
		}
		usedIDs[zoneIDs[i]] = i + 1
		rings[i] = latLonToRing(poly.Vertices)
	}

	members := make(map[string][]domain.Customer)
	var overlaps []overlapRecord
	var unassigned []string

	for _, c := range in.Customers {
		var containing []int
		for i, ring := range rings {
			if geo.RingContains(ring, point(c)) {
				containing = append(containing, i)
			}
		}

		if len(containing) == 0 {
			unassigned = append(unassigned, c.CustomerID)
			continue
		}

		first := zoneIDs[containing[0]]
		members[first] = append(members[first], c)

		if len(containing) > 1 {
			also := make([]string, 0, len(containing)-1)
			for _, i := range containing[1:] {
				also = append(also, zoneIDs[i])
			}
			overlaps = append(overlaps, overlapRecord{
				CustomerID: c.CustomerID,
				Assigned:   first,
				AlsoIn:     also,
			})
		}
	}

	res := newResult(in, s.Name(), zoneIDs, members)

	// Report the supplied rings rather than member hulls.
	res.Polygons = res.Polygons[:0]
	for i, zid := range zoneIDs {
		res.Polygons = append(res.Polygons, domain.ZonePolygon{
			ZoneID:   zid,
			Vertices: ringToLatLon(rings[i]),
		})
	}

	res.Metadata["overlaps"] = overlaps
	res.Metadata["unassigned"] = unassigned

	return res, nil
}

func distinctVertices(vertices [][2]float64) [][2]float64 {
	seen := map[[2]float64]struct{}{}
	out := make([][2]float64, 0, len(vertices))
	for _, v := range vertices {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
