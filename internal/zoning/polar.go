package zoning

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/geo"
)

// Polar partitions customers into equal-width bearing sectors around the
// depot, rotated by an offset.
type Polar struct {
	TargetZones    int
	RotationOffset float64
}

func (Polar) Name() string { return "polar" }

func (p Polar) Assign(_ context.Context, in Input) (domain.ZoningResult, error) {
	if p.TargetZones < 1 {
		return domain.ZoningResult{}, fmt.Errorf(
			"polar zoning: target_zones must be >= 1, got %d: %w",
			p.TargetZones, domain.ErrInvalidInput)
	}
	if err := validateInput(in); err != nil {
		return domain.ZoningResult{}, err
	}

	k := p.TargetZones
	depot := depotPoint(in.Depot)

	zoneIDs := make([]string, k)
	for i := range zoneIDs {
		zoneIDs[i] = MintZoneID(in.Depot.Code, i+1)
	}

	members := make(map[string][]domain.Customer, k)
	maxRadius := make([]float64, k)

	width := 360.0 / float64(k)
	for _, c := range in.Customers {
		sector := 0
		if k > 1 {
			theta := geo.BearingDeg(depot, point(c))
			rel := math.Mod(theta-p.RotationOffset, 360)
			if rel < 0 {
				rel += 360
			}
			sector = int(rel / width)
			if sector >= k { // rel == 360 after float rounding
				sector = k - 1
			}
		}

		zid := zoneIDs[sector]
		members[zid] = append(members[zid], c)
		if d := geo.HaversineKm(depot, point(c)); d > maxRadius[sector] {
			maxRadius[sector] = d
		}
	}

	res := newResult(in, p.Name(), zoneIDs, members)
	res.Metadata["rotation_offset"] = p.RotationOffset
	res.Metadata["sector_width_deg"] = width

	// Sector polygons replace the hulls: depot plus two radial rays at the
	// sector's maximum member radius, arc approximated by the chord. The
	// single-zone case keeps the hull.
	if k > 1 {
		res.Polygons = res.Polygons[:0]
		for i, zid := range zoneIDs {
			if len(members[zid]) == 0 {
				continue
			}
			from := math.Mod(p.RotationOffset+float64(i)*width+360, 360)
			to := math.Mod(p.RotationOffset+float64(i+1)*width+360, 360)
			res.Polygons = append(res.Polygons, sectorPolygon(zid, depot, from, to, maxRadius[i]))
		}
	}

	return res, nil
}

func sectorPolygon(zoneID string, depot orb.Point, fromDeg, toDeg, radiusKm float64) domain.ZonePolygon {
	ring := orb.Ring{
		depot,
		geo.DestinationPoint(depot, fromDeg, radiusKm),
		geo.DestinationPoint(depot, toDeg, radiusKm),
		depot,
	}
	return domain.ZonePolygon{ZoneID: zoneID, Vertices: ringToLatLon(ring)}
}
