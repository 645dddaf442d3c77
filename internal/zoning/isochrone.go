package zoning

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/ports"
)

// Isochrone partitions customers by depot travel time into rings bounded by
// ascending minute thresholds, with an overflow zone past the last one.
type Isochrone struct {
	// Thresholds are ring boundaries in minutes, strictly ascending.
	Thresholds []float64
	Matrix     ports.MatrixProvider
}

func (Isochrone) Name() string { return "isochrone" }

func (s Isochrone) Assign(ctx context.Context, in Input) (domain.ZoningResult, error) {
	if len(s.Thresholds) == 0 {
		return domain.ZoningResult{}, fmt.Errorf(
			"isochrone zoning: at least one threshold required: %w", domain.ErrInvalidInput)
	}
	prev := 0.0
	for _, t := range s.Thresholds {
		if t <= prev {
			return domain.ZoningResult{}, fmt.Errorf(
				"isochrone zoning: thresholds must be positive and strictly ascending: %w",
				domain.ErrInvalidInput)
		}
		prev = t
	}
	if s.Matrix == nil {
		return domain.ZoningResult{}, fmt.Errorf(
			"isochrone zoning: matrix provider required: %w", domain.ErrInternal)
	}
	if err := validateInput(in); err != nil {
		return domain.ZoningResult{}, err
	}

	// Depot first so its matrix row carries depot-to-customer durations.
	pts := make([]orb.Point, 0, len(in.Customers)+1)
	pts = append(pts, depotPoint(in.Depot))
	for _, c := range in.Customers {
		pts = append(pts, point(c))
	}

	m, err := s.Matrix.Matrix(ctx, pts)
	if err != nil {
		return domain.ZoningResult{}, fmt.Errorf("isochrone zoning: matrix: %w", err)
	}

	// One zone per threshold plus the overflow zone.
	zoneIDs := make([]string, len(s.Thresholds)+1)
	for i := range zoneIDs {
		zoneIDs[i] = MintZoneID(in.Depot.Code, i+1)
	}
	overflow := zoneIDs[len(zoneIDs)-1]

	members := make(map[string][]domain.Customer)
	for j, c := range in.Customers {
		tau := m.DurationsMin[0][j+1]
		zid := overflow
		for i, t := range s.Thresholds {
			if t >= tau {
				zid = zoneIDs[i]
				break
			}
		}
		members[zid] = append(members[zid], c)
	}

	res := newResult(in, s.Name(), zoneIDs, members)
	res.Metadata["thresholds_min"] = s.Thresholds
	res.Metadata["overflow_zone"] = overflow
	if m.Degraded {
		res.Metadata["degraded"] = true
	}

	return res, nil
}
