package zoning

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/geo"
)

// DefaultBalanceTolerance is the band half-width used when the caller does
// not supply one.
const DefaultBalanceTolerance = 0.20

// Transfer records one balancing move.
type Transfer struct {
	CustomerID string  `json:"customer_id"`
	FromZone   string  `json:"from_zone"`
	ToZone     string  `json:"to_zone"`
	DistanceKm float64 `json:"distance_km"`
}

// Balance redistributes customers between zones until every count sits in
// the band avg*(1±tolerance), moving one customer at a time from the most
// overfull zone to the most underfull one. The customer chosen is the one
// closest (haversine) to the recipient's centroid, ties broken by ascending
// customer id. Assignments and counts are updated in place; polygons are
// not recomputed. At most one transfer per assigned customer.
func Balance(res *domain.ZoningResult, customers []domain.Customer, depot domain.Depot, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultBalanceTolerance
	}
	if len(res.Counts) == 0 {
		return fmt.Errorf("balance: result has no zones: %w", domain.ErrInvalidInput)
	}

	byID := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		byID[c.CustomerID] = c
	}

	// Zone membership in counts order, members sorted by id for
	// deterministic candidate scans.
	zoneIdx := make(map[string]int, len(res.Counts))
	members := make([][]string, len(res.Counts))
	for i, zc := range res.Counts {
		zoneIdx[zc.ZoneID] = i
	}
	for cid, zid := range res.Assignments {
		i, ok := zoneIdx[zid]
		if !ok {
			return fmt.Errorf("balance: assignment to unknown zone %s: %w", zid, domain.ErrInternal)
		}
		if _, ok := byID[cid]; !ok {
			return fmt.Errorf("balance: assigned customer %s not in dataset: %w", cid, domain.ErrInternal)
		}
		members[i] = append(members[i], cid)
	}
	for i := range members {
		sort.Strings(members[i])
	}

	total := len(res.Assignments)
	countsBefore := make([]domain.ZoneCount, len(res.Counts))
	copy(countsBefore, res.Counts)

	avg := float64(total) / float64(len(res.Counts))
	lower := avg * (1 - tolerance)
	upper := avg * (1 + tolerance)

	transfers := make([]Transfer, 0)
	for len(transfers) < total {
		src := pickZone(members, func(n int) bool { return float64(n) > upper }, true)
		dst := pickZone(members, func(n int) bool { return float64(n) < lower }, false)
		if src < 0 || dst < 0 {
			break
		}

		target := zoneCentroid(members[dst], byID, depot)

		// Closest source member to the recipient centroid; members are
		// id-sorted so the first strict improvement wins ties.
		pick := -1
		bestD := 0.0
		for mi, cid := range members[src] {
			c := byID[cid]
			d := geo.HaversineKm(orb.Point{c.Lon, c.Lat}, target)
			if pick < 0 || d < bestD {
				pick, bestD = mi, d
			}
		}

		moved := members[src][pick]
		members[src] = append(members[src][:pick], members[src][pick+1:]...)
		members[dst] = insertSorted(members[dst], moved)

		res.Assignments[moved] = res.Counts[dst].ZoneID
		res.Counts[src].Count--
		res.Counts[dst].Count++

		transfers = append(transfers, Transfer{
			CustomerID: moved,
			FromZone:   res.Counts[src].ZoneID,
			ToZone:     res.Counts[dst].ZoneID,
			DistanceKm: bestD,
		})
	}

	balanced := true
	for _, zc := range res.Counts {
		if float64(zc.Count) > upper || float64(zc.Count) < lower {
			balanced = false
			break
		}
	}

	countsAfter := make([]domain.ZoneCount, len(res.Counts))
	copy(countsAfter, res.Counts)

	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["counts_before"] = countsBefore
	res.Metadata["counts_after"] = countsAfter
	res.Metadata["transfers"] = transfers
	res.Metadata["tolerance"] = tolerance
	res.Metadata["balanced"] = balanced
	if !balanced {
		res.Metadata["balance_note"] = "insufficient slack to bring every zone into the band"
	}

	return nil
}

// pickZone returns the index of the largest (wantMax) or smallest zone
// whose count satisfies the predicate, ties broken by zone order.
func pickZone(members [][]string, match func(int) bool, wantMax bool) int {
	best := -1
	for i := range members {
		n := len(members[i])
		if !match(n) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		if wantMax && n > len(members[best]) {
			best = i
		}
		if !wantMax && n < len(members[best]) {
			best = i
		}
	}
	return best
}

// zoneCentroid is the coordinate mean of a zone's members, or the depot
// when the zone is empty.
func zoneCentroid(ids []string, byID map[string]domain.Customer, depot domain.Depot) orb.Point {
	if len(ids) == 0 {
		return orb.Point{depot.Lon, depot.Lat}
	}
	pts := make([]orb.Point, len(ids))
	for i, cid := range ids {
		c := byID[cid]
		pts[i] = orb.Point{c.Lon, c.Lat}
	}
	return centroid(pts)
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}
