package zoning

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/geo"
	"zone-routing-service/internal/ports"
)

var testDepot = domain.Depot{City: "JEDDAH", Code: "JED", Lat: 21.4858, Lon: 39.1925}

// customerAt places a customer at the given bearing and distance from the
// test depot.
func customerAt(id string, bearingDeg, distKm float64) domain.Customer {
	p := geo.DestinationPoint(orb.Point{testDepot.Lon, testDepot.Lat}, bearingDeg, distKm)
	return domain.Customer{CustomerID: id, City: testDepot.City, Lat: p[1], Lon: p[0]}
}

func TestMintZoneID(t *testing.T) {
	assert.Equal(t, "JED001", MintZoneID("JED", 1))
	assert.Equal(t, "JED012", MintZoneID("jed", 12))
	assert.Equal(t, "RUH003", MintZoneID(" RUHX ", 3))
}

func TestPolarBearingLaw(t *testing.T) {
	// With offset 0 and k sectors, bearing theta lands in sector
	// floor(theta*k/360).
	const k = 4
	customers := []domain.Customer{
		customerAt("C1", 45, 5),
		customerAt("C2", 135, 5),
		customerAt("C3", 225, 5),
		customerAt("C4", 315, 5),
		customerAt("C5", 10, 8),
	}

	res, err := Polar{TargetZones: k}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	depot := orb.Point{testDepot.Lon, testDepot.Lat}
	for _, c := range customers {
		theta := geo.BearingDeg(depot, orb.Point{c.Lon, c.Lat})
		want := MintZoneID("JED", int(theta*k/360)+1)
		assert.Equal(t, want, res.Assignments[c.CustomerID], "customer %s bearing %.1f", c.CustomerID, theta)
	}

	// All sectors appear in counts, in order, and sum to the customer count.
	require.Len(t, res.Counts, k)
	total := 0
	for i, zc := range res.Counts {
		assert.Equal(t, MintZoneID("JED", i+1), zc.ZoneID)
		total += zc.Count
	}
	assert.Equal(t, len(customers), total)
}

func TestPolarRotationOffset(t *testing.T) {
	customers := []domain.Customer{customerAt("C1", 10, 5)}

	res, err := Polar{TargetZones: 4, RotationOffset: 45}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	// Bearing 10 relative to offset 45 is 325, sector 3 (zero-based).
	assert.Equal(t, "JED004", res.Assignments["C1"])
}

func TestPolarSingleZoneUsesHull(t *testing.T) {
	customers := []domain.Customer{
		customerAt("C1", 0, 5),
		customerAt("C2", 120, 5),
		customerAt("C3", 240, 5),
	}

	res, err := Polar{TargetZones: 1}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	require.Len(t, res.Counts, 1)
	assert.Equal(t, 3, res.Counts[0].Count)
	require.Len(t, res.Polygons, 1)
	// Closed triangle hull.
	assert.Len(t, res.Polygons[0].Vertices, 4)
	assert.Equal(t, res.Polygons[0].Vertices[0], res.Polygons[0].Vertices[3])
}

func TestPolarRejectsBadTargetZones(t *testing.T) {
	_, err := Polar{TargetZones: 0}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot,
		Customers: []domain.Customer{customerAt("C1", 0, 1)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPolarIdempotent(t *testing.T) {
	customers := []domain.Customer{
		customerAt("C1", 30, 4), customerAt("C2", 200, 6), customerAt("C3", 310, 9),
	}
	in := Input{City: testDepot.City, Depot: testDepot, Customers: customers}

	first, err := Polar{TargetZones: 3}.Assign(context.Background(), in)
	require.NoError(t, err)
	second, err := Polar{TargetZones: 3}.Assign(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first.Assignments, second.Assignments)
}

// stubMatrix serves a fixed matrix regardless of the requested points.
type stubMatrix struct {
	m ports.Matrices
}

func (s stubMatrix) Matrix(context.Context, []orb.Point) (ports.Matrices, error) {
	return s.m, nil
}

func (s stubMatrix) Probe(context.Context) bool { return true }

func TestIsochroneRings(t *testing.T) {
	customers := []domain.Customer{
		customerAt("NEAR", 0, 3),
		customerAt("MID", 90, 8),
		customerAt("FAR", 180, 30),
	}

	// Depot row: depot, NEAR=5min, MID=12min, FAR=40min.
	durations := [][]float64{
		{0, 5, 12, 40},
		{5, 0, 0, 0},
		{12, 0, 0, 0},
		{40, 0, 0, 0},
	}

	res, err := Isochrone{
		Thresholds: []float64{10, 20},
		Matrix:     stubMatrix{m: ports.Matrices{DurationsMin: durations}},
	}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	assert.Equal(t, "JED001", res.Assignments["NEAR"])
	assert.Equal(t, "JED002", res.Assignments["MID"])
	assert.Equal(t, "JED003", res.Assignments["FAR"])
	assert.Equal(t, "JED003", res.Metadata["overflow_zone"])
	require.Len(t, res.Counts, 3)
}

func TestIsochroneBoundaryIsInclusive(t *testing.T) {
	customers := []domain.Customer{customerAt("EDGE", 0, 5)}
	durations := [][]float64{{0, 10}, {10, 0}}

	res, err := Isochrone{
		Thresholds: []float64{10, 20},
		Matrix:     stubMatrix{m: ports.Matrices{DurationsMin: durations}},
	}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	// tau == t1 selects the first ring.
	assert.Equal(t, "JED001", res.Assignments["EDGE"])
}

func TestIsochroneRejectsBadThresholds(t *testing.T) {
	in := Input{
		City: testDepot.City, Depot: testDepot,
		Customers: []domain.Customer{customerAt("C1", 0, 1)},
	}
	stub := stubMatrix{m: ports.Matrices{DurationsMin: [][]float64{{0, 1}, {1, 0}}}}

	for _, thresholds := range [][]float64{nil, {10, 10}, {20, 10}, {-5, 10}} {
		_, err := Isochrone{Thresholds: thresholds, Matrix: stub}.Assign(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "thresholds %v", thresholds)
	}
}

func squareAround(lat, lon, halfDeg float64) [][2]float64 {
	return [][2]float64{
		{lat - halfDeg, lon - halfDeg},
		{lat - halfDeg, lon + halfDeg},
		{lat + halfDeg, lon + halfDeg},
		{lat + halfDeg, lon - halfDeg},
		{lat - halfDeg, lon - halfDeg},
	}
}

func TestManualAssignsInsideFirstRing(t *testing.T) {
	// Four customers in a tight cluster inside the ring, six spread far out.
	customers := []domain.Customer{
		customerAt("IN1", 0, 1), customerAt("IN2", 90, 1),
		customerAt("IN3", 180, 1), customerAt("IN4", 270, 1),
		customerAt("OUT1", 0, 50), customerAt("OUT2", 60, 50),
		customerAt("OUT3", 120, 50), customerAt("OUT4", 180, 50),
		customerAt("OUT5", 240, 50), customerAt("OUT6", 300, 50),
	}

	res, err := Manual{
		Polygons: []domain.ZonePolygon{
			{ZoneID: "CENTER", Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.05)},
		},
	}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	assert.Len(t, res.Assignments, 4)
	for _, id := range []string{"IN1", "IN2", "IN3", "IN4"} {
		assert.Equal(t, "CENTER", res.Assignments[id])
	}

	unassigned := res.Metadata["unassigned"].([]string)
	assert.Len(t, unassigned, 6)
	for _, id := range unassigned {
		_, assigned := res.Assignments[id]
		assert.False(t, assigned)
	}
}

func TestManualOverlapFirstRingWins(t *testing.T) {
	customers := []domain.Customer{customerAt("C1", 0, 1)}

	res, err := Manual{
		Polygons: []domain.ZonePolygon{
			{Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.1)},
			{Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.2)},
		},
	}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	// Minted ids by input order; the first containing ring wins.
	assert.Equal(t, "JED001", res.Assignments["C1"])

	overlaps := res.Metadata["overlaps"].([]overlapRecord)
	require.Len(t, overlaps, 1)
	assert.Equal(t, "C1", overlaps[0].CustomerID)
	assert.Equal(t, "JED001", overlaps[0].Assigned)
	assert.Equal(t, []string{"JED002"}, overlaps[0].AlsoIn)
}

func TestManualRejectsDegeneratePolygon(t *testing.T) {
	_, err := Manual{
		Polygons: []domain.ZonePolygon{
			{Vertices: [][2]float64{{21, 39}, {22, 39}, {21, 39}}},
		},
	}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot,
		Customers: []domain.Customer{customerAt("C1", 0, 1)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestManualRejectsDuplicateZoneIDs(t *testing.T) {
	// A repeated id would double its counts entry and break the
	// sum(counts) <= customers law.
	in := Input{
		City: testDepot.City, Depot: testDepot,
		Customers: []domain.Customer{customerAt("C1", 0, 1)},
	}

	_, err := Manual{
		Polygons: []domain.ZonePolygon{
			{ZoneID: "Z1", Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.1)},
			{ZoneID: "Z1", Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.2)},
		},
	}.Assign(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// A minted id colliding with a supplied one is the same defect.
	_, err = Manual{
		Polygons: []domain.ZonePolygon{
			{ZoneID: "JED002", Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.1)},
			{Vertices: squareAround(testDepot.Lat, testDepot.Lon, 0.2)},
		},
	}.Assign(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAssignedCustomersAppearExactlyOnce(t *testing.T) {
	customers := make([]domain.Customer, 0, 12)
	for i := 0; i < 12; i++ {
		customers = append(customers, customerAt(
			string(rune('A'+i)), float64(i*30), 2+float64(i%4)))
	}
	in := Input{City: testDepot.City, Depot: testDepot, Customers: customers}

	strategies := []Strategy{
		Polar{TargetZones: 3},
		Cluster{TargetZones: 3},
	}
	for _, st := range strategies {
		res, err := st.Assign(context.Background(), in)
		require.NoError(t, err, st.Name())

		// sum(counts) equals assignments; every assignment points at a
		// minted zone.
		zones := map[string]bool{}
		total := 0
		for _, zc := range res.Counts {
			zones[zc.ZoneID] = true
			total += zc.Count
		}
		assert.Equal(t, len(res.Assignments), total, st.Name())
		for cid, zid := range res.Assignments {
			assert.True(t, zones[zid], "%s: customer %s in unknown zone %s", st.Name(), cid, zid)
		}
	}
}

func TestHullPolygonClosed(t *testing.T) {
	pts := []orb.Point{{39.1, 21.4}, {39.2, 21.4}, {39.2, 21.5}, {39.1, 21.5}}
	poly, ok := hullPolygon("Z", pts)
	require.True(t, ok)
	assert.Equal(t, poly.Vertices[0], poly.Vertices[len(poly.Vertices)-1])
	for _, v := range poly.Vertices {
		assert.False(t, math.IsNaN(v[0]) || math.IsNaN(v[1]))
	}
}
