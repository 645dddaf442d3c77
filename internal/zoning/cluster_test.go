package zoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zone-routing-service/internal/domain"
)

// triangle places three customers in a tight triangle around a bearing and
// distance from the depot.
func triangle(prefix string, bearingDeg, distKm float64) []domain.Customer {
	return []domain.Customer{
		customerAt(prefix+"1", bearingDeg, distKm),
		customerAt(prefix+"2", bearingDeg+2, distKm+0.3),
		customerAt(prefix+"3", bearingDeg-2, distKm+0.3),
	}
}

func TestClusterSeparatesTightGroups(t *testing.T) {
	var customers []domain.Customer
	customers = append(customers, triangle("A", 0, 10)...)
	customers = append(customers, triangle("B", 120, 10)...)
	customers = append(customers, triangle("C", 240, 10)...)

	res, err := Cluster{TargetZones: 3}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	require.Len(t, res.Counts, 3)
	for _, zc := range res.Counts {
		assert.Equal(t, 3, zc.Count)
	}

	// Triangle members share a zone.
	for _, prefix := range []string{"A", "B", "C"} {
		zone := res.Assignments[prefix+"1"]
		assert.Equal(t, zone, res.Assignments[prefix+"2"], prefix)
		assert.Equal(t, zone, res.Assignments[prefix+"3"], prefix)
	}
}

func TestClusterCentroidsWithoutDepotWeight(t *testing.T) {
	var customers []domain.Customer
	customers = append(customers, triangle("A", 0, 10)...)
	customers = append(customers, triangle("B", 120, 10)...)
	customers = append(customers, triangle("C", 240, 10)...)

	res, err := Cluster{TargetZones: 3, DisableDepotWeight: true}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	centroids := res.Metadata["centroids"].([][2]float64)
	require.Len(t, centroids, 3)

	// Each reported (lat, lon) centroid is the coordinate mean of its
	// cluster's members.
	byZone := map[string][]domain.Customer{}
	for _, c := range customers {
		zid := res.Assignments[c.CustomerID]
		byZone[zid] = append(byZone[zid], c)
	}
	for i, zc := range res.Counts {
		members := byZone[zc.ZoneID]
		require.NotEmpty(t, members)
		var lat, lon float64
		for _, c := range members {
			lat += c.Lat
			lon += c.Lon
		}
		lat /= float64(len(members))
		lon /= float64(len(members))
		assert.InDelta(t, lat, centroids[i][0], 1e-6)
		assert.InDelta(t, lon, centroids[i][1], 1e-6)
	}
}

func TestClusterOversizeSplit(t *testing.T) {
	// Two tight groups of six forced into one cluster, then split apart by
	// the size cap.
	var customers []domain.Customer
	for i := 0; i < 6; i++ {
		customers = append(customers, customerAt("N"+string(rune('1'+i)), float64(i), 5))
	}
	for i := 0; i < 6; i++ {
		customers = append(customers, customerAt("S"+string(rune('1'+i)), 180+float64(i), 5))
	}

	res, err := Cluster{
		TargetZones:         1,
		MaxCustomersPerZone: 5,
	}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	// Cap 5 with tolerance 0.20 allows 6 per cluster; twelve forces a split.
	require.Len(t, res.Counts, 2)
	for _, zc := range res.Counts {
		assert.LessOrEqual(t, float64(zc.Count), 5*1.2)
	}
	assert.Equal(t, true, res.Metadata["constraint_satisfied"])

	splits := res.Metadata["splits"].([]splitRecord)
	require.Len(t, splits, 1)
	assert.Equal(t, "JED001", splits[0].FromZone)
	assert.Equal(t, "JED002", splits[0].NewZone)
	assert.Equal(t, 12, splits[0].SizeBefore)

	// The split separates the two geographic groups.
	northZone := res.Assignments["N1"]
	southZone := res.Assignments["S1"]
	assert.NotEqual(t, northZone, southZone)
	for i := 0; i < 6; i++ {
		assert.Equal(t, northZone, res.Assignments["N"+string(rune('1'+i))])
		assert.Equal(t, southZone, res.Assignments["S"+string(rune('1'+i))])
	}
}

func TestClusterCountAtLeastTarget(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 20; i++ {
		customers = append(customers, customerAt("C"+string(rune('A'+i)), float64(i*18), 3+float64(i%5)))
	}

	res, err := Cluster{TargetZones: 4, MaxCustomersPerZone: 4}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(res.Counts), 4)
	if res.Metadata["constraint_satisfied"] == true {
		for _, zc := range res.Counts {
			assert.LessOrEqual(t, float64(zc.Count), 4*1.2)
		}
	}
}

func TestClusterDeterministicWithSeed(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 15; i++ {
		customers = append(customers, customerAt("C"+string(rune('A'+i)), float64(i*24), 2+float64(i%6)))
	}
	in := Input{City: testDepot.City, Depot: testDepot, Customers: customers}

	first, err := Cluster{TargetZones: 3, Seed: 7}.Assign(context.Background(), in)
	require.NoError(t, err)
	second, err := Cluster{TargetZones: 3, Seed: 7}.Assign(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Counts, second.Counts)
}

func TestClusterMoreZonesThanCustomers(t *testing.T) {
	customers := []domain.Customer{customerAt("C1", 0, 2), customerAt("C2", 180, 2)}

	res, err := Cluster{TargetZones: 5}.Assign(context.Background(), Input{
		City: testDepot.City, Depot: testDepot, Customers: customers,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(res.Counts), 2)
	assert.Len(t, res.Assignments, 2)
}
