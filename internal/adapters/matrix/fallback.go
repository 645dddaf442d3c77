package matrix

import (
	"github.com/paulmach/orb"

	"zone-routing-service/internal/geo"
)

// FallbackSpeedKmh is the constant driving speed assumed when road-network
// durations are unavailable.
const FallbackSpeedKmh = 40.0

// fallbackCell computes the haversine distance (km) and constant-speed
// duration (minutes) for one arc. Deterministic and total.
func fallbackCell(from, to orb.Point) (km, min float64) {
	km = geo.HaversineKm(from, to)
	return km, km / FallbackSpeedKmh * 60
}

// fillFallbackBlock writes fallback values into the (sources × dests)
// block of the full matrices.
func fillFallbackBlock(dist, dur [][]float64, points []orb.Point, sources, dests []int) {
	for _, i := range sources {
		for _, j := range dests {
			if i == j {
				continue
			}
			dist[i][j], dur[i][j] = fallbackCell(points[i], points[j])
		}
	}
}
