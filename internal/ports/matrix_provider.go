package ports

import (
	"context"

	"github.com/paulmach/orb"
)

// Matrices is a pair of square arrays giving pairwise travel metrics for an
// ordered point set: distances in km and durations in minutes. The diagonal
// is zero; values are non-negative and finite but not required to be
// symmetric or to satisfy the triangle inequality. Degraded is set when any
// block came from the haversine fallback instead of the road network.
type Matrices struct {
	DistancesKm  [][]float64
	DurationsMin [][]float64
	Degraded     bool
}

// Contract for retrieving road-network distance and duration matrices.
type MatrixProvider interface {
	// Matrix returns the N×N distance and duration matrices for the ordered
	// point set (first element conventionally the depot).
	Matrix(ctx context.Context, points []orb.Point) (Matrices, error)

	// Probe reports whether the backing routing service is reachable.
	// Fallback-only providers are always healthy.
	Probe(ctx context.Context) bool
}
