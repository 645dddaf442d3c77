// Package cache provides persistent caches for matrix lookups, keyed by
// rounded coordinate pairs so repeated runs over the same customer set skip
// the external table service.
package cache

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
)

// PairResult is one cached origin→destination entry in wire units.
type PairResult struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// PairCache is the contract shared by the Postgres and SQLite caches.
type PairCache interface {
	// GetMany fetches cached results for one origin and many destinations.
	// Missing destinations are simply absent from the result map.
	GetMany(ctx context.Context, origin string, destinations []string) (map[string]PairResult, error)

	// PutMany stores results for a single origin.
	PutMany(ctx context.Context, origin string, results map[string]PairResult) error
}

// PointKey renders a coordinate as a stable cache key. Five decimals keep
// ~1 m precision, enough to treat re-geocoded customers as the same place.
func PointKey(p orb.Point) string {
	return fmt.Sprintf("%.5f,%.5f", p[1], p[0])
}
