package domain

import "github.com/paulmach/orb"

// Disjoint partition of a city's customers, identified by a stable code
// and optionally bounded by a simple closed ring.
type Zone struct {
	ZoneID      string
	CustomerIDs []string
	Boundary    orb.Ring
}

// ZoneCount pairs a zone id with its customer count for summary output.
type ZoneCount struct {
	ZoneID string `json:"zone_id"`
	Count  int    `json:"count"`
}

// ZonePolygon carries a zone boundary as (lat, lon) vertex pairs for
// summary output. Rings are closed (first vertex repeated last).
type ZonePolygon struct {
	ZoneID   string       `json:"zone_id"`
	Vertices [][2]float64 `json:"vertices"`
}

// ZoningResult is the common output contract shared by all strategies.
// Assignments map customer ids to zone ids; a customer appears at most once.
// Metadata carries strategy-specific detail (sector angles, centroids,
// isochrone thresholds, unassigned customers, balance transfers).
type ZoningResult struct {
	City        string            `json:"city"`
	Method      string            `json:"method"`
	Assignments map[string]string `json:"assignments"`
	Counts      []ZoneCount       `json:"counts"`
	Polygons    []ZonePolygon     `json:"polygons"`
	Metadata    map[string]any    `json:"metadata"`
}
