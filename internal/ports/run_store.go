package ports

import (
	"context"
	"io"
	"time"
)

// Run type tags.
const (
	RunTypeZones  = "zones"
	RunTypeRoutes = "routes"
)

// RunManifest summarizes one persisted run directory.
type RunManifest struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	City       string    `json:"city"`
	Method     string    `json:"method,omitempty"`
	Zone       string    `json:"zone,omitempty"`
	ZoneCount  int       `json:"zone_count,omitempty"`
	RouteCount int       `json:"route_count,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Author     string    `json:"author,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
}

// RunFilters narrows List results.
type RunFilters struct {
	Type   string
	City   string
	Zone   string
	Search string
	Limit  int
}

// AssignmentRow is one flat row of a run's assignments.csv: per customer
// for zoning runs, per stop for routing runs.
type AssignmentRow struct {
	RouteID            string
	Day                string
	Sequence           int
	CustomerID         string
	ZoneID             string
	ArrivalMin         float64
	DistanceFromPrevKm float64
}

// Port: persistence for completed runs. Writes must be atomic with respect
// to readers (no partially written files observable).
type RunStore interface {
	// Write persists a run and returns its id.
	Write(ctx context.Context, runType string, summary any, rows []AssignmentRow) (string, error)

	// List scans the run root and returns manifests, newest first.
	List(ctx context.Context, filters RunFilters) ([]RunManifest, error)

	// Fetch streams one file from a run directory.
	Fetch(ctx context.Context, runID, fileName string) (io.ReadCloser, error)
}
