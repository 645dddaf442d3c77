package domain

import "errors"

// Error kinds surfaced across the orchestrator boundary. Callers classify
// failures with errors.Is; wrapping sites add operation context with
// fmt.Errorf and %w.
var (
	// ErrInvalidInput covers unknown cities or zones, malformed polygons,
	// non-finite coordinates, and contradictory constraints.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers empty customer selections and missing runs or files.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks matrix-service failures. It is normally absorbed
	// by the haversine fallback and only signalled through metadata.
	ErrUnavailable = errors.New("matrix service unavailable")

	// ErrInfeasible means the solver cannot satisfy the hard constraints.
	ErrInfeasible = errors.New("infeasible")

	// ErrTimeout means the call deadline expired before completion.
	ErrTimeout = errors.New("deadline exceeded")

	// ErrInternal covers corrupt dataset rows and storage failures. The
	// transport layer maps it to a generic message without leaking paths.
	ErrInternal = errors.New("internal error")
)
