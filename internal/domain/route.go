package domain

// Solver status tags.
const (
	StatusOptimal    = "optimal"
	StatusFeasible   = "feasible"
	StatusInfeasible = "infeasible"
	StatusTimeout    = "timeout"
)

// DefaultWorkingDays is the ordered dispatch-day set: a seven day week
// minus one rest day.
var DefaultWorkingDays = []string{"SUN", "MON", "TUE", "WED", "THU", "FRI"}

// Represents a single stop in a vehicle route.
// Sequence is 1-based within its route; the depot is implicit at sequence 0
// and after the final customer. ArrivalMin counts minutes since depot
// departure and DistanceFromPrevKm is the arc from the previous stop.
type Stop struct {
	CustomerID         string  `json:"customer_id"`
	Sequence           int     `json:"sequence"`
	ArrivalMin         float64 `json:"arrival_min"`
	DistanceFromPrevKm float64 `json:"distance_from_prev_km"`
}

// Single-vehicle, single-day sequence of stops beginning and ending at the
// depot. ConstraintViolations is present only for soft overages
// (e.g. distance beyond the soft target, min customers not reached).
type RoutePlan struct {
	RouteID              string             `json:"route_id"`
	Day                  string             `json:"day"`
	Stops                []Stop             `json:"stops"`
	TotalDistanceKm      float64            `json:"total_distance_km"`
	TotalDurationMin     float64            `json:"total_duration_min"`
	ConstraintViolations map[string]float64 `json:"constraint_violations,omitempty"`
}

// Hard and soft limits applied to every route of a zone.
type RouteConstraints struct {
	MaxCustomersPerRoute    int     `json:"max_customers_per_route"`
	MinCustomersPerRoute    int     `json:"min_customers_per_route"`
	MaxRouteDurationMinutes float64 `json:"max_route_duration_minutes"`
	MaxDistancePerRouteKm   float64 `json:"max_distance_per_route_km"`
	SoftDistanceTargetKm    float64 `json:"soft_distance_target_km,omitempty"`
}

// Caller-supplied grouping for manual routing mode.
type RouteAssignment struct {
	RouteID     string   `json:"route_id"`
	Day         string   `json:"day"`
	CustomerIDs []string `json:"customer_ids"`
}

// RoutingResult is the solver output for one zone.
type RoutingResult struct {
	ZoneID   string         `json:"zone_id"`
	Metadata map[string]any `json:"metadata"`
	Plans    []RoutePlan    `json:"plans"`
}
