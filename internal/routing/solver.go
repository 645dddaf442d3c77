// Package routing turns a zone's customers into day-labeled vehicle routes.
// Automatic mode solves a capacitated VRP with duration and distance limits;
// manual mode orders caller-supplied groups as single-vehicle TSPs.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/ports"
)

// Solver owns the matrix provider and solves one zone per call. Safe for
// concurrent use; each call keeps its state on the stack.
type Solver struct {
	matrix ports.MatrixProvider
	logger *slog.Logger
}

func New(matrix ports.MatrixProvider, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{matrix: matrix, logger: logger}
}

// Request describes one zone's routing problem. A non-empty Assignments
// list selects manual mode and preserves the supplied route ids and days.
type Request struct {
	ZoneID      string
	Depot       domain.Depot
	Customers   []domain.Customer
	Constraints domain.RouteConstraints
	WorkingDays []string
	Assignments []domain.RouteAssignment
	TimeBudget  time.Duration
}

// ExactOrderLimit is the largest route size ordered by exhaustive search.
// Larger routes fall back to 2-opt local search.
const ExactOrderLimit = 8

// instance is the solver's working view: depot at matrix index 0,
// customers at 1..n in request order.
type instance struct {
	dist [][]float64
	dur  [][]float64
	cons domain.RouteConstraints
	ids  []string // customer id per matrix index, ids[0] unused
}

func (s *Solver) Solve(ctx context.Context, req Request) (domain.RoutingResult, error) {
	if err := validateRequest(req); err != nil {
		return domain.RoutingResult{}, err
	}
	if req.Constraints.MaxCustomersPerRoute <= 0 {
		req.Constraints.MaxCustomersPerRoute = len(req.Customers)
	}
	if len(req.WorkingDays) == 0 {
		req.WorkingDays = domain.DefaultWorkingDays
	}

	if req.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.TimeBudget)
		defer cancel()
	}

	pts := make([]orb.Point, 0, len(req.Customers)+1)
	pts = append(pts, orb.Point{req.Depot.Lon, req.Depot.Lat})
	for _, c := range req.Customers {
		pts = append(pts, orb.Point{c.Lon, c.Lat})
	}

	m, err := s.matrix.Matrix(ctx, pts)
	if err != nil {
		return domain.RoutingResult{}, fmt.Errorf("solve zone %s: matrix: %w", req.ZoneID, err)
	}

	ids := make([]string, len(req.Customers)+1)
	for i, c := range req.Customers {
		ids[i+1] = c.CustomerID
	}
	in := &instance{dist: m.DistancesKm, dur: m.DurationsMin, cons: req.Constraints, ids: ids}

	var res domain.RoutingResult
	if len(req.Assignments) > 0 {
		res, err = s.solveManual(ctx, in, req)
	} else {
		res, err = s.solveAutomatic(ctx, in, req)
	}
	if err != nil {
		return domain.RoutingResult{}, err
	}

	if m.Degraded {
		tags, _ := res.Metadata["tags"].([]string)
		res.Metadata["tags"] = append(tags, "fallback")
	}

	s.logger.Info("zone solved",
		"zone", req.ZoneID,
		"status", res.Metadata["status"],
		"routes", len(res.Plans))
	return res, nil
}

func validateRequest(req Request) error {
	if len(req.Customers) == 0 {
		return fmt.Errorf("solve zone %s: no customers: %w", req.ZoneID, domain.ErrNotFound)
	}
	c := req.Constraints
	if c.MaxCustomersPerRoute < 0 || c.MaxRouteDurationMinutes < 0 ||
		c.MaxDistancePerRouteKm < 0 || c.MinCustomersPerRoute < 0 {
		return fmt.Errorf("solve zone %s: negative constraint: %w", req.ZoneID, domain.ErrInvalidInput)
	}
	if c.MaxCustomersPerRoute > 0 && c.MinCustomersPerRoute > c.MaxCustomersPerRoute {
		return fmt.Errorf("solve zone %s: min customers %d exceeds max %d: %w",
			req.ZoneID, c.MinCustomersPerRoute, c.MaxCustomersPerRoute, domain.ErrInvalidInput)
	}
	for _, cu := range req.Customers {
		if !cu.ValidCoordinates() {
			return fmt.Errorf("solve zone %s: customer %s has invalid coordinates: %w",
				req.ZoneID, cu.CustomerID, domain.ErrInvalidInput)
		}
	}
	return nil
}

func (s *Solver) solveAutomatic(ctx context.Context, in *instance, req Request) (domain.RoutingResult, error) {
	n := len(req.Customers)
	vehicles := (n + in.cons.MaxCustomersPerRoute - 1) / in.cons.MaxCustomersPerRoute
	if vehicles < 1 {
		vehicles = 1
	}

	dl := newDeadline(ctx)

	routes, diag := s.construct(in, n, vehicles)
	if diag != nil {
		return domain.RoutingResult{
			ZoneID: req.ZoneID,
			Metadata: map[string]any{
				"status":     domain.StatusInfeasible,
				"vehicles":   vehicles,
				"infeasible": diag,
			},
			Plans: []domain.RoutePlan{},
		}, nil
	}

	s.relocate(in, routes, dl)

	allExact := true
	for ri := range routes {
		exact := orderRoute(in, routes[ri], dl)
		allExact = allExact && exact
	}

	status := domain.StatusFeasible
	switch {
	case dl.expired():
		status = domain.StatusTimeout
	case allExact:
		status = domain.StatusOptimal
	}

	plans := make([]domain.RoutePlan, 0, len(routes))
	for ri, seq := range routes {
		plan := in.buildPlan(
			fmt.Sprintf("%s_R%02d", req.ZoneID, ri+1),
			req.WorkingDays[ri%len(req.WorkingDays)],
			seq,
		)
		plans = append(plans, plan)
	}

	return domain.RoutingResult{
		ZoneID: req.ZoneID,
		Metadata: map[string]any{
			"status":   status,
			"vehicles": vehicles,
		},
		Plans: plans,
	}, nil
}

// infeasibleDiag names the hard dimension that cannot be met and by how
// much, for the first customer or caller-supplied group left unroutable.
type infeasibleDiag struct {
	RouteID    string  `json:"route_id,omitempty"`
	CustomerID string  `json:"customer_id"`
	Dimension  string  `json:"dimension"`
	Overage    float64 `json:"overage"`
}

// construct assigns every customer by repeatedly taking the cheapest
// feasible (route end, customer) arc. Ties break on ascending customer id.
// A customer no route can absorb makes the instance infeasible.
func (s *Solver) construct(in *instance, n, vehicles int) ([][]int, *infeasibleDiag) {
	routes := make([][]int, vehicles)
	unvisited := make(map[int]bool, n)
	for c := 1; c <= n; c++ {
		unvisited[c] = true
	}

	order := make([]int, 0, n)
	for c := 1; c <= n; c++ {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool { return in.ids[order[i]] < in.ids[order[j]] })

	for len(unvisited) > 0 {
		bestRoute, bestCust := -1, -1
		bestArc := math.Inf(1)

		for ri := range routes {
			last := 0
			if len(routes[ri]) > 0 {
				last = routes[ri][len(routes[ri])-1]
			}
			for _, c := range order {
				if !unvisited[c] {
					continue
				}
				if !in.canAppend(routes[ri], c) {
					continue
				}
				if arc := in.dist[last][c]; arc < bestArc {
					bestArc = arc
					bestRoute, bestCust = ri, c
				}
			}
		}

		if bestRoute < 0 {
			return nil, in.diagnose(firstUnvisited(order, unvisited))
		}

		routes[bestRoute] = append(routes[bestRoute], bestCust)
		delete(unvisited, bestCust)
	}

	out := routes[:0]
	for _, r := range routes {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func firstUnvisited(order []int, unvisited map[int]bool) int {
	for _, c := range order {
		if unvisited[c] {
			return c
		}
	}
	return 0
}

// diagnose reports why customer c cannot be routed even alone.
func (in *instance) diagnose(c int) *infeasibleDiag {
	diag := &infeasibleDiag{CustomerID: in.ids[c]}

	alone := []int{c}
	km, min := in.routeCost(alone)
	if in.cons.MaxRouteDurationMinutes > 0 && min > in.cons.MaxRouteDurationMinutes {
		diag.Dimension = "duration_min"
		diag.Overage = min - in.cons.MaxRouteDurationMinutes
		return diag
	}
	if in.cons.MaxDistancePerRouteKm > 0 && km > in.cons.MaxDistancePerRouteKm {
		diag.Dimension = "distance_km"
		diag.Overage = km - in.cons.MaxDistancePerRouteKm
		return diag
	}

	// Routable alone; the fleet ran out of slack.
	diag.Dimension = "capacity"
	diag.Overage = 1
	return diag
}

// diagnoseGroup names the hard dimension a caller-supplied group breaks.
// Only called on an infeasible sequence, so one of the checks holds.
func (in *instance) diagnoseGroup(routeID string, seq []int) *infeasibleDiag {
	diag := &infeasibleDiag{RouteID: routeID, CustomerID: in.ids[seq[0]]}

	if len(seq) > in.cons.MaxCustomersPerRoute {
		diag.Dimension = "capacity"
		diag.Overage = float64(len(seq) - in.cons.MaxCustomersPerRoute)
		return diag
	}
	km, min := in.routeCost(seq)
	if in.cons.MaxRouteDurationMinutes > 0 && min > in.cons.MaxRouteDurationMinutes {
		diag.Dimension = "duration_min"
		diag.Overage = min - in.cons.MaxRouteDurationMinutes
		return diag
	}
	diag.Dimension = "distance_km"
	diag.Overage = km - in.cons.MaxDistancePerRouteKm
	return diag
}

// canAppend reports whether appending customer c keeps the route inside
// every hard dimension, including the return leg.
func (in *instance) canAppend(seq []int, c int) bool {
	if len(seq)+1 > in.cons.MaxCustomersPerRoute {
		return false
	}
	if in.cons.MaxRouteDurationMinutes == 0 && in.cons.MaxDistancePerRouteKm == 0 {
		return true
	}

	km, min := in.partialCost(seq)
	last := 0
	if len(seq) > 0 {
		last = seq[len(seq)-1]
	}
	km += in.dist[last][c] + in.dist[c][0]
	min += in.dur[last][c] + in.dur[c][0]

	if in.cons.MaxRouteDurationMinutes > 0 && min > in.cons.MaxRouteDurationMinutes {
		return false
	}
	if in.cons.MaxDistancePerRouteKm > 0 && km > in.cons.MaxDistancePerRouteKm {
		return false
	}
	return true
}

// partialCost is the open-path cost depot -> seq without the return leg.
func (in *instance) partialCost(seq []int) (km, min float64) {
	prev := 0
	for _, c := range seq {
		km += in.dist[prev][c]
		min += in.dur[prev][c]
		prev = c
	}
	return km, min
}

// routeCost is the closed-tour cost depot -> seq -> depot.
func (in *instance) routeCost(seq []int) (km, min float64) {
	if len(seq) == 0 {
		return 0, 0
	}
	km, min = in.partialCost(seq)
	last := seq[len(seq)-1]
	return km + in.dist[last][0], min + in.dur[last][0]
}

func (in *instance) feasible(seq []int) bool {
	if len(seq) > in.cons.MaxCustomersPerRoute {
		return false
	}
	km, min := in.routeCost(seq)
	if in.cons.MaxRouteDurationMinutes > 0 && min > in.cons.MaxRouteDurationMinutes {
		return false
	}
	if in.cons.MaxDistancePerRouteKm > 0 && km > in.cons.MaxDistancePerRouteKm {
		return false
	}
	return true
}

// relocate moves single customers between routes while total distance
// improves. First improvement restarts the scan; the deadline is checked
// between passes.
func (s *Solver) relocate(in *instance, routes [][]int, dl *deadline) {
	if len(routes) < 2 {
		return
	}

	improved := true
	for improved && !dl.expired() {
		improved = false

		for a := range routes {
			for pos := 0; pos < len(routes[a]); pos++ {
				if len(routes[a]) <= 1 {
					continue // keep every vehicle occupied
				}
				c := routes[a][pos]
				removed := append(append([]int{}, routes[a][:pos]...), routes[a][pos+1:]...)
				if !in.feasible(removed) {
					continue
				}
				baseA, _ := in.routeCost(routes[a])
				newA, _ := in.routeCost(removed)
				gain := baseA - newA

				for b := range routes {
					if b == a {
						continue
					}
					baseB, _ := in.routeCost(routes[b])

					for ins := 0; ins <= len(routes[b]); ins++ {
						cand := insertAt(routes[b], ins, c)
						if !in.feasible(cand) {
							continue
						}
						newB, _ := in.routeCost(cand)
						if newB-baseB < gain-1e-9 {
							routes[a] = removed
							routes[b] = cand
							improved = true
							break
						}
					}
					if improved {
						break
					}
				}
				if improved {
					break
				}
			}
			if improved {
				break
			}
		}
	}
}

func insertAt(seq []int, pos, c int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, c)
	out = append(out, seq[pos:]...)
	return out
}

// buildPlan expands a customer sequence into the output plan, accumulating
// arrivals and arc distances from depot departure and recording soft
// violations. Totals cover the stop arcs; the return leg counts toward the
// hard limits but not the report.
func (in *instance) buildPlan(routeID, day string, seq []int) domain.RoutePlan {
	plan := domain.RoutePlan{RouteID: routeID, Day: day, Stops: make([]domain.Stop, 0, len(seq))}

	prev := 0
	arrival := 0.0
	for i, c := range seq {
		arc := in.dist[prev][c]
		arrival += in.dur[prev][c]
		plan.Stops = append(plan.Stops, domain.Stop{
			CustomerID:         in.ids[c],
			Sequence:           i + 1,
			ArrivalMin:         arrival,
			DistanceFromPrevKm: arc,
		})
		plan.TotalDistanceKm += arc
		prev = c
	}
	plan.TotalDurationMin = arrival

	violations := map[string]float64{}
	if in.cons.MinCustomersPerRoute > 0 && len(seq) < in.cons.MinCustomersPerRoute {
		violations["min_customers"] = float64(in.cons.MinCustomersPerRoute - len(seq))
	}
	if in.cons.SoftDistanceTargetKm > 0 && plan.TotalDistanceKm > in.cons.SoftDistanceTargetKm {
		violations["distance_km"] = plan.TotalDistanceKm - in.cons.SoftDistanceTargetKm
	}
	if len(violations) > 0 {
		plan.ConstraintViolations = violations
	}

	return plan
}

// deadline wraps context expiry with a sparse check so tight loops do not
// poll the clock on every iteration.
type deadline struct {
	ctx   context.Context
	every int
	count int
	fired bool
}

// An already-expired context fires immediately; the sampling only thins
// checks during the search itself.
func newDeadline(ctx context.Context) *deadline {
	return &deadline{ctx: ctx, every: 64, fired: ctx.Err() != nil}
}

func (d *deadline) expired() bool {
	if d.fired {
		return true
	}
	d.count++
	if d.count%d.every != 0 {
		return false
	}
	if d.ctx.Err() != nil {
		d.fired = true
	}
	return d.fired
}
