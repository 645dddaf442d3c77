package routing

import (
	"context"
	"fmt"

	"zone-routing-service/internal/domain"
)

// solveManual orders each caller-supplied group as a single-vehicle tour
// over its sub-matrix, preserving the supplied route id and day.
func (s *Solver) solveManual(ctx context.Context, in *instance, req Request) (domain.RoutingResult, error) {
	indexByID := make(map[string]int, len(req.Customers))
	for i, c := range req.Customers {
		indexByID[c.CustomerID] = i + 1
	}

	dl := newDeadline(ctx)
	seen := make(map[string]string, len(req.Customers))

	plans := make([]domain.RoutePlan, 0, len(req.Assignments))
	allExact := true
	for gi, group := range req.Assignments {
		if len(group.CustomerIDs) == 0 {
			return domain.RoutingResult{}, fmt.Errorf(
				"solve zone %s: route %q has no customers: %w",
				req.ZoneID, group.RouteID, domain.ErrInvalidInput)
		}

		seq := make([]int, 0, len(group.CustomerIDs))
		for _, cid := range group.CustomerIDs {
			idx, ok := indexByID[cid]
			if !ok {
				return domain.RoutingResult{}, fmt.Errorf(
					"solve zone %s: route %q references unknown customer %s: %w",
					req.ZoneID, group.RouteID, cid, domain.ErrInvalidInput)
			}
			if prev, dup := seen[cid]; dup {
				return domain.RoutingResult{}, fmt.Errorf(
					"solve zone %s: customer %s appears in routes %q and %q: %w",
					req.ZoneID, cid, prev, group.RouteID, domain.ErrInvalidInput)
			}
			seen[cid] = group.RouteID
			seq = append(seq, idx)
		}

		exact := orderRoute(in, seq, dl)
		allExact = allExact && exact

		routeID := group.RouteID
		if routeID == "" {
			routeID = fmt.Sprintf("%s_R%02d", req.ZoneID, gi+1)
		}

		// The grouping is fixed by the caller, so a group whose best tour
		// breaks a hard limit makes the whole instance infeasible.
		if !in.feasible(seq) {
			return domain.RoutingResult{
				ZoneID: req.ZoneID,
				Metadata: map[string]any{
					"status":     domain.StatusInfeasible,
					"vehicles":   len(req.Assignments),
					"mode":       "manual",
					"infeasible": in.diagnoseGroup(routeID, seq),
				},
				Plans: []domain.RoutePlan{},
			}, nil
		}

		day := group.Day
		if day == "" {
			day = req.WorkingDays[gi%len(req.WorkingDays)]
		}

		plans = append(plans, in.buildPlan(routeID, day, seq))
	}

	status := domain.StatusFeasible
	switch {
	case dl.expired():
		status = domain.StatusTimeout
	case allExact:
		status = domain.StatusOptimal
	}

	return domain.RoutingResult{
		ZoneID: req.ZoneID,
		Metadata: map[string]any{
			"status":   status,
			"vehicles": len(plans),
			"mode":     "manual",
		},
		Plans: plans,
	}, nil
}

// orderRoute reorders seq in place to minimize tour distance. Routes up to
// ExactOrderLimit stops are ordered exhaustively; the return value reports
// whether the ordering is exact.
func orderRoute(in *instance, seq []int, dl *deadline) bool {
	if len(seq) <= 1 {
		return true
	}
	if len(seq) <= ExactOrderLimit {
		return exhaustiveOrder(in, seq, dl)
	}
	twoOpt(in, seq, dl)
	return false
}

// exhaustiveOrder scans every permutation, keeping the cheapest one that
// satisfies the hard limits. The incumbent is kept when nothing feasible
// turns up or the deadline fires mid-search.
func exhaustiveOrder(in *instance, seq []int, dl *deadline) bool {
	best := append([]int{}, seq...)
	bestKm, _ := in.routeCost(seq)
	bestFeasible := in.feasible(seq)

	work := append([]int{}, seq...)
	complete := permute(in, work, 0, dl, func(cand []int) {
		km, _ := in.routeCost(cand)
		feasible := in.feasible(cand)
		if (feasible && !bestFeasible) || (feasible == bestFeasible && km < bestKm-1e-9) {
			copy(best, cand)
			bestKm = km
			bestFeasible = feasible
		}
	})

	copy(seq, best)
	return complete
}

// permute visits all permutations of work[k:] via recursive swaps,
// reporting false if the deadline interrupted the scan.
func permute(in *instance, work []int, k int, dl *deadline, visit func([]int)) bool {
	if k == len(work) {
		visit(work)
		return true
	}
	if dl.expired() {
		return false
	}

	complete := true
	for i := k; i < len(work); i++ {
		work[k], work[i] = work[i], work[k]
		if !permute(in, work, k+1, dl, visit) {
			complete = false
		}
		work[k], work[i] = work[i], work[k]
		if !complete {
			break
		}
	}
	return complete
}

// twoOpt applies first-improvement segment reversals until a full pass
// finds nothing better or the deadline fires.
func twoOpt(in *instance, seq []int, dl *deadline) {
	curKm, _ := in.routeCost(seq)

	improved := true
	for improved {
		improved = false
		for i := 0; i < len(seq)-1; i++ {
			for j := i + 1; j < len(seq); j++ {
				if dl.expired() {
					return
				}

				reverse(seq, i, j)
				km, _ := in.routeCost(seq)
				if km < curKm-1e-9 && in.feasible(seq) {
					curKm = km
					improved = true
					continue
				}
				reverse(seq, i, j) // undo
			}
		}
	}
}

func reverse(seq []int, i, j int) {
	for i < j {
		seq[i], seq[j] = seq[j], seq[i]
		i++
		j--
	}
}
