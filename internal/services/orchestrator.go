// Package services exposes the five core operations behind one facade:
// zone generation, route optimization, matrix probing, run listing, and
// export streaming. Each call validates its request, runs against an
// immutable dataset snapshot, and persists completed results.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/platform/obs"
	"zone-routing-service/internal/ports"
	"zone-routing-service/internal/routing"
	"zone-routing-service/internal/zoning"
)

// Options carries the configured operation defaults.
type Options struct {
	WorkingDays      []string
	SolverTimeLimit  time.Duration
	BalanceTolerance float64
}

// Orchestrator wires the ports together. Safe for concurrent use; calls
// share no mutable state.
type Orchestrator struct {
	dataset  ports.DatasetRepository
	matrix   ports.MatrixProvider
	runs     ports.RunStore
	logger   *slog.Logger
	validate *validator.Validate
	opts     Options
}

func NewOrchestrator(
	dataset ports.DatasetRepository,
	matrix ports.MatrixProvider,
	runs ports.RunStore,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.WorkingDays) == 0 {
		opts.WorkingDays = domain.DefaultWorkingDays
	}
	if opts.BalanceTolerance <= 0 {
		opts.BalanceTolerance = zoning.DefaultBalanceTolerance
	}
	return &Orchestrator{
		dataset:  dataset,
		matrix:   matrix,
		runs:     runs,
		logger:   logger,
		validate: validator.New(),
		opts:     opts,
	}
}

// GenerateZonesRequest selects a strategy and its parameters.
type GenerateZonesRequest struct {
	City   string `json:"city" validate:"required"`
	Method string `json:"method" validate:"required,oneof=polar isochrone clustering manual"`

	TargetZones         int                  `json:"target_zones,omitempty" validate:"omitempty,gte=1,lte=999"`
	RotationOffset      float64              `json:"rotation_offset,omitempty"`
	Thresholds          []float64            `json:"thresholds,omitempty"`
	MaxCustomersPerZone int                  `json:"max_customers_per_zone,omitempty" validate:"omitempty,gte=1"`
	Polygons            []domain.ZonePolygon `json:"polygons,omitempty"`
	Seed                int64                `json:"seed,omitempty"`

	Balance          bool    `json:"balance,omitempty"`
	BalanceTolerance float64 `json:"balance_tolerance,omitempty" validate:"omitempty,gt=0,lt=1"`
}

// GenerateZonesResponse is the zoning result plus the persisted run id.
type GenerateZonesResponse struct {
	domain.ZoningResult
	RunID string `json:"run_id,omitempty"`
}

func (o *Orchestrator) GenerateZones(ctx context.Context, req GenerateZonesRequest) (resp GenerateZonesResponse, err error) {
	defer obs.Time(ctx, o.logger, "generate_zones")(&err)

	if err := o.validate.Struct(req); err != nil {
		return GenerateZonesResponse{}, fmt.Errorf("generate zones: %v: %w", err, domain.ErrInvalidInput)
	}

	customers, err := o.dataset.CustomersByCity(ctx, req.City)
	if err != nil {
		return GenerateZonesResponse{}, fmt.Errorf("generate zones: %w", err)
	}
	depot, err := o.dataset.DepotByCity(ctx, req.City)
	if err != nil {
		return GenerateZonesResponse{}, fmt.Errorf("generate zones: %w", err)
	}

	strategy, err := o.buildStrategy(req)
	if err != nil {
		return GenerateZonesResponse{}, err
	}

	res, err := strategy.Assign(ctx, zoning.Input{
		City:      depot.City,
		Depot:     depot,
		Customers: customers,
	})
	if err != nil {
		return GenerateZonesResponse{}, fmt.Errorf("generate zones: %w", err)
	}

	if req.Balance {
		tol := req.BalanceTolerance
		if tol <= 0 {
			tol = o.opts.BalanceTolerance
		}
		if err := zoning.Balance(&res, customers, depot, tol); err != nil {
			return GenerateZonesResponse{}, fmt.Errorf("generate zones: %w", err)
		}
	}

	rows := make([]ports.AssignmentRow, 0, len(res.Assignments))
	for cid, zid := range res.Assignments {
		rows = append(rows, ports.AssignmentRow{CustomerID: cid, ZoneID: zid})
	}

	runID, err := o.runs.Write(ctx, ports.RunTypeZones, res, rows)
	if err != nil {
		o.logger.Error("zone run not persisted", "city", req.City, "err", err)
		return GenerateZonesResponse{}, fmt.Errorf("generate zones: persist: %w", domain.ErrInternal)
	}

	return GenerateZonesResponse{ZoningResult: res, RunID: runID}, nil
}

func (o *Orchestrator) buildStrategy(req GenerateZonesRequest) (zoning.Strategy, error) {
	switch req.Method {
	case "polar":
		return zoning.Polar{
			TargetZones:    req.TargetZones,
			RotationOffset: req.RotationOffset,
		}, nil
	case "isochrone":
		return zoning.Isochrone{
			Thresholds: req.Thresholds,
			Matrix:     o.matrix,
		}, nil
	case "clustering":
		return zoning.Cluster{
			TargetZones:         req.TargetZones,
			MaxCustomersPerZone: req.MaxCustomersPerZone,
			Seed:                req.Seed,
		}, nil
	case "manual":
		return zoning.Manual{Polygons: req.Polygons}, nil
	default:
		return nil, fmt.Errorf("generate zones: unknown method %q: %w", req.Method, domain.ErrInvalidInput)
	}
}

// OptimizeRoutesRequest describes one zone's routing call.
type OptimizeRoutesRequest struct {
	City   string `json:"city" validate:"required"`
	ZoneID string `json:"zone_id" validate:"required"`

	// CustomerIDs narrows the zone to an explicit subset.
	CustomerIDs      []string                 `json:"customer_ids,omitempty"`
	Constraints      domain.RouteConstraints  `json:"constraints,omitempty"`
	RouteAssignments []domain.RouteAssignment `json:"route_assignments,omitempty"`
	TimeLimitSeconds float64                  `json:"time_limit_seconds,omitempty" validate:"omitempty,gt=0"`

	// Persist keeps a timed-out best-effort solution as a run.
	Persist bool `json:"persist,omitempty"`
}

// OptimizeRoutesResponse is the routing result plus the persisted run id.
type OptimizeRoutesResponse struct {
	domain.RoutingResult
	RunID string `json:"run_id,omitempty"`
}

func (o *Orchestrator) OptimizeRoutes(ctx context.Context, req OptimizeRoutesRequest) (resp OptimizeRoutesResponse, err error) {
	defer obs.Time(ctx, o.logger, "optimize_routes")(&err)

	if err := o.validate.Struct(req); err != nil {
		return OptimizeRoutesResponse{}, fmt.Errorf("optimize routes: %v: %w", err, domain.ErrInvalidInput)
	}

	customers, err := o.zoneCustomers(ctx, req)
	if err != nil {
		return OptimizeRoutesResponse{}, err
	}
	depot, err := o.dataset.DepotByCity(ctx, req.City)
	if err != nil {
		return OptimizeRoutesResponse{}, fmt.Errorf("optimize routes: %w", err)
	}

	budget := o.opts.SolverTimeLimit
	if req.TimeLimitSeconds > 0 {
		budget = time.Duration(req.TimeLimitSeconds * float64(time.Second))
	}

	solver := routing.New(o.matrix, o.logger)
	res, err := solver.Solve(ctx, routing.Request{
		ZoneID:      req.ZoneID,
		Depot:       depot,
		Customers:   customers,
		Constraints: req.Constraints,
		WorkingDays: o.opts.WorkingDays,
		Assignments: req.RouteAssignments,
		TimeBudget:  budget,
	})
	if err != nil {
		return OptimizeRoutesResponse{}, fmt.Errorf("optimize routes: %w", err)
	}

	out := OptimizeRoutesResponse{RoutingResult: res}
	if o.shouldPersist(res, req.Persist) {
		rows := routeRows(req.ZoneID, res)
		runID, err := o.runs.Write(ctx, ports.RunTypeRoutes, res, rows)
		if err != nil {
			o.logger.Error("route run not persisted", "zone", req.ZoneID, "err", err)
			return OptimizeRoutesResponse{}, fmt.Errorf("optimize routes: persist: %w", domain.ErrInternal)
		}
		out.RunID = runID
	}

	return out, nil
}

// shouldPersist keeps solved runs; timed-out solutions are kept only on
// request, and infeasible ones never.
func (o *Orchestrator) shouldPersist(res domain.RoutingResult, persist bool) bool {
	switch res.Metadata["status"] {
	case domain.StatusOptimal, domain.StatusFeasible:
		return true
	case domain.StatusTimeout:
		return persist && len(res.Plans) > 0
	default:
		return false
	}
}

func routeRows(zoneID string, res domain.RoutingResult) []ports.AssignmentRow {
	var rows []ports.AssignmentRow
	for _, plan := range res.Plans {
		for _, stop := range plan.Stops {
			rows = append(rows, ports.AssignmentRow{
				RouteID:            plan.RouteID,
				Day:                plan.Day,
				Sequence:           stop.Sequence,
				CustomerID:         stop.CustomerID,
				ZoneID:             zoneID,
				ArrivalMin:         stop.ArrivalMin,
				DistanceFromPrevKm: stop.DistanceFromPrevKm,
			})
		}
	}
	return rows
}

// zoneCustomers resolves the customer set for a routing call: an explicit
// id subset when given, the zone's customers otherwise.
func (o *Orchestrator) zoneCustomers(ctx context.Context, req OptimizeRoutesRequest) ([]domain.Customer, error) {
	if len(req.CustomerIDs) == 0 {
		customers, err := o.dataset.CustomersByZone(ctx, req.City, req.ZoneID)
		if err != nil {
			return nil, fmt.Errorf("optimize routes: %w", err)
		}
		return customers, nil
	}

	all, err := o.dataset.CustomersByCity(ctx, req.City)
	if err != nil {
		return nil, fmt.Errorf("optimize routes: %w", err)
	}
	byID := make(map[string]domain.Customer, len(all))
	for _, c := range all {
		byID[c.CustomerID] = c
	}

	customers := make([]domain.Customer, 0, len(req.CustomerIDs))
	for _, cid := range req.CustomerIDs {
		c, ok := byID[cid]
		if !ok {
			return nil, fmt.Errorf("optimize routes: unknown customer %s in city %s: %w",
				cid, req.City, domain.ErrInvalidInput)
		}
		customers = append(customers, c)
	}
	return customers, nil
}

// ProbeMatrixResponse reports matrix provider health.
type ProbeMatrixResponse struct {
	Healthy bool `json:"healthy"`
}

func (o *Orchestrator) ProbeMatrix(ctx context.Context) ProbeMatrixResponse {
	return ProbeMatrixResponse{Healthy: o.matrix.Probe(ctx)}
}

// ListRuns returns persisted run manifests, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, filters ports.RunFilters) (runs []ports.RunManifest, err error) {
	defer obs.Time(ctx, o.logger, "list_runs")(&err)

	runs, err = o.runs.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// FetchExport streams one file of a persisted run.
func (o *Orchestrator) FetchExport(ctx context.Context, runID, fileName string) (rc io.ReadCloser, err error) {
	defer obs.Time(ctx, o.logger, "fetch_export")(&err)

	rc, err = o.runs.Fetch(ctx, runID, fileName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch export: %w", domain.ErrInternal)
	}
	return rc, nil
}
