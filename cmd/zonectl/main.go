// zonectl drives the zoning and routing operations from the command line,
// against the same dataset and configuration the server uses. Handy for
// batch experiments and for inspecting persisted runs without an HTTP
// round trip.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"zone-routing-service/internal/adapters/cache"
	"zone-routing-service/internal/adapters/matrix"
	"zone-routing-service/internal/config"
	"zone-routing-service/internal/dataset"
	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/platform/db"
	"zone-routing-service/internal/platform/obs"
	"zone-routing-service/internal/ports"
	"zone-routing-service/internal/runstore"
	"zone-routing-service/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zonectl",
		Short:         "Generate delivery zones and optimize routes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newZonesCmd(), newRoutesCmd(), newRunsCmd(), newProbeCmd())
	return root
}

// buildOrchestrator performs the same wiring as the server, minus the HTTP
// surface. The CLI logs to stderr so stdout stays parseable.
func buildOrchestrator() (*services.Orchestrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger := obs.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	slog.SetDefault(logger)

	loader := dataset.NewLoader(
		filepath.Join(cfg.DataRoot, cfg.CustomerFile),
		filepath.Join(cfg.DataRoot, cfg.DepotFile),
		logger,
	)
	if err := loader.Load(); err != nil {
		return nil, nil, fmt.Errorf("dataset: %w", err)
	}

	var pairs cache.PairCache
	cleanup := func() {}
	switch {
	case cfg.CacheDatabaseURL != "":
		conn, err := db.Open(cfg.CacheDatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pair cache: %w", err)
		}
		pairs = cache.NewSQLMatrixCache(conn)
		cleanup = func() { conn.Close() }
	case cfg.CacheSqlitePath != "":
		conn, err := sql.Open("sqlite", cfg.CacheSqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("pair cache: %w", err)
		}
		if err := cache.InitSqliteSchema(conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("pair cache: %w", err)
		}
		pairs = cache.NewSqliteMatrixCache(conn)
		cleanup = func() { conn.Close() }
	}

	provider, err := matrix.New(matrix.Config{
		BaseURL:     cfg.MatrixBaseURL,
		Profile:     cfg.MatrixProfile,
		MaxRetries:  cfg.MatrixMaxRetries,
		Backoff:     cfg.MatrixBackoff(),
		ChunkSize:   cfg.MatrixChunkSize,
		Concurrency: cfg.MatrixConcurrency,
	}, pairs, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("matrix provider: %w", err)
	}

	runs := runstore.New(filepath.Join(cfg.DataRoot, "outputs"), logger)

	svc := services.NewOrchestrator(loader, provider, runs, logger, services.Options{
		WorkingDays:      cfg.WorkingDays,
		SolverTimeLimit:  cfg.SolverTimeLimit(),
		BalanceTolerance: cfg.BalanceToleranceDflt,
	})
	return svc, cleanup, nil
}

func newZonesCmd() *cobra.Command {
	var (
		req          services.GenerateZonesRequest
		polygonsPath string
	)

	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Generate zones for a city",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer cleanup()

			if polygonsPath != "" {
				if err := readJSONFile(polygonsPath, &req.Polygons); err != nil {
					return fmt.Errorf("polygons: %w", err)
				}
			}

			resp, err := svc.GenerateZones(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&req.City, "city", "", "city name (required)")
	cmd.Flags().StringVar(&req.Method, "method", "polar", "zoning method: polar, isochrone, clustering, manual")
	cmd.Flags().IntVar(&req.TargetZones, "zones", 0, "target zone count (polar, clustering)")
	cmd.Flags().Float64Var(&req.RotationOffset, "rotation", 0, "polar rotation offset in degrees")
	cmd.Flags().Float64SliceVar(&req.Thresholds, "thresholds", nil, "isochrone thresholds in minutes, ascending")
	cmd.Flags().IntVar(&req.MaxCustomersPerZone, "max-per-zone", 0, "clustering size cap per zone")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "clustering random seed")
	cmd.Flags().StringVar(&polygonsPath, "polygons", "", "JSON file with manual zone polygons")
	cmd.Flags().BoolVar(&req.Balance, "balance", false, "rebalance zone sizes after assignment")
	cmd.Flags().Float64Var(&req.BalanceTolerance, "balance-tolerance", 0, "balance band as a fraction of the mean")
	cmd.MarkFlagRequired("city")

	return cmd
}

func newRoutesCmd() *cobra.Command {
	var (
		req             services.OptimizeRoutesRequest
		assignmentsPath string
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Optimize routes for a zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer cleanup()

			if assignmentsPath != "" {
				if err := readJSONFile(assignmentsPath, &req.RouteAssignments); err != nil {
					return fmt.Errorf("assignments: %w", err)
				}
			}

			resp, err := svc.OptimizeRoutes(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			return resultErr(resp.Metadata)
		},
	}

	cmd.Flags().StringVar(&req.City, "city", "", "city name (required)")
	cmd.Flags().StringVar(&req.ZoneID, "zone", "", "zone id (required)")
	cmd.Flags().StringSliceVar(&req.CustomerIDs, "customers", nil, "explicit customer id subset")
	cmd.Flags().IntVar(&req.Constraints.MaxCustomersPerRoute, "max-per-route", 0, "hard cap on stops per route")
	cmd.Flags().IntVar(&req.Constraints.MinCustomersPerRoute, "min-per-route", 0, "soft floor on stops per route")
	cmd.Flags().Float64Var(&req.Constraints.MaxDistancePerRouteKm, "max-distance", 0, "hard cap on route distance in km")
	cmd.Flags().Float64Var(&req.Constraints.MaxRouteDurationMinutes, "max-duration", 0, "hard cap on route duration in minutes")
	cmd.Flags().Float64Var(&req.Constraints.SoftDistanceTargetKm, "target-distance", 0, "soft per-route distance target in km")
	cmd.Flags().Float64Var(&req.TimeLimitSeconds, "time-limit", 0, "solver budget in seconds")
	cmd.Flags().BoolVar(&req.Persist, "persist", false, "keep a timed-out best-effort solution as a run")
	cmd.MarkFlagRequired("city")
	cmd.MarkFlagRequired("zone")

	return cmd
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted runs",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsExportCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var filters ports.RunFilters

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := svc.ListRuns(cmd.Context(), filters)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&filters.Type, "type", "", "run type: zones or routes")
	cmd.Flags().StringVar(&filters.City, "city", "", "filter by city")
	cmd.Flags().StringVar(&filters.Zone, "zone", "", "filter by zone id")
	cmd.Flags().StringVar(&filters.Search, "search", "", "substring search over run fields")
	cmd.Flags().IntVar(&filters.Limit, "limit", 0, "cap the number of results")

	return cmd
}

func newRunsExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <run-id> <file>",
		Short: "Dump one file of a run (summary.json or assignments.csv)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer cleanup()

			rc, err := svc.FetchExport(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer rc.Close()

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			_, err = io.Copy(out, rc)
			return err
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the matrix service is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer cleanup()

			resp := svc.ProbeMatrix(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Healthy {
				return domain.ErrUnavailable
			}
			return nil
		},
	}
}

// resultErr maps an unsatisfiable solve onto its error kind so scripts get
// a non-zero exit; the JSON payload above still carries the diagnostic.
func resultErr(md map[string]any) error {
	if md["status"] == domain.StatusInfeasible {
		return domain.ErrInfeasible
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
