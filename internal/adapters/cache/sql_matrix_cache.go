package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLMatrixCache is a Postgres-backed cache for origin->destination travel
// metrics.
type SQLMatrixCache struct {
	DB *sql.DB
}

func NewSQLMatrixCache(db *sql.DB) *SQLMatrixCache {
	return &SQLMatrixCache{DB: db}
}

// Fetch cached metrics for one origin and multiple destinations.
func (s *SQLMatrixCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (map[string]PairResult, error) {
	if s.DB == nil {
		return nil, errors.New("matrix cache: db is nil")
	}

	if origin == "" {
		return nil, errors.New("get matrix cache: origin must not be empty")
	}

	if len(destinations) == 0 {
		return map[string]PairResult{}, nil
	}

	seen := map[string]struct{}{}
	uniq := make([]string, 0, len(destinations))
	for _, d := range destinations {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		uniq = append(uniq, d)
	}

	if len(uniq) == 0 {
		return map[string]PairResult{}, nil
	}

	q := `
	SELECT destination, distance_meters, duration_seconds
    FROM matrix_cache
    WHERE origin = $1
        AND destination = ANY($2::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, origin, uniq)
	if err != nil {
		return nil, fmt.Errorf("get matrix cache: query matrix_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]PairResult, len(uniq))
	for rows.Next() {
		var dest string
		var meters, seconds float64
		if err := rows.Scan(&dest, &meters, &seconds); err != nil {
			return nil, fmt.Errorf("get matrix cache: scan rows: %w", err)
		}
		out[dest] = PairResult{DistanceMeters: meters, DurationSeconds: seconds}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get matrix cache: row iteration: %w", err)
	}

	return out, nil
}

// Store many cached results for a single origin.
func (s *SQLMatrixCache) PutMany(
	ctx context.Context,
	origin string,
	results map[string]PairResult,
) error {
	if s.DB == nil {
		return errors.New("matrix cache: db is nil")
	}

	if origin == "" {
		return errors.New("insert matrix cache: origin must not be empty")
	}

	if len(results) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert matrix cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO matrix_cache (origin, destination, distance_meters, duration_seconds)
    VALUES ($1, $2, $3, $4)
	ON CONFLICT (origin, destination) DO UPDATE
	SET distance_meters = EXCLUDED.distance_meters,
		duration_seconds = EXCLUDED.duration_seconds;
	`)
	if err != nil {
		return fmt.Errorf("insert matrix cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for dest, r := range results {
		if strings.TrimSpace(dest) == "" {
			return fmt.Errorf("insert matrix cache: empty destination key")
		}

		if _, err := stmt.ExecContext(ctx, origin, dest, r.DistanceMeters, r.DurationSeconds); err != nil {
			return fmt.Errorf("insert matrix cache dest=%q: %w", dest, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert matrix cache commit: %w", err)
	}

	return nil
}
