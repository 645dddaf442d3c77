package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLite backed cache for origin->destination travel metrics. Keys are
// expected to come from PointKey so they are already consistent.
type SqliteMatrixCache struct {
	DB *sql.DB
}

func NewSqliteMatrixCache(db *sql.DB) *SqliteMatrixCache {
	return &SqliteMatrixCache{DB: db}
}

// Fetch cached metrics for one origin and multiple destinations.
func (s *SqliteMatrixCache) GetMany(
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
	ph := make([]string, 0, len(destinations))
	for _, d := range destinations {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		uniq = append(uniq, d)
		ph = append(ph, "?")
	}

	if len(uniq) == 0 {
		return map[string]PairResult{}, nil
	}

	args := make([]any, 0, 1+len(uniq))
	args = append(args, origin)
	for _, d := range uniq {
		args = append(args, d)
	}

	// SQLite does not support binding slices directly in an IN (...) clause.
	// Only the placeholder structure is interpolated; all values remain parameterized.
	q := fmt.Sprintf(`
	SELECT destination, distance_meters, duration_seconds
    FROM matrix_cache
    WHERE origin = ?
        AND destination IN (%s);
	`, strings.Join(ph, ","))

	rows, err := s.DB.QueryContext(ctx, q, args...)
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
func (s *SqliteMatrixCache) PutMany(
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
	INSERT OR REPLACE INTO matrix_cache (
        origin,
        destination,
        distance_meters,
        duration_seconds
    )
    VALUES (?, ?, ?, ?);
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

// InitSqliteSchema creates the cache table for a fresh SQLite database.
func InitSqliteSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init matrix cache schema: db is nil")
	}

	q := `
	CREATE TABLE IF NOT EXISTS matrix_cache (
        origin TEXT NOT NULL,
        destination TEXT NOT NULL,
        distance_meters REAL NOT NULL,
        duration_seconds REAL NOT NULL,
        PRIMARY KEY (origin, destination)
    );
	`
	if _, err := db.Exec(q); err != nil {
		return fmt.Errorf("init matrix cache schema: %w", err)
	}

	return nil
}
