// Package runstore persists completed runs as timestamped directories of
// summary.json + assignments.csv under the outputs root. Writes go through
// temp files and rename so readers never observe partial files.
package runstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/ports"
)

const (
	// TimestampLayout names run directories: <type>_<YYYYMMDDTHHMMSSZ>.
	TimestampLayout = "20060102T150405Z"

	SummaryFile     = "summary.json"
	AssignmentsFile = "assignments.csv"
)

// Store implements ports.RunStore on the local filesystem.
type Store struct {
	root   string
	logger *slog.Logger

	mu  sync.Mutex // serializes directory allocation
	now func() time.Time
}

func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger, now: time.Now}
}

// Write persists one run and returns its id. A same-second id collision
// appends a short uuid fragment.
func (s *Store) Write(ctx context.Context, runType string, summary any, rows []ports.AssignmentRow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("run store write: %w", err)
	}
	if runType != ports.RunTypeZones && runType != ports.RunTypeRoutes {
		return "", fmt.Errorf("run store write: unknown run type %q: %w", runType, domain.ErrInvalidInput)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("run store write: create root: %w", err)
	}

	id, dir, err := s.allocate(runType)
	if err != nil {
		return "", err
	}

	if err := s.writeSummary(dir, summary); err != nil {
		return "", err
	}
	if err := s.writeAssignments(dir, runType, rows); err != nil {
		return "", err
	}

	s.logger.Info("run persisted", "run", id, "rows", len(rows))
	return id, nil
}

func (s *Store) allocate(runType string) (id, dir string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = runType + "_" + s.now().UTC().Format(TimestampLayout)
	dir = filepath.Join(s.root, id)

	if mkErr := os.Mkdir(dir, 0o755); mkErr != nil {
		if !os.IsExist(mkErr) {
			return "", "", fmt.Errorf("run store write: create run dir: %w", mkErr)
		}
		id = id + "_" + uuid.NewString()[:8]
		dir = filepath.Join(s.root, id)
		if mkErr := os.Mkdir(dir, 0o755); mkErr != nil {
			return "", "", fmt.Errorf("run store write: create run dir: %w", mkErr)
		}
	}
	return id, dir, nil
}

func (s *Store) writeSummary(dir string, summary any) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("run store write: marshal summary: %w", err)
	}
	return atomicWrite(dir, SummaryFile, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (s *Store) writeAssignments(dir, runType string, rows []ports.AssignmentRow) error {
	return atomicWrite(dir, AssignmentsFile, func(w io.Writer) error {
		cw := csv.NewWriter(w)

		if runType == ports.RunTypeZones {
			if err := cw.Write([]string{"customer_id", "zone_id"}); err != nil {
				return err
			}
			for _, r := range rows {
				if err := cw.Write([]string{r.CustomerID, r.ZoneID}); err != nil {
					return err
				}
			}
		} else {
			header := []string{"route_id", "day", "sequence", "customer_id", "arrival_min", "distance_from_prev_km"}
			if err := cw.Write(header); err != nil {
				return err
			}
			for _, r := range rows {
				rec := []string{
					r.RouteID,
					r.Day,
					strconv.Itoa(r.Sequence),
					r.CustomerID,
					strconv.FormatFloat(r.ArrivalMin, 'f', 2, 64),
					strconv.FormatFloat(r.DistanceFromPrevKm, 'f', 3, 64),
				}
				if err := cw.Write(rec); err != nil {
					return err
				}
			}
		}

		cw.Flush()
		return cw.Error()
	})
}

// atomicWrite writes through a temp file in the same directory and renames
// it into place.
func atomicWrite(dir, name string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("run store write: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("run store write: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("run store write: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("run store write: publish %s: %w", name, err)
	}
	return nil
}

// List scans the run root lazily: manifests come from directory names plus
// summary.json content, and corrupt directories are skipped with a warning.
func (s *Store) List(ctx context.Context, filters ports.RunFilters) ([]ports.RunManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run store list: %w", err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []ports.RunManifest{}, nil
		}
		return nil, fmt.Errorf("run store list: read root: %w", err)
	}

	out := make([]ports.RunManifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		m, err := s.readManifest(e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable run dir", "run", e.Name(), "err", err)
			continue
		}
		if matches(m, filters) {
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *Store) readManifest(id string) (ports.RunManifest, error) {
	runType, createdAt, err := parseRunID(id)
	if err != nil {
		return ports.RunManifest{}, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, id, SummaryFile))
	if err != nil {
		return ports.RunManifest{}, fmt.Errorf("read summary: %w", err)
	}

	var summary map[string]any
	if err := json.Unmarshal(data, &summary); err != nil {
		return ports.RunManifest{}, fmt.Errorf("parse summary: %w", err)
	}

	m := ports.RunManifest{
		ID:        id,
		Type:      runType,
		CreatedAt: createdAt,
		City:      str(summary, "city"),
		Method:    str(summary, "method"),
		Zone:      str(summary, "zone_id"),
		Author:    str(summary, "author"),
	}

	if counts, ok := summary["counts"].([]any); ok {
		m.ZoneCount = len(counts)
	}
	if plans, ok := summary["plans"].([]any); ok {
		m.RouteCount = len(plans)
	}
	if meta, ok := summary["metadata"].(map[string]any); ok {
		m.Status = str(meta, "status")
		if tags, ok := meta["tags"].([]any); ok {
			for _, tag := range tags {
				if t, ok := tag.(string); ok {
					m.Tags = append(m.Tags, t)
				}
			}
		}
	}
	return m, nil
}

// parseRunID splits <type>_<timestamp>[_<fragment>].
func parseRunID(id string) (runType string, createdAt time.Time, err error) {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return "", time.Time{}, fmt.Errorf("malformed run id %q", id)
	}
	runType = parts[0]
	if runType != ports.RunTypeZones && runType != ports.RunTypeRoutes {
		return "", time.Time{}, fmt.Errorf("unknown run type in id %q", id)
	}
	createdAt, err = time.Parse(TimestampLayout, parts[1])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed timestamp in id %q: %w", id, err)
	}
	return runType, createdAt, nil
}

func matches(m ports.RunManifest, f ports.RunFilters) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.City != "" && !strings.EqualFold(m.City, f.City) {
		return false
	}
	if f.Zone != "" && !strings.EqualFold(m.Zone, f.Zone) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(strings.Join([]string{m.ID, m.City, m.Method, m.Zone, m.Status}, " "))
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// Fetch streams one file from a run directory read-only. Names that could
// escape the run directory are rejected.
func (s *Store) Fetch(ctx context.Context, runID, fileName string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run store fetch: %w", err)
	}
	if !safeName(runID) || !safeName(fileName) {
		return nil, fmt.Errorf("run store fetch: unsafe name %q/%q: %w", runID, fileName, domain.ErrInvalidInput)
	}

	path := filepath.Join(s.root, runID, fileName)
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("run store fetch: path escapes root: %w", domain.ErrInvalidInput)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run store fetch: %s/%s: %w", runID, fileName, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("run store fetch: open: %w", err)
	}
	return f, nil
}

// safeName accepts ASCII names whose only separator is the dot.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return !strings.Contains(name, "..")
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
