package runstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/ports"
)

func zoningSummary() domain.ZoningResult {
	return domain.ZoningResult{
		City:        "JEDDAH",
		Method:      "polar",
		Assignments: map[string]string{"C1": "JED001", "C2": "JED002"},
		Counts: []domain.ZoneCount{
			{ZoneID: "JED001", Count: 1},
			{ZoneID: "JED002", Count: 1},
		},
		Metadata: map[string]any{"status": "ok"},
	}
}

func routingSummary() domain.RoutingResult {
	return domain.RoutingResult{
		ZoneID:   "JED001",
		Metadata: map[string]any{"status": "optimal", "tags": []string{"fallback"}},
		Plans: []domain.RoutePlan{
			{RouteID: "JED001_R01", Day: "SUN", Stops: []domain.Stop{
				{CustomerID: "C1", Sequence: 1, ArrivalMin: 12.5, DistanceFromPrevKm: 8.2},
			}},
		},
	}
}

func TestWriteThenListThenFetch(t *testing.T) {
	store := New(t.TempDir(), nil)
	ctx := context.Background()

	id, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), []ports.AssignmentRow{
		{CustomerID: "C1", ZoneID: "JED001"},
		{CustomerID: "C2", ZoneID: "JED002"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^zones_\d{8}T\d{6}Z$`, id)

	runs, err := store.List(ctx, ports.RunFilters{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, ports.RunTypeZones, runs[0].Type)
	assert.Equal(t, "JEDDAH", runs[0].City)
	assert.Equal(t, "polar", runs[0].Method)
	assert.Equal(t, 2, runs[0].ZoneCount)
	assert.False(t, runs[0].CreatedAt.IsZero())

	// Fetched bytes match the file on disk exactly.
	rc, err := store.Fetch(ctx, id, SummaryFile)
	require.NoError(t, err)
	fetched, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	onDisk, err := os.ReadFile(filepath.Join(store.root, id, SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, onDisk, fetched)

	var summary domain.ZoningResult
	require.NoError(t, json.Unmarshal(fetched, &summary))
	assert.Equal(t, "JEDDAH", summary.City)
}

func TestWriteRoutingAssignmentsCSV(t *testing.T) {
	store := New(t.TempDir(), nil)
	ctx := context.Background()

	id, err := store.Write(ctx, ports.RunTypeRoutes, routingSummary(), []ports.AssignmentRow{
		{RouteID: "JED001_R01", Day: "SUN", Sequence: 1, CustomerID: "C1", ArrivalMin: 12.5, DistanceFromPrevKm: 8.2},
		{RouteID: "JED001_R01", Day: "SUN", Sequence: 2, CustomerID: "C2", ArrivalMin: 30, DistanceFromPrevKm: 11.7},
	})
	require.NoError(t, err)

	rc, err := store.Fetch(ctx, id, AssignmentsFile)
	require.NoError(t, err)
	defer rc.Close()

	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"route_id", "day", "sequence", "customer_id", "arrival_min", "distance_from_prev_km"}, records[0])
	assert.Equal(t, []string{"JED001_R01", "SUN", "1", "C1", "12.50", "8.200"}, records[1])

	runs, err := store.List(ctx, ports.RunFilters{Type: ports.RunTypeRoutes})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "JED001", runs[0].Zone)
	assert.Equal(t, "optimal", runs[0].Status)
	assert.Equal(t, 1, runs[0].RouteCount)
	assert.Equal(t, []string{"fallback"}, runs[0].Tags)
}

func TestWriteSameSecondAppendsFragment(t *testing.T) {
	store := New(t.TempDir(), nil)
	fixed := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), nil)
	require.NoError(t, err)
	second, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), nil)
	require.NoError(t, err)

	assert.Equal(t, "zones_20260824T103000Z", first)
	assert.NotEqual(t, first, second)
	assert.Regexp(t, `^zones_20260824T103000Z_[0-9a-f]{8}$`, second)

	runs, err := store.List(ctx, ports.RunFilters{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListFiltersAndLimit(t *testing.T) {
	store := New(t.TempDir(), nil)
	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	ti := 0
	store.now = func() time.Time { ts := times[ti]; ti++; return ts }

	_, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), nil)
	require.NoError(t, err)
	_, err = store.Write(ctx, ports.RunTypeRoutes, routingSummary(), nil)
	require.NoError(t, err)
	riyadh := zoningSummary()
	riyadh.City = "RIYADH"
	_, err = store.Write(ctx, ports.RunTypeZones, riyadh, nil)
	require.NoError(t, err)

	// Newest first.
	all, err := store.List(ctx, ports.RunFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	byType, err := store.List(ctx, ports.RunFilters{Type: ports.RunTypeZones})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byCity, err := store.List(ctx, ports.RunFilters{City: "riyadh"})
	require.NoError(t, err)
	require.Len(t, byCity, 1)
	assert.Equal(t, "RIYADH", byCity[0].City)

	bySearch, err := store.List(ctx, ports.RunFilters{Search: "polar"})
	require.NoError(t, err)
	assert.Len(t, bySearch, 2)

	limited, err := store.List(ctx, ports.RunFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, all[0].ID, limited[0].ID)
}

func TestListSkipsCorruptRunDir(t *testing.T) {
	root := t.TempDir()
	store := New(root, nil)
	ctx := context.Background()

	id, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), nil)
	require.NoError(t, err)

	// A directory with no parseable summary must not break listing.
	corrupt := filepath.Join(root, "zones_20260101T000000Z")
	require.NoError(t, os.Mkdir(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, SummaryFile), []byte("{not json"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "junk"), 0o755))

	runs, err := store.List(ctx, ports.RunFilters{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestFetchRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	store := New(root, nil)
	ctx := context.Background()

	id, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), nil)
	require.NoError(t, err)

	secret := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o644))

	for _, name := range []string{"../secret.txt", "..", "a/b.txt", "a\\b.txt", ""} {
		_, err := store.Fetch(ctx, id, name)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "file %q", name)
	}
	_, err = store.Fetch(ctx, "../", SummaryFile)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Fetch(ctx, id, "missing.csv")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Fetch(ctx, "zones_19990101T000000Z", SummaryFile)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoPartialFilesVisible(t *testing.T) {
	root := t.TempDir()
	store := New(root, nil)
	ctx := context.Background()

	id, err := store.Write(ctx, ports.RunTypeZones, zoningSummary(), []ports.AssignmentRow{
		{CustomerID: "C1", ZoneID: "JED001"},
	})
	require.NoError(t, err)

	// Only the two published files remain; temp files are gone.
	entries, err := os.ReadDir(filepath.Join(root, id))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{SummaryFile, AssignmentsFile}, names)
}
