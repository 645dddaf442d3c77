// Package dataset loads the customer master and depot catalogue from
// tabular files and serves them through immutable snapshots. A reload
// parses into a fresh snapshot and publishes it atomically, so in-flight
// computations keep the data they started with.
package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"zone-routing-service/internal/domain"
)

// Required customer master columns; anything else becomes a filter
// attribute.
var customerColumns = map[string]bool{
	"customer_id": true,
	"name":        true,
	"city":        true,
	"zone":        true,
	"lat":         true,
	"lon":         true,
}

type snapshot struct {
	customersByCity map[string][]domain.Customer
	depotsByCity    map[string]domain.Depot
	cities          []string
	skippedRows     int
}

// Loader implements ports.DatasetRepository over CSV files.
type Loader struct {
	customerPath string
	depotPath    string
	logger       *slog.Logger

	snap atomic.Pointer[snapshot]
}

func NewLoader(customerPath, depotPath string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{customerPath: customerPath, depotPath: depotPath, logger: logger}
}

// NormalizeCity collapses whitespace and case so dataset, request, and
// depot city names compare equal.
func NormalizeCity(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Load parses both files and publishes the first snapshot.
func (l *Loader) Load() error {
	return l.Reload()
}

// Reload re-parses the source files and swaps in a new snapshot.
// Existing readers keep their reference.
func (l *Loader) Reload() error {
	depots, err := l.readDepots()
	if err != nil {
		return fmt.Errorf("dataset reload: %w", err)
	}

	customers, skipped, err := l.readCustomers()
	if err != nil {
		return fmt.Errorf("dataset reload: %w", err)
	}

	cities := make([]string, 0, len(depots))
	for city := range depots {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	next := &snapshot{
		customersByCity: customers,
		depotsByCity:    depots,
		cities:          cities,
		skippedRows:     skipped,
	}
	l.snap.Store(next)

	total := 0
	for _, cs := range customers {
		total += len(cs)
	}
	l.logger.Info("dataset loaded",
		"customers", total, "cities", len(cities), "skipped_rows", skipped)
	return nil
}

func (l *Loader) current() (*snapshot, error) {
	s := l.snap.Load()
	if s == nil {
		return nil, fmt.Errorf("dataset: not loaded: %w", domain.ErrInternal)
	}
	return s, nil
}

// CustomersByCity returns the city's customers in dataset order.
func (l *Loader) CustomersByCity(_ context.Context, city string) ([]domain.Customer, error) {
	s, err := l.current()
	if err != nil {
		return nil, err
	}

	cs, ok := s.customersByCity[NormalizeCity(city)]
	if !ok || len(cs) == 0 {
		return nil, fmt.Errorf("no customers for city %q: %w", city, domain.ErrNotFound)
	}
	return cs, nil
}

// CustomersByZone narrows CustomersByCity to a pre-existing zone code.
func (l *Loader) CustomersByZone(ctx context.Context, city, zone string) ([]domain.Customer, error) {
	all, err := l.CustomersByCity(ctx, city)
	if err != nil {
		return nil, err
	}

	zone = strings.ToUpper(strings.TrimSpace(zone))
	out := make([]domain.Customer, 0, len(all))
	for _, c := range all {
		if c.ZoneCode == zone {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no customers for zone %q in city %q: %w", zone, city, domain.ErrNotFound)
	}
	return out, nil
}

// DepotByCity returns the city's depot.
func (l *Loader) DepotByCity(_ context.Context, city string) (domain.Depot, error) {
	s, err := l.current()
	if err != nil {
		return domain.Depot{}, err
	}

	d, ok := s.depotsByCity[NormalizeCity(city)]
	if !ok {
		return domain.Depot{}, fmt.Errorf("unknown city %q: %w", city, domain.ErrInvalidInput)
	}
	return d, nil
}

// Cities lists the cities present in the depot catalogue.
func (l *Loader) Cities(_ context.Context) ([]string, error) {
	s, err := l.current()
	if err != nil {
		return nil, err
	}
	return s.cities, nil
}

func (l *Loader) readCustomers() (map[string][]domain.Customer, int, error) {
	f, err := os.Open(l.customerPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open customer file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read customer header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"customer_id", "city", "lat", "lon"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("customer file missing column %q", required)
		}
	}

	byCity := make(map[string][]domain.Customer)
	seen := make(map[string]bool)
	skipped := 0
	line := 1

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			l.logger.Warn("skipping malformed customer row", "line", line, "err", err)
			skipped++
			continue
		}

		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		id := field("customer_id")
		if id == "" || seen[id] {
			l.logger.Warn("skipping customer row", "line", line, "reason", "empty or duplicate id", "customer_id", id)
			skipped++
			continue
		}

		lat, latErr := strconv.ParseFloat(field("lat"), 64)
		lon, lonErr := strconv.ParseFloat(field("lon"), 64)
		if latErr != nil || lonErr != nil {
			l.logger.Warn("skipping customer row", "line", line, "reason", "unparsable coordinates", "customer_id", id)
			skipped++
			continue
		}

		filters := make(map[string]string)
		for name, i := range col {
			if customerColumns[name] || i >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[i]); v != "" {
				filters[name] = v
			}
		}

		c := domain.Customer{
			CustomerID: id,
			Name:       field("name"),
			City:       NormalizeCity(field("city")),
			ZoneCode:   strings.ToUpper(field("zone")),
			Lat:        lat,
			Lon:        lon,
			Filters:    filters,
		}
		seen[id] = true
		byCity[c.City] = append(byCity[c.City], c)
	}

	return byCity, skipped, nil
}

func (l *Loader) readDepots() (map[string]domain.Depot, error) {
	f, err := os.Open(l.depotPath)
	if err != nil {
		return nil, fmt.Errorf("open depot file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read depot header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"city", "code", "lat", "lon"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("depot file missing column %q", required)
		}
	}

	depots := make(map[string]domain.Depot)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read depot row: %w", err)
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[col["lat"]]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(rec[col["lon"]]), 64)
		if latErr != nil || lonErr != nil {
			return nil, fmt.Errorf("depot row for %q: unparsable coordinates", rec[col["city"]])
		}

		d := domain.Depot{
			City: NormalizeCity(rec[col["city"]]),
			Code: strings.ToUpper(strings.TrimSpace(rec[col["code"]])),
			Lat:  lat,
			Lon:  lon,
		}
		depots[d.City] = d
	}

	return depots, nil
}
